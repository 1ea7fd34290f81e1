package classifier

import (
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Matcher reconciles candidate series names against the series directories
// already present in the library.
type Matcher struct {
	libraryPath string

	mu     sync.Mutex
	series []string
	loaded bool
}

// NewMatcher creates a Matcher over the given library root. The directory
// listing is read lazily and cached; call Invalidate after the library
// changes.
func NewMatcher(libraryPath string) *Matcher {
	return &Matcher{libraryPath: libraryPath}
}

// Series returns the known series names (the library's directory names,
// dot-directories excluded) in enumeration order.
func (m *Matcher) Series() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return m.series, nil
	}

	entries, err := os.ReadDir(m.libraryPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.series = []string{}
			m.loaded = true
			return m.series, nil
		}
		return nil, errors.WithStack(err)
	}

	series := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		series = append(series, entry.Name())
	}
	m.series = series
	m.loaded = true
	return m.series, nil
}

// Invalidate drops the cached directory listing.
func (m *Matcher) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	m.series = nil
}

// FindMatch returns the library series that matches candidate: exact
// case-insensitive equality first, then case-insensitive substring
// containment in either direction, first match in enumeration order.
// Returns "" if nothing matches.
//
// The substring fallback is deliberately naive and can mis-merge unrelated
// series that share a common substring ("One Piece" vs "Piece of Mind").
// It's kept for compatibility with existing libraries organized by it.
func (m *Matcher) FindMatch(candidate string) (string, error) {
	existing, err := m.Series()
	if err != nil {
		return "", err
	}

	lower := strings.ToLower(candidate)
	for _, name := range existing {
		if strings.ToLower(name) == lower {
			return name, nil
		}
	}

	for _, name := range existing {
		nameLower := strings.ToLower(name)
		if strings.Contains(nameLower, lower) || strings.Contains(lower, nameLower) {
			return name, nil
		}
	}

	return "", nil
}
