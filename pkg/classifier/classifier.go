// Package classifier extracts series/volume/chapter identity from manga
// filenames and renders the canonical library filename.
package classifier

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// VolumePlaceholder is rendered in canonical filenames when the volume is
// unknown.
const VolumePlaceholder = "???"

// Parsed holds the identity extracted from a filename. A nil Volume or
// Chapter means the value couldn't be determined; Series is "" when unknown.
type Parsed struct {
	Series  string
	Volume  *int
	Chapter *float64
}

// patterns is the recognition ladder, tried in priority order. The first
// match wins.
var patterns = []*regexp.Regexp{
	// "Series Name Vol.018 Ch.00076.cbz" (also the canonical form, where an
	// unknown volume is rendered as "???")
	regexp.MustCompile(`(?i)^(?P<series>.+?)\s+Vol\.(?P<volume>\d+|\?{3})\s+Ch\.(?P<chapter>[\d.]+)`),

	// "Series Name v18 c76.cbz"
	regexp.MustCompile(`(?i)^(?P<series>.+?)\s+v(?P<volume>\d+)\s+c(?P<chapter>[\d.]+)`),

	// "Series Name - Volume 18 - Chapter 76.cbz"
	regexp.MustCompile(`(?i)^(?P<series>.+?)\s*-\s*Volume\s+(?P<volume>\d+)\s*-\s*Chapter\s+(?P<chapter>[\d.]+)`),

	// "[Group] Series Name - Ch. 76.cbz" (no volume)
	regexp.MustCompile(`(?i)^(?:\[.+?\]\s*)?(?P<series>.+?)\s*-\s*Ch\.?\s*(?P<chapter>[\d.]+)`),

	// "Series Name Chapter 76.cbz" (no volume)
	regexp.MustCompile(`(?i)^(?P<series>.+?)\s+Chapter\s+(?P<chapter>[\d.]+)`),

	// "Series Name 076.cbz" (bare trailing chapter number, no volume)
	regexp.MustCompile(`(?i)^(?P<series>.+?)\s+(?P<chapter>\d{3,})`),
}

var (
	leadingGroupTagRE  = regexp.MustCompile(`^\[.+?\]\s*`)
	invalidPathCharsRE = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	multiSpaceRE       = regexp.MustCompile(`\s+`)
)

// Parse extracts identity from a filename. The archive extension is stripped
// first. If no pattern matches, all fields are absent; Parse never fails.
func Parse(filename string) Parsed {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))

	for _, re := range patterns {
		match := re.FindStringSubmatch(name)
		if match == nil {
			continue
		}

		var parsed Parsed
		for i, group := range re.SubexpNames() {
			value := match[i]
			switch group {
			case "series":
				parsed.Series = CleanSeriesName(value)
			case "volume":
				if n, err := strconv.Atoi(value); err == nil {
					parsed.Volume = &n
				}
			case "chapter":
				if n, err := strconv.ParseFloat(value, 64); err == nil {
					parsed.Chapter = &n
				}
			}
		}
		return parsed
	}

	return Parsed{}
}

// CleanSeriesName trims whitespace, strips a single leading [group] tag, and
// drops trailing separator punctuation. The result is path-safe.
func CleanSeriesName(series string) string {
	series = strings.TrimSpace(series)
	series = leadingGroupTagRE.ReplaceAllString(series, "")
	series = strings.TrimRight(series, " -_")
	return SanitizeSeriesName(series)
}

// SanitizeSeriesName strips characters that are unsafe in file and directory
// names. A series name is always joined under the library and cover cache
// roots, so it must never be able to escape them.
func SanitizeSeriesName(series string) string {
	series = invalidPathCharsRE.ReplaceAllString(series, "")
	series = multiSpaceRE.ReplaceAllString(series, " ")
	return strings.Trim(series, " .")
}

// StandardizeFilename renders the canonical form
// "{series} Vol.{NNN|???} Ch.{NNNNN}[.{frac}]" without an extension. A nil
// volume renders as the placeholder token. Re-parsing the output recovers
// the same identity.
func StandardizeFilename(series string, volume *int, chapter float64, volumeDigits, chapterDigits int) string {
	vol := "Vol." + VolumePlaceholder
	if volume != nil {
		vol = fmt.Sprintf("Vol.%0*d", volumeDigits, *volume)
	}

	whole := int(math.Trunc(chapter))
	ch := fmt.Sprintf("Ch.%0*d", chapterDigits, whole)
	if chapter != math.Trunc(chapter) {
		// Keep the fractional digits verbatim, e.g. Ch.00076.5.
		formatted := strconv.FormatFloat(chapter, 'f', -1, 64)
		if idx := strings.IndexByte(formatted, '.'); idx >= 0 {
			ch += formatted[idx:]
		}
	}

	return fmt.Sprintf("%s %s %s", series, vol, ch)
}
