package cbz

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// MetadataEntry is the fixed name of the metadata sidecar at the archive root.
const MetadataEntry = "ComicInfo.xml"

// CoverEntryName is the fixed name of the dedicated cover image embedded in
// non-first chapters of a volume.
const CoverEntryName = "000_cover.jpg"

var (
	ErrNotArchive    = errors.New("file is not a valid zip archive")
	ErrEntryNotFound = errors.New("entry not found in archive")
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// coverMarkerNames are base names that mark an entry as the dedicated cover.
var coverMarkerNames = map[string]struct{}{
	"000_cover.jpg": {},
	"000_cover.png": {},
	"000.jpg":       {},
	"000.png":       {},
}

// Archive is a CBZ file on disk. It holds no open file handles; every
// operation opens the zip fresh, so a mutation never invalidates the
// receiver. The caller must own the path exclusively for the duration of
// any mutation.
type Archive struct {
	path string
}

// Open validates that path is a readable zip archive and returns an Archive
// for it. Returns ErrNotArchive if the file is missing or not a zip.
func Open(path string) (*Archive, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(ErrNotArchive, "%s: %v", path, err)
	}
	r.Close()
	return &Archive{path: path}, nil
}

func (a *Archive) Path() string {
	return a.path
}

// ListEntries returns all entry names in archive order.
func (a *Archive) ListEntries() ([]string, error) {
	r, err := zip.OpenReader(a.path)
	if err != nil {
		return nil, errors.Wrapf(ErrNotArchive, "%s: %v", a.path, err)
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// ListImages returns the page image entries sorted in natural order, so
// "2.jpg" comes before "10.jpg". macOS resource forks and dot-files are
// excluded.
func (a *Archive) ListImages() ([]string, error) {
	entries, err := a.ListEntries()
	if err != nil {
		return nil, err
	}

	images := make([]string, 0, len(entries))
	for _, name := range entries {
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := imageExtensions[ext]; !ok {
			continue
		}
		if strings.HasPrefix(name, "__MACOSX") {
			continue
		}
		if strings.HasPrefix(filepath.Base(name), ".") {
			continue
		}
		images = append(images, name)
	}

	sort.SliceStable(images, func(i, j int) bool {
		return naturalLess(images[i], images[j])
	})
	return images, nil
}

// Has reports whether the named entry exists in the archive.
func (a *Archive) Has(name string) (bool, error) {
	entries, err := a.ListEntries()
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry == name {
			return true, nil
		}
	}
	return false, nil
}

// Read returns the raw bytes of the named entry. Returns ErrEntryNotFound
// if the entry doesn't exist.
func (a *Archive) Read(name string) ([]byte, error) {
	r, err := zip.OpenReader(a.path)
	if err != nil {
		return nil, errors.Wrapf(ErrNotArchive, "%s: %v", a.path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return data, nil
	}
	return nil, errors.Wrapf(ErrEntryNotFound, "%s in %s", name, a.path)
}

// Extract writes the named entry to dest, creating parent directories as
// needed.
func (a *Archive) Extract(name, dest string) error {
	data, err := a.Read(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(dest, data, 0644))
}

// WriteEntry adds or replaces the named entry. The archive is rewritten to a
// temp file and atomically swapped into place, so the original survives any
// mid-write failure.
func (a *Archive) WriteEntry(name string, data []byte) error {
	return a.rewrite(name, func(w *zip.Writer) error {
		out, err := w.Create(name)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = out.Write(data)
		return errors.WithStack(err)
	})
}

// RemoveEntry deletes the named entry. Removing an absent entry is a no-op.
func (a *Archive) RemoveEntry(name string) error {
	ok, err := a.Has(name)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return a.rewrite(name, nil)
}

// CoverEntry returns the entry that serves as the archive's cover: a
// dedicated cover-marker entry if one exists, otherwise the first image in
// natural order. Returns "" if the archive holds no images.
func (a *Archive) CoverEntry() (string, error) {
	images, err := a.ListImages()
	if err != nil {
		return "", err
	}
	if len(images) == 0 {
		return "", nil
	}

	for _, img := range images {
		base := strings.ToLower(filepath.Base(img))
		if _, ok := coverMarkerNames[base]; ok {
			return img, nil
		}
	}
	return images[0], nil
}

// rewrite copies every entry except skip into a new zip in the same
// directory, invokes add (if non-nil) to append new content, then renames
// the temp file over the original. The original file is untouched unless
// every step succeeds.
func (a *Archive) rewrite(skip string, add func(w *zip.Writer) error) error {
	r, err := zip.OpenReader(a.path)
	if err != nil {
		return errors.Wrapf(ErrNotArchive, "%s: %v", a.path, err)
	}
	defer r.Close()

	tmp, err := os.CreateTemp(filepath.Dir(a.path), ".cbz-rewrite-*")
	if err != nil {
		return errors.WithStack(err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	w := zip.NewWriter(tmp)
	for _, f := range r.File {
		if f.Name == skip {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return errors.WithStack(err)
		}
		out, err := w.Create(f.Name)
		if err != nil {
			rc.Close()
			return errors.WithStack(err)
		}
		if _, err := io.Copy(out, rc); err != nil {
			rc.Close()
			return errors.WithStack(err)
		}
		rc.Close()
	}

	if add != nil {
		if err := add(w); err != nil {
			return err
		}
	}

	if err := w.Close(); err != nil {
		return errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Rename(tmpPath, a.path); err != nil {
		return errors.WithStack(err)
	}
	success = true
	return nil
}
