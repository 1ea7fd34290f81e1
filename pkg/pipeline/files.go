package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// hashFile computes the sha256 digest over the full file contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer f.Close()

	h := sha256.New()
	_, err = io.Copy(h, f)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func ensureDirectory(dir string) error {
	return errors.WithStack(os.MkdirAll(dir, 0o755))
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// uniquePath disambiguates a colliding name by appending an incrementing
// numeric suffix before the extension.
func uniquePath(dir, filename string) string {
	dest := filepath.Join(dir, filename)
	if !pathExists(dest) {
		return dest
	}

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for counter := 1; ; counter++ {
		dest = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, counter, ext))
		if !pathExists(dest) {
			return dest
		}
	}
}

// moveFile renames src to dest, falling back to copy-and-remove when the
// two live on different filesystems.
func moveFile(src, dest string) (string, error) {
	err := ensureDirectory(filepath.Dir(dest))
	if err != nil {
		return "", err
	}

	err = os.Rename(src, dest)
	if err == nil {
		return dest, nil
	}

	err = copyFile(src, dest)
	if err != nil {
		return "", err
	}
	err = os.Remove(src)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return errors.WithStack(err)
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return errors.WithStack(err)
	}

	return errors.WithStack(out.Close())
}
