package nonconformance

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// PhotoExts are the accepted photo extensions.
var PhotoExts = []string{".png", ".jpg", ".jpeg", ".gif"}

var (
	ErrPhotoType = errors.New("photos must be .png, .jpg, .jpeg or .gif")
	ErrPhotoName = errors.New("invalid photo name")
)

// PhotoDir stores uploaded INC photos as flat files under Root.
type PhotoDir struct {
	Root string
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename reduces an uploaded name to its base with only safe
// characters.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "photo"
	}
	return name
}

// Save writes src under a unique name derived from original and returns
// the stored name.
func (d PhotoDir) Save(original string, src io.Reader) (string, error) {
	safe := SanitizeFilename(original)
	ext := strings.ToLower(filepath.Ext(safe))
	if !isPhotoExt(ext) {
		return "", ErrPhotoType
	}
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}
	name := uuid.NewString() + "_" + safe
	out, err := os.Create(filepath.Join(d.Root, name))
	if err != nil {
		return "", fmt.Errorf("create photo: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("write photo: %w", err)
	}
	return name, out.Close()
}

// Path resolves a stored name to its file, refusing anything that is not a
// plain file name inside Root.
func (d PhotoDir) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", ErrPhotoName
	}
	if !isPhotoExt(strings.ToLower(filepath.Ext(name))) {
		return "", ErrPhotoName
	}
	return filepath.Join(d.Root, name), nil
}

// Remove deletes a stored photo. A photo already gone is not an error.
func (d PhotoDir) Remove(name string) error {
	p, err := d.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func isPhotoExt(ext string) bool {
	for _, e := range PhotoExts {
		if e == ext {
			return true
		}
	}
	return false
}
