// Package media stores uploaded attachments on local disk and serves them
// back for publishing and download.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"plume/internal/models"

	"github.com/google/uuid"
)

// Store is a local-disk attachment store rooted at a single directory.
// Stored names are flat: one sanitized, timestamped file name per attachment,
// referenced verbatim from the tweet's image_paths column.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates the root directory if needed and returns a store.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if dir == "" {
		return nil, errors.New("media: upload directory not set")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("media: creating upload directory: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Save writes one attachment under a sanitized, unique stored name and
// returns that name. The random fragment keeps same-named uploads within one
// second from overwriting each other.
func (s *Store) Save(filename string, r io.Reader) (string, error) {
	base := Sanitize(filename)
	if base == "" {
		return "", models.NewValidationError("Invalid file name")
	}

	stored := fmt.Sprintf("%s_%s_%s",
		time.Now().UTC().Format("20060102_150405"),
		uuid.NewString()[:8],
		base,
	)
	path := filepath.Join(s.dir, stored)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", models.NewInternalError(err)
	}

	src := r
	if s.maxBytes > 0 {
		// One extra byte so an oversized upload is detectable, not truncated.
		src = io.LimitReader(r, s.maxBytes+1)
	}
	written, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	if copyErr != nil {
		_ = os.Remove(path)
		return "", models.NewInternalError(copyErr)
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		_ = os.Remove(path)
		return "", models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxBytes/(1024*1024)))
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return "", models.NewInternalError(closeErr)
	}

	return stored, nil
}

// Path returns the on-disk location of a stored name. Names carrying path
// separators or traversal segments are rejected before touching the
// filesystem.
func (s *Store) Path(stored string) (string, error) {
	if !ValidName(stored) {
		return "", models.NewValidationError("Invalid file name")
	}
	return filepath.Join(s.dir, stored), nil
}

// Open opens a stored attachment for reading.
func (s *Store) Open(stored string) (*os.File, os.FileInfo, error) {
	path, err := s.Path(stored)
	if err != nil {
		return nil, nil, err
	}

	// #nosec G304: path is rooted in the store directory and the name was
	// validated against separators and traversal.
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, models.NewNotFoundError("Attachment", stored)
		}
		return nil, nil, models.NewInternalError(err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, models.NewInternalError(err)
	}

	return f, info, nil
}

// ValidName reports whether a stored name is safe to resolve inside the
// store directory.
func ValidName(stored string) bool {
	if stored == "" || stored == "." || stored == ".." {
		return false
	}
	return !strings.ContainsAny(stored, "/\\")
}

// Sanitize reduces a client-supplied filename to a safe basename: path
// components are dropped and every run of characters outside
// [A-Za-z0-9._-] collapses to a single underscore. Returns "" when nothing
// usable remains.
func Sanitize(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))

	var b strings.Builder
	underscored := false
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
			underscored = false
		default:
			if !underscored {
				b.WriteByte('_')
				underscored = true
			}
		}
	}

	return strings.Trim(b.String(), "._")
}
