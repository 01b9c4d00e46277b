// Package uploads keeps uploaded spreadsheets on disk until a queued
// import has processed them.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrOutsideStorage = errors.New("path is outside the upload directory")

type Storage struct {
	Dir string
}

func NewStorage(dir string) *Storage {
	return &Storage{Dir: dir}
}

// Save copies r into a new file named with a UUID4 and the extension of
// originalName, and returns its path.
func (s *Storage) Save(r io.Reader, originalName string) (string, error) {
	if err := s.ensureDir(); err != nil {
		return "", fmt.Errorf("failed to ensure upload directory: %w", err)
	}

	name := uuid.New().String() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(s.Dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	return path, nil
}

// SaveMultipart stores an uploaded form file.
func (s *Storage) SaveMultipart(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()
	return s.Save(src, fh.Filename)
}

// Remove deletes a stored upload. Missing files are not an error.
func (s *Storage) Remove(path string) error {
	if !s.contains(path) {
		return ErrOutsideStorage
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveOlderThan deletes uploads last modified before cutoff.
func (s *Storage) RemoveOlderThan(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.Dir, entry.Name())); err != nil && !os.IsNotExist(err) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (s *Storage) contains(path string) bool {
	dir, err := filepath.Abs(s.Dir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// ensureDir creates the upload directory if it doesn't exist
func (s *Storage) ensureDir() error {
	if _, err := os.Stat(s.Dir); os.IsNotExist(err) {
		if err := os.MkdirAll(s.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create upload directory: %w", err)
		}
	}
	return nil
}
