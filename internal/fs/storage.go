package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pavel-fokin/filexfer/internal/files"
)

// Storage implements files.FileStorage on one flat directory.
//
// Operations on the same name from different connections are not ordered:
// the last writer wins and a reader may observe a file that is still being
// written.
type Storage struct {
	dataDir string
}

// NewStorage creates a new filesystem storage. The directory is created on
// the first write.
func NewStorage(dataDir string) *Storage {
	return &Storage{
		dataDir: dataDir,
	}
}

// Resolve reduces name to its basename and joins it under the data
// directory. Both '/' and '\' count as separators.
func (s *Storage) Resolve(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", files.ErrInvalidName, name)
	}

	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if base == "" || base == "." || base == ".." {
		return "", fmt.Errorf("%w: %q", files.ErrInvalidName, name)
	}

	root, err := filepath.Abs(s.dataDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}
	path := filepath.Join(root, base)
	if filepath.Dir(path) != root {
		return "", fmt.Errorf("%w: %q", files.ErrInvalidName, name)
	}

	return path, nil
}

// List returns the regular files in the data directory, sorted by name
func (s *Storage) List() ([]files.File, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []files.File{}, nil
		}
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	list := make([]files.File, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		list = append(list, files.File{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	return list, nil
}

// Create opens a file for writing, truncating it if it exists
func (s *Storage) Create(name string) (io.WriteCloser, error) {
	filePath, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return file, nil
}

// ReadAll returns the content of a regular file
func (s *Storage) ReadAll(name string) ([]byte, error) {
	filePath, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, files.ErrNotFound
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}

// Delete removes a regular file and reports whether it existed
func (s *Storage) Delete(name string) (bool, error) {
	filePath, err := s.Resolve(name)
	if err != nil {
		return false, err
	}

	info, err := os.Lstat(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil // File already deleted
		}
		return false, fmt.Errorf("failed to delete file: %w", err)
	}

	return true, nil
}
