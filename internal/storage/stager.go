package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotStaged is returned when a staged key is unknown.
var ErrNotStaged = errors.New("storage: staged file not found")

// Stager holds selected source files between selection and upload.
type Stager interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (key string, size int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// Sweep deletes staged files older than maxAge and reports how many
	// were removed.
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// LocalStager keeps staged files in a directory on disk.
type LocalStager struct {
	dir string
}

func NewLocalStager(dir string) (*LocalStager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &LocalStager{dir: dir}, nil
}

func (s *LocalStager) Put(_ context.Context, name, _ string, r io.Reader) (string, int64, error) {
	key := GenerateStagingKey(name)
	out, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create staged file: %w", err)
	}
	defer out.Close()

	size, err := io.Copy(out, r)
	if err != nil {
		os.Remove(out.Name())
		return "", 0, fmt.Errorf("failed to write staged file: %w", err)
	}
	return key, size, nil
}

func (s *LocalStager) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotStaged
	}
	return f, err
}

func (s *LocalStager) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStager) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list staging directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove staged file: %w", err)
		}
		removed++
	}
	return removed, nil
}

func (s *LocalStager) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) {
		return "", ErrNotStaged
	}
	return filepath.Join(s.dir, key), nil
}

// GenerateStagingKey returns a unique, path-safe key that keeps the original
// extension.
func GenerateStagingKey(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	return fmt.Sprintf("%d_%s%s", time.Now().Unix(), uuid.New().String(), ext)
}
