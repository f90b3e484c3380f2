package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/logs"
)

// FileBackend stores each document as a file under Root.
// Documents hold admin credentials, so files are created owner-only (0600).
type FileBackend struct {
	Root string
	log  logs.Log
}

func NewFileBackend(log logs.Log, root string) (*FileBackend, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0700); err != nil {
		return nil, fmt.Errorf("Failed to create data directory %v (relative path %v): %w", absRoot, root, err)
	}
	return &FileBackend{
		Root: absRoot,
		log:  log,
	}, nil
}

func (f *FileBackend) fullPath(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("Invalid document name %v", name)
	}
	return filepath.Join(f.Root, name), nil
}

func (f *FileBackend) Read(ctx context.Context, name string) ([]byte, error) {
	fullPath, err := f.fullPath(name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	return raw, err
}

func (f *FileBackend) Write(ctx context.Context, name string, data []byte) error {
	fullPath, err := f.fullPath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0700); err != nil {
		return err
	}
	// Write to a temp file and rename, so that a crash mid-write can't leave a
	// half-written document behind.
	tmpPath := fullPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (f *FileBackend) Delete(ctx context.Context, name string) error {
	fullPath, err := f.fullPath(name)
	if err != nil {
		return err
	}
	err = os.Remove(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotExist
	}
	return err
}
