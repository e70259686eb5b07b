package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bjarke-xyz/appstore-api/internal/domain"
)

type fileDocuments struct {
	paths map[string]string
}

// NewFileDocuments stores each collection in its own JSON file. paths maps a
// collection name to its file.
func NewFileDocuments(paths map[string]string) domain.DocumentRepository {
	return &fileDocuments{paths: paths}
}

func (f *fileDocuments) path(name string) (string, error) {
	p, ok := f.paths[name]
	if !ok {
		return "", fmt.Errorf("no file configured for collection %q: %w", name, domain.ErrIOFailure)
	}
	return p, nil
}

// Load implements domain.DocumentRepository.
func (f *fileDocuments) Load(ctx context.Context, name string) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.Record{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w: %w", path, domain.ErrIOFailure, err)
	}
	return decodeDocument(path, data)
}

// Save implements domain.DocumentRepository. The document is written to a
// temporary file in the same directory and renamed over the old one.
func (f *fileDocuments) Save(ctx context.Context, name string, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.path(name)
	if err != nil {
		return err
	}
	data, err := encodeDocument(records)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w: %w", path, domain.ErrIOFailure, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w: %w", path, domain.ErrIOFailure, err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w: %w", path, domain.ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w: %w", tmp.Name(), domain.ErrIOFailure, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w: %w", path, domain.ErrIOFailure, err)
	}
	return nil
}
