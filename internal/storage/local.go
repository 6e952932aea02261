package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// The receipt directory is not meant to be browsable when served by a web server.
const denyListing = "Options -Indexes\nDeny from all\n"

type LocalDisk struct {
	root    string
	baseURL string
}

func NewLocal(root string, baseURL string) (*LocalDisk, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage/local: root directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("storage/local: mkdir: %w", err)
	}
	guard := filepath.Join(root, ".htaccess")
	if _, err := os.Stat(guard); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(guard, []byte(denyListing), 0o640); err != nil {
			return nil, fmt.Errorf("storage/local: write .htaccess: %w", err)
		}
	}
	return &LocalDisk{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// resolve confines key to the root and returns the absolute file path and the
// slash-separated relative path.
func (d *LocalDisk) resolve(key string) (string, string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", "", fmt.Errorf("storage/local: empty key")
	}
	return filepath.Join(d.root, clean), strings.TrimLeft(filepath.ToSlash(clean), "/"), nil
}

func (d *LocalDisk) Put(_ context.Context, key string, content []byte, _ string) (string, error) {
	full, rel, err := d.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("storage/local: mkdir: %w", err)
	}
	if err := os.WriteFile(full, content, 0o640); err != nil {
		return "", fmt.Errorf("storage/local: write %s: %w", key, err)
	}
	return rel, nil
}

func (d *LocalDisk) URL(path string) string {
	if path == "" {
		return ""
	}
	return d.baseURL + "/" + strings.TrimLeft(path, "/")
}
