// Package local provides a local file system implementation of the storage
// adapter interface.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	storageAdapter "github.com/kgforge/kgforge/pkg/kgforge/adapter/storage"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

// localAdapter implements storage.Storage on top of a base directory.
type localAdapter struct {
	baseDir string
}

var _ storageAdapter.Storage = (*localAdapter)(nil)

// NewLocalAdapter creates a storage adapter rooted at baseDir, creating the
// directory if it does not exist.
func NewLocalAdapter(baseDir string) (storageAdapter.Storage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("local storage adapter: baseDir must be specified")
	}
	info, err := os.Stat(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(baseDir, 0755); err != nil {
				return nil, fmt.Errorf("local storage adapter: failed to create baseDir '%s': %w", baseDir, err)
			}
		} else {
			return nil, fmt.Errorf("local storage adapter: failed to stat baseDir '%s': %w", baseDir, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("local storage adapter: baseDir '%s' is not a directory", baseDir)
	}

	return &localAdapter{baseDir: baseDir}, nil
}

// resolvePath joins objectName onto the base directory and rejects paths
// escaping it.
func (a *localAdapter) resolvePath(objectName string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(objectName))
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("object name '%s' escapes base directory", objectName)
	}
	return filepath.Join(a.baseDir, cleaned), nil
}

// Upload writes data to the object path, creating parent directories as needed.
func (a *localAdapter) Upload(ctx context.Context, objectName string, data io.Reader) error {
	fullPath, err := a.resolvePath(objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", filepath.Dir(fullPath), err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file '%s': %w", fullPath, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return fmt.Errorf("failed to write data to file '%s': %w", fullPath, err)
	}
	logger.Debugf("Uploaded artifact to '%s'.", fullPath)
	return nil
}

// Download opens the object for reading.
func (a *localAdapter) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(objectName)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, err)
	}
	return file, nil
}

// ListObjects walks the prefix directory and calls fn for each regular file,
// reporting slash-separated names relative to the base directory.
func (a *localAdapter) ListObjects(ctx context.Context, prefix string, fn func(objectName string) error) error {
	root, err := a.resolvePath(prefix)
	if err != nil {
		return err
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(a.baseDir, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
}

// DeleteObject removes the object if present.
func (a *localAdapter) DeleteObject(ctx context.Context, objectName string) error {
	fullPath, err := a.resolvePath(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete '%s': %w", fullPath, err)
	}
	return nil
}
