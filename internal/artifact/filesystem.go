package artifact

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/colthorp/planning-cli-go/internal/core"
)

// FilesystemBackend stores PNG files on disk.
// Directory layout: <root>/DD_MM_YYYY.png
type FilesystemBackend struct {
	root      string
	writeLock sync.Mutex
}

// NewFilesystemBackend creates a new filesystem-based artifact backend.
func NewFilesystemBackend(root string) *FilesystemBackend {
	if root == "" {
		root = core.ScreenshotsRoot()
	}
	return &FilesystemBackend{root: root}
}

// Root returns the directory artifacts are written to.
func (b *FilesystemBackend) Root() string {
	return b.root
}

// Location returns the filesystem path for the given key.
func (b *FilesystemBackend) Location(key string) string {
	return filepath.Join(b.root, core.ArtifactName(key))
}

// Read returns the artifact bytes for key.
func (b *FilesystemBackend) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.Location(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "read artifact %s", key)
	}
	return data, nil
}

// Exists reports whether an artifact file is present for key.
func (b *FilesystemBackend) Exists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(b.Location(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "stat artifact %s", key)
	}
	return !info.IsDir(), nil
}

// Write persists the artifact atomically.
func (b *FilesystemBackend) Write(_ context.Context, key string, data []byte) error {
	path := b.Location(key)

	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	// Ensure directory exists
	if err := os.MkdirAll(b.root, 0755); err != nil {
		return errors.Wrap(err, "create artifact directory")
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return errors.Wrapf(err, "write artifact %s", key)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "replace artifact %s", key)
	}
	return nil
}
