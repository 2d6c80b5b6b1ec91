package filestore

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileStore keeps payloads as files inside a directory.
type FileStore struct {
	dir string
}

// New returns new filestore rooted at the directory, creating it if needed.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	return &FileStore{
		dir: dir,
	}, nil
}

// Create writes a new payload under the name.
func (fs *FileStore) Create(name string, data []byte) error {
	path := fs.path(name)
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("payload already exists: %s", name)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Size returns the byte size of the payload.
func (fs *FileStore) Size(name string) (int64, error) {
	info, err := os.Stat(fs.path(name))
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return info.Size(), nil
}

// ReadAt fills p with payload bytes starting at the offset.
func (fs *FileStore) ReadAt(name string, p []byte, off int64) error {
	f, err := os.Open(fs.path(name))
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	if _, err := f.ReadAt(p, off); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Remove deletes the payload.
func (fs *FileStore) Remove(name string) error {
	if err := os.Remove(fs.path(name)); err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}

func (fs *FileStore) path(name string) string {
	return filepath.Join(fs.dir, name+".wb")
}
