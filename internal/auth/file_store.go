package auth

import (
	"errors"
	"os"

	"github.com/cursor-proxy/CursorProxyAPI/internal/auth/cursor"
	"github.com/cursor-proxy/CursorProxyAPI/internal/misc"
)

// FileStore persists the credential record as the Cursor CLI's auth.json.
type FileStore struct {
	Path string
}

// NewFileStore creates a store at the given path, defaulting to the
// platform auth.json location.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = misc.CursorAuthFilePath()
	}
	return &FileStore{Path: path}
}

// Load reads the credential record from disk. A missing file yields a nil
// record without an error.
func (s *FileStore) Load() (*cursor.CursorTokenStorage, error) {
	record, err := cursor.LoadTokenFromFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// Save writes the credential record to disk.
func (s *FileStore) Save(record *cursor.CursorTokenStorage) error {
	misc.LogSavingCredentials(s.Path)
	return record.SaveTokenToFile(s.Path)
}

// Clear removes the credential file.
func (s *FileStore) Clear() error {
	err := os.Remove(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
