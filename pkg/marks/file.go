package marks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PersistenceError reports a failure to read or write the marks file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("marks: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// DefaultPath returns ~/.local/share/marker/marks.json.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "marker", "marks.json"), nil
}

// File persists a Store to a JSON document on disk.
type File struct {
	path string
}

// NewFile creates a file persister. An empty path uses DefaultPath.
func NewFile(path string) (*File, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &File{path: path}, nil
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load replaces the contents of store with the persisted snapshot.
//
// A missing file leaves the store empty and is not an error. An unreadable
// or malformed file also leaves the store empty, and the returned
// *PersistenceError says why.
func (f *File) Load(store *Store) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		store.Restore(Snapshot{})
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &PersistenceError{Op: "read", Path: f.path, Err: err}
	}

	snap, warnings, err := Decode(data)
	if err != nil {
		store.Restore(Snapshot{})
		return &PersistenceError{Op: "decode", Path: f.path, Err: err}
	}
	for _, w := range warnings {
		store.logger.Warnf("%s: %s", f.path, w)
	}
	store.Restore(snap)
	store.logger.Debugf("loaded %d marks from %s", store.Len(), f.path)
	return nil
}

// Save writes the store atomically: the snapshot goes to a temporary file
// which is then renamed over the target.
func (f *File) Save(store *Store) error {
	data, err := Encode(store.Snapshot())
	if err != nil {
		return &PersistenceError{Op: "encode", Path: f.path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return &PersistenceError{Op: "create directory", Path: f.path, Err: err}
	}

	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		_ = os.Remove(tempPath)
		return &PersistenceError{Op: "write", Path: tempPath, Err: err}
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		_ = os.Remove(tempPath)
		return &PersistenceError{Op: "rename", Path: f.path, Err: err}
	}

	store.logger.Debugf("saved %d marks to %s", store.Len(), f.path)
	return nil
}
