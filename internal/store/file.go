package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/vmwatch/internal/inventory"
	"github.com/jbweber/vmwatch/internal/reconcile"
)

// FileStore keeps the entity set as a YAML sequence on local disk:
//
//   - identity: 6f1a9c2e-0c4b-4d8e-9a57-1c2d3e4f5a6b
//     name: web-01
//     state: running
//     monitored: "yes"
//
// Writes go through a temporary file in the same directory followed by a
// rename, so readers see either the old or the new document, never a mix.
type FileStore struct {
	path     string
	previous string
}

// NewFileStore returns a store at path. An empty previousPath defaults to
// path + ".previous".
func NewFileStore(path, previousPath string) *FileStore {
	if previousPath == "" {
		previousPath = path + ".previous"
	}
	return &FileStore{path: path, previous: previousPath}
}

// Path returns the current-state file path.
func (s *FileStore) Path() string { return s.path }

// PreviousPath returns the archive file path.
func (s *FileStore) PreviousPath() string { return s.previous }

// Load reads the current set.
func (s *FileStore) Load(_ context.Context) (reconcile.Set, error) {
	return readSetFile(s.path)
}

// LoadPrevious reads the archived set.
func (s *FileStore) LoadPrevious(_ context.Context) (reconcile.Set, error) {
	return readSetFile(s.previous)
}

// Save writes set, sorted by identity, replacing the current file.
func (s *FileStore) Save(_ context.Context, set reconcile.Set) error {
	data, err := Encode(set)
	if err != nil {
		return &IOError{Op: "encode", Path: s.path, Err: err}
	}
	return writeAtomic(s.path, data)
}

// Archive copies the current file byte-for-byte to the previous slot.
func (s *FileStore) Archive(_ context.Context) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &IOError{Op: "read", Path: s.path, Err: err}
	}
	return writeAtomic(s.previous, data)
}

// Lock takes an advisory lock on path + ".lock".
func (s *FileStore) Lock(ctx context.Context) (Unlock, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, &IOError{Op: "create directory for", Path: s.path, Err: err}
	}
	return lockFile(ctx, s.path+".lock")
}

// Close is a no-op; FileStore holds no open handles between calls.
func (s *FileStore) Close() error { return nil }

// Encode renders set in the on-disk format.
func Encode(set reconcile.Set) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(ordered(set)); err != nil {
		return nil, fmt.Errorf("failed to marshal entities to YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal entities to YAML: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode parses the on-disk format.
func Decode(data []byte) (reconcile.Set, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%w: document is empty", ErrCorrupt)
	}

	var entities []inventory.Entity
	if err := yaml.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return toSet(entities)
}

func readSetFile(path string) (reconcile.Set, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return reconcile.Set{}, nil
	}
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	set, err := Decode(data)
	if err != nil {
		return nil, &IOError{Op: "load", Path: path, Err: err}
	}
	return set, nil
}

// writeAtomic replaces path with data via a synced temporary file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "create directory for", Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &IOError{Op: "create temp file for", Path: path, Err: err}
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &IOError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return &IOError{Op: "chmod", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &IOError{Op: "replace", Path: path, Err: err}
	}

	return nil
}
