package backup

import (
	"bytes"
	"context"
	"io"

	"github.com/jbweber/vmwatch/internal/sshutil"
)

// mockFS records what the uploader does to the remote side.
type mockFS struct {
	files   map[string][]byte
	dirs    []string
	renames [][2]string
	closed  bool

	mkdirErr  error
	createErr error
	writeErr  error
	renameErr error
}

func newMockFS() *mockFS {
	return &mockFS{files: make(map[string][]byte)}
}

func (m *mockFS) MkdirAll(dir string) error {
	if m.mkdirErr != nil {
		return m.mkdirErr
	}
	m.dirs = append(m.dirs, dir)
	return nil
}

func (m *mockFS) Create(name string) (io.WriteCloser, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &mockFile{fs: m, name: name, writeErr: m.writeErr}, nil
}

func (m *mockFS) Rename(oldname, newname string) error {
	if m.renameErr != nil {
		return m.renameErr
	}
	m.files[newname] = m.files[oldname]
	delete(m.files, oldname)
	m.renames = append(m.renames, [2]string{oldname, newname})
	return nil
}

func (m *mockFS) Close() error {
	m.closed = true
	return nil
}

type mockFile struct {
	fs       *mockFS
	name     string
	buf      bytes.Buffer
	writeErr error
}

func (f *mockFile) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.buf.Write(p)
}

func (f *mockFile) Close() error {
	f.fs.files[f.name] = f.buf.Bytes()
	return nil
}

func dialTo(fs *mockFS, err error) dialFunc {
	return func(context.Context, sshutil.Target) (remoteFS, error) {
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
}
