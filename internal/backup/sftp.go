// Package backup copies archived snapshots off the host.
package backup

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/pkg/sftp"

	"github.com/jbweber/vmwatch/internal/sshutil"
)

// Uploader stores a named snapshot document somewhere durable.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) error
}

// remoteFS is the subset of an SFTP session the uploader needs.
type remoteFS interface {
	MkdirAll(dir string) error
	Create(name string) (io.WriteCloser, error)
	Rename(oldname, newname string) error
	Close() error
}

type dialFunc func(ctx context.Context, target sshutil.Target) (remoteFS, error)

// SFTPUploader writes snapshots into Dir on a remote host over SFTP.
type SFTPUploader struct {
	Target sshutil.Target
	Dir    string

	dial dialFunc
}

// NewSFTPUploader returns an uploader using a real SSH connection per upload.
func NewSFTPUploader(target sshutil.Target, dir string) *SFTPUploader {
	return &SFTPUploader{Target: target, Dir: dir, dial: dialSFTP}
}

// Upload writes data to Dir/name. The file is written under a temporary
// name and renamed into place once complete.
func (u *SFTPUploader) Upload(ctx context.Context, name string, data []byte) error {
	dial := u.dial
	if dial == nil {
		dial = dialSFTP
	}

	fs, err := dial(ctx, u.Target)
	if err != nil {
		return fmt.Errorf("failed to connect to backup host %s: %w", u.Target.Addr(), err)
	}
	defer func() { _ = fs.Close() }()

	if u.Dir != "" {
		if err := fs.MkdirAll(u.Dir); err != nil {
			return fmt.Errorf("failed to create backup directory %s: %w", u.Dir, err)
		}
	}

	dst := path.Join(u.Dir, name)
	tmp := dst + ".partial"

	f, err := fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}

	if err := fs.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to move backup into place at %s: %w", dst, err)
	}
	return nil
}

// SnapshotName returns the remote file name for a snapshot taken at t.
func SnapshotName(t time.Time) string {
	return "previous-" + t.UTC().Format("20060102T150405Z") + ".yaml"
}

// sftpFS adapts *sftp.Client and owns the SSH connection beneath it.
type sftpFS struct {
	client *sftp.Client
	closer io.Closer
}

func dialSFTP(ctx context.Context, target sshutil.Target) (remoteFS, error) {
	conn, err := sshutil.Dial(ctx, target)
	if err != nil {
		return nil, err
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to start SFTP subsystem: %w", err)
	}

	return &sftpFS{client: client, closer: conn}, nil
}

func (s *sftpFS) MkdirAll(dir string) error { return s.client.MkdirAll(dir) }

func (s *sftpFS) Create(name string) (io.WriteCloser, error) {
	f, err := s.client.Create(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Rename replaces newname if it exists.
func (s *sftpFS) Rename(oldname, newname string) error {
	return s.client.PosixRename(oldname, newname)
}

func (s *sftpFS) Close() error {
	clientErr := s.client.Close()
	connErr := s.closer.Close()
	if clientErr != nil {
		return clientErr
	}
	return connErr
}
