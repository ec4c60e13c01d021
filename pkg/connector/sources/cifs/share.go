package cifs

import (
	"context"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hirochachacha/go-smb2"
	"go.uber.org/zap"

	"github.com/kennyhitachi/hci-connectors/pkg/connector/base"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
)

// dirReader is an open directory handle. *smb2.File and *os.File both
// satisfy it: Readdir(n > 0) returns at most n entries and io.EOF once the
// directory is drained; Readdir(n <= 0) returns every remaining entry.
type dirReader interface {
	Readdir(n int) ([]os.FileInfo, error)
	Close() error
}

// fileShare is the file system a session reads from. Names are record ids:
// slash separated and rooted at the configured base path.
type fileShare interface {
	Stat(ctx context.Context, name string) (os.FileInfo, error)
	OpenDir(ctx context.Context, name string) (dirReader, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// smbOptions are the connection settings of an SMB session.
type smbOptions struct {
	host     string
	port     int
	share    string
	basePath string
	domain   string
	username string
	password string
}

// smbShare is a mounted SMB2/3 share.
type smbShare struct {
	fs       *smb2.Share
	basePath string
}

// dialSMB connects, authenticates and mounts the share. Each handle is
// pushed on closer as soon as it exists; when a later step fails the
// handles already opened are released before the error is returned.
func dialSMB(ctx context.Context, opts smbOptions, closer *base.Closer, log *zap.Logger) (*smbShare, error) {
	addr := net.JoinHostPort(opts.host, strconv.Itoa(opts.port))
	fail := func(err error, message string) error {
		closer.CloseAll(log)
		return errors.Wrap(err, errors.ErrorTypeConnection, message).
			WithDetail("address", addr).
			WithDetail("share", opts.share)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fail(err, "failed to connect to SMB server")
	}
	closer.Push("tcp_conn", conn.Close)

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     opts.username,
			Password: opts.password,
			Domain:   opts.domain,
		},
	}
	session, err := dialer.DialContext(ctx, conn)
	if err != nil {
		return nil, fail(err, "failed to establish SMB session")
	}
	closer.Push("smb_session", session.Logoff)

	fs, err := session.Mount(opts.share)
	if err != nil {
		return nil, fail(err, "failed to mount share")
	}
	closer.Push("smb_share", fs.Umount)

	return &smbShare{fs: fs, basePath: opts.basePath}, nil
}

// smbPath maps a record id to a share relative name with backslashes. The
// share root is the empty name.
func (s *smbShare) smbPath(name string) string {
	p := strings.TrimPrefix(path.Join(s.basePath, name), "/")
	return strings.ReplaceAll(p, "/", `\`)
}

func (s *smbShare) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	return s.fs.WithContext(ctx).Stat(s.smbPath(name))
}

func (s *smbShare) OpenDir(ctx context.Context, name string) (dirReader, error) {
	f, err := s.fs.WithContext(ctx).Open(s.smbPath(name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *smbShare) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := s.fs.WithContext(ctx).Open(s.smbPath(name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// localShare serves a directory of the local file system, for mounted
// shares and tests.
type localShare struct {
	root string
}

func newLocalShare(root string) (*localShare, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "base path is not accessible").
			WithDetail("base_path", root)
	}
	if !fi.IsDir() {
		return nil, errors.New(errors.ErrorTypeConfig, "base path is not a directory").
			WithDetail("base_path", root)
	}
	return &localShare{root: root}, nil
}

func (l *localShare) osPath(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(path.Clean("/"+name)))
}

func (l *localShare) Stat(_ context.Context, name string) (os.FileInfo, error) {
	return os.Stat(l.osPath(name))
}

func (l *localShare) OpenDir(_ context.Context, name string) (dirReader, error) {
	f, err := os.Open(l.osPath(name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (l *localShare) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(l.osPath(name))
	if err != nil {
		return nil, err
	}
	return f, nil
}
