// Package cifs crawls a directory tree on an SMB2/3 share. Directories are
// containers listed one Readdir page at a time; files are leaf records whose
// id is their normalized path below the configured base path.
package cifs

import (
	"context"
	"io"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/kennyhitachi/hci-connectors/pkg/config"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/base"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/batch"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	"github.com/kennyhitachi/hci-connectors/pkg/metrics"
	"github.com/kennyhitachi/hci-connectors/pkg/observability"
)

// Scheme prefixes the URIs of records produced by this source.
const Scheme = "cifs"

// Backends
const (
	BackendSMB   = "smb"
	BackendLocal = "local"
)

const defaultSMBPort = 445

// CIFSSource implements core.Source for an SMB share.
type CIFSSource struct {
	*base.BaseConnector

	// Configuration
	backend       string
	smb           smbOptions
	filter        *pathFilter
	includeHidden bool
	batchSize     int

	// Session
	share fileShare
}

// NewCIFSSource creates a new CIFS source connector
func NewCIFSSource(_ *config.BaseConfig) (core.Source, error) {
	return &CIFSSource{
		BaseConnector: base.NewBaseConnector(Scheme, core.ConnectorTypeSource, "1.0.0"),
	}, nil
}

// Initialize parses the configuration and mounts the share.
func (s *CIFSSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}
	if err := s.parseConfig(cfg); err != nil {
		return err
	}
	if err := s.open(ctx); err != nil {
		return err
	}

	s.GetMetricsCollector().SessionOpened()
	s.Closer().Push("session_gauge", func() error {
		s.GetMetricsCollector().SessionClosed()
		return nil
	})

	s.GetLogger().Info("CIFS source initialized",
		zap.String("backend", s.backend),
		zap.String("root", s.rootName()),
		zap.Int("batch_size", s.batchSize))
	return nil
}

func (s *CIFSSource) parseConfig(cfg *config.BaseConfig) error {
	s.backend = strings.ToLower(cfg.String("backend", BackendSMB))
	s.smb.basePath = normalizePath(cfg.String("base_path", "/"))

	switch s.backend {
	case BackendSMB:
		var err error
		if s.smb.host, err = cfg.RequireString("host"); err != nil {
			return err
		}
		if s.smb.share, err = cfg.RequireString("share"); err != nil {
			return err
		}
		if s.smb.port, err = cfg.Int("port", defaultSMBPort); err != nil {
			return err
		}
		if s.smb.port <= 0 || s.smb.port > 65535 {
			return errors.Newf(errors.ErrorTypeConfig, "port %d out of range", s.smb.port).
				WithDetail("property", "port")
		}
		s.smb.domain = cfg.String("domain", "")
		s.smb.username = cfg.Secret("username")
		s.smb.password = cfg.Secret("password")
	case BackendLocal:
		if _, ok := cfg.Property("base_path"); !ok {
			return errors.New(errors.ErrorTypeConfig, "missing required property: base_path").
				WithDetail("property", "base_path")
		}
		s.smb.basePath = cfg.String("base_path", "")
	default:
		return errors.Newf(errors.ErrorTypeConfig, "backend must be %q or %q, got %q",
			BackendSMB, BackendLocal, s.backend)
	}

	filter, err := newPathFilter(cfg.List("include_patterns"), cfg.List("exclude_patterns"))
	if err != nil {
		return err
	}
	s.filter = filter

	if s.includeHidden, err = cfg.Bool("include_hidden", false); err != nil {
		return err
	}
	if s.batchSize, err = cfg.BatchSize(); err != nil {
		return err
	}
	return nil
}

// open establishes the session unless a share was injected.
func (s *CIFSSource) open(ctx context.Context) error {
	if s.share != nil {
		return nil
	}

	if s.backend == BackendLocal {
		share, err := newLocalShare(s.smb.basePath)
		if err != nil {
			return err
		}
		s.share = share
		return nil
	}

	dialCtx := ctx
	if d := s.GetConfig().Timeouts.Connection; d > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	share, err := dialSMB(dialCtx, s.smb, s.Closer(), s.GetLogger())
	if err != nil {
		s.GetMetricsCollector().RecordError(string(errors.ErrorTypeConnection))
		return err
	}
	s.share = share
	return nil
}

func (s *CIFSSource) rootName() string {
	if s.backend == BackendLocal {
		return s.smb.basePath
	}
	name := `\\` + s.smb.host + `\` + s.smb.share
	if s.smb.basePath != "/" {
		name += strings.ReplaceAll(s.smb.basePath, "/", `\`)
	}
	return name
}

// Root returns the directory at the base path.
func (s *CIFSSource) Root(ctx context.Context) (*core.Record, error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}
	rec := core.NewRecord("/", core.EncodeURI(Scheme, "/"), s.rootName())
	rec.IsContainer = true
	rec.SetMetadata(core.FieldContainer, true)
	rec.SetMetadata("backend", s.backend)
	return rec, nil
}

// List pages through the entries of a directory record. The directory is
// opened once; the iterator closes it.
func (s *CIFSSource) List(ctx context.Context, container *core.Record) (core.RecordIterator, error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}
	if container == nil || !container.IsContainer {
		return nil, errors.New(errors.ErrorTypeValidation, "list requires a directory record")
	}

	dirPath := normalizePath(container.ID)
	dir, err := s.share.OpenDir(ctx, dirPath)
	if err != nil {
		return nil, s.GetErrorHandler().Surface(err, errors.ErrorTypeOperationFailed,
			"failed to open directory", zap.String("path", dirPath))
	}

	pager := func(ctx context.Context, _ int, limit int) ([]os.FileInfo, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := dir.Readdir(limit)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, s.GetErrorHandler().Surface(err, errors.ErrorTypeOperationFailed,
				"failed to read directory", zap.String("path", dirPath))
		}
		return entries, nil
	}

	cursor := batch.NewCursor[os.FileInfo](batch.PagerFunc[os.FileInfo](pager), s.batchSize,
		batch.WithConnector(s.Name(), s.GetMetricsCollector()),
		batch.WithShortPageEnd(false))

	return batch.NewLister(cursor,
		func(fi os.FileInfo) (*core.Record, error) { return mapEntry(dirPath, fi), nil },
		func(fi os.FileInfo) bool { return s.accept(dirPath, fi) },
		batch.ListerConfig{
			Policy:    s.ItemPolicy(),
			Logger:    s.GetLogger().With(zap.String("path", dirPath)),
			Collector: s.GetMetricsCollector(),
			OnClose:   dir.Close,
		}), nil
}

// accept applies the dot-entry, hidden and pattern rules to one entry.
func (s *CIFSSource) accept(dirPath string, fi os.FileInfo) bool {
	if isDotEntry(fi.Name()) {
		return false
	}
	if !s.includeHidden && isHidden(fi) {
		return false
	}
	return s.filter.allows(path.Join(dirPath, fi.Name()), fi.IsDir())
}

// stat resolves a record id to its stat information.
func (s *CIFSSource) stat(ctx context.Context, uri string) (string, os.FileInfo, error) {
	id, err := core.DecodeURI(Scheme, uri)
	if err != nil {
		return "", nil, err
	}
	id = normalizePath(id)
	fi, err := s.share.Stat(ctx, id)
	if err != nil {
		return "", nil, s.GetErrorHandler().Surface(err, errors.ErrorTypeOperationFailed,
			"failed to stat path", zap.String("path", id))
	}
	return id, fi, nil
}

// Get re-resolves a record by path.
func (s *CIFSSource) Get(ctx context.Context, uri string) (*core.Record, error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}
	if id, err := core.DecodeURI(Scheme, uri); err == nil && normalizePath(id) == "/" {
		return s.Root(ctx)
	}

	id, fi, err := s.stat(ctx, uri)
	if err != nil {
		return nil, err
	}
	return mapEntry(path.Dir(id), fi), nil
}

// Open streams a file. Closing the reader closes the remote handle.
func (s *CIFSSource) Open(ctx context.Context, uri string) (_ io.ReadCloser, err error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "cifs.open", s.Name())
	defer func() { observability.EndSpan(span, err) }()

	id, fi, err := s.stat(ctx, uri)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, errors.New(errors.ErrorTypeValidation, "directories have no content").
			WithDetail("path", id)
	}

	f, err := s.share.Open(ctx, id)
	if err != nil {
		return nil, s.GetErrorHandler().Surface(err, errors.ErrorTypeOperationFailed,
			"failed to open file", zap.String("path", id))
	}
	return &contentReader{rc: f, collector: s.GetMetricsCollector()}, nil
}

// contentReader counts the bytes read and closes the file handle once.
type contentReader struct {
	rc        io.ReadCloser
	collector *metrics.Collector
	closed    bool
}

func (r *contentReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if n > 0 {
		r.collector.RecordBytes(int64(n))
	}
	return n, err
}

func (r *contentReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rc.Close()
}
