package cifs

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hirochachacha/go-smb2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kennyhitachi/hci-connectors/pkg/config"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/base"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/batch"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
)

const fileAttributeDirectory = 0x10

func smbEntry(name string, dir bool, attrs uint32, size int64, changed time.Time) os.FileInfo {
	if dir {
		attrs |= fileAttributeDirectory
	}
	return &smb2.FileStat{
		FileName:       name,
		FileAttributes: attrs,
		EndOfFile:      size,
		CreationTime:   changed.Add(-time.Hour),
		LastWriteTime:  changed,
		ChangeTime:     changed,
		LastAccessTime: changed,
	}
}

// fakeDir serves entries in pages and records how it was used.
type fakeDir struct {
	entries []os.FileInfo
	pos     int
	reads   int
	closed  int
}

func (d *fakeDir) Readdir(n int) ([]os.FileInfo, error) {
	d.reads++
	rest := d.entries[d.pos:]
	if n <= 0 {
		d.pos = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if n > len(rest) {
		n = len(rest)
	}
	d.pos += n
	return rest[:n], nil
}

func (d *fakeDir) Close() error {
	d.closed++
	return nil
}

type fakeShare struct {
	dirs  map[string]*fakeDir
	stats map[string]os.FileInfo
	files map[string]string
}

func (f *fakeShare) Stat(_ context.Context, name string) (os.FileInfo, error) {
	if fi, ok := f.stats[name]; ok {
		return fi, nil
	}
	return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
}

func (f *fakeShare) OpenDir(_ context.Context, name string) (dirReader, error) {
	if d, ok := f.dirs[name]; ok {
		return d, nil
	}
	return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
}

func (f *fakeShare) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if s, ok := f.files[name]; ok {
		return io.NopCloser(strings.NewReader(s)), nil
	}
	return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
}

func newFakeSource(t *testing.T, share fileShare, props map[string]string) *CIFSSource {
	t.Helper()
	cfg := config.NewBaseConfig("share-test", "source")
	cfg.Properties["backend"] = BackendLocal
	cfg.Properties["base_path"] = "/unused"
	for k, v := range props {
		cfg.Properties[k] = v
	}

	s := &CIFSSource{
		BaseConnector: base.NewBaseConnector(Scheme, core.ConnectorTypeSource, "1.0.0"),
		share:         share,
	}
	require.NoError(t, s.Initialize(context.Background(), cfg))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func ids(recs []*core.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	sort.Strings(out)
	return out
}

func TestFileVersion(t *testing.T) {
	assert.Equal(t, "1700000000000 42", fileVersion(time.UnixMilli(1700000000000), 42))

	rec := mapEntry("/docs", smbEntry("a.txt", false, 0, 42, time.UnixMilli(1700000000000)))
	assert.Equal(t, "/docs/a.txt", rec.ID)
	assert.Equal(t, "cifs:///docs/a.txt", rec.URI)
	assert.Equal(t, "1700000000000 42", rec.Version)
	assert.True(t, rec.HasContent)
	assert.Equal(t, int64(42), rec.Metadata[core.FieldSize])
	assert.Equal(t, "0x0", rec.Metadata["attributes"])

	dir := mapEntry("/", smbEntry("sub", true, 0, 0, time.UnixMilli(1700000000000)))
	assert.Equal(t, "/sub", dir.ID)
	assert.True(t, dir.IsContainer)
	assert.Empty(t, dir.Version)
	assert.False(t, dir.HasContent)
	assert.NotContains(t, dir.Metadata, core.FieldSize)
}

func TestNormalizePath(t *testing.T) {
	for in, want := range map[string]string{
		"":         "/",
		"/":        "/",
		"a/b/":     "/a/b",
		"/a//b/..": "/a",
	} {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestPathFilter(t *testing.T) {
	f, err := newPathFilter([]string{"*.pdf"}, []string{"*/tmp/*"})
	require.NoError(t, err)

	assert.False(t, f.allows("/tmp/report.pdf", false))
	assert.False(t, f.allows("/a/tmp/report.pdf", false))
	assert.False(t, f.allows("/a/b/tmp/report.pdf", false))
	assert.True(t, f.allows("/docs/report.pdf", false))
	assert.True(t, f.allows("/docs/tmpfiles/report.pdf", false))
	assert.False(t, f.allows("/docs/notes.txt", false))
	// directories only answer to the exclude list
	assert.True(t, f.allows("/docs", true))
	assert.False(t, f.allows("/a/tmp/x", true))

	everything, err := newPathFilter(nil, nil)
	require.NoError(t, err)
	assert.True(t, everything.allows("/any/file", false))

	_, err = newPathFilter([]string{"[a-"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestPathPatternForms(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.pdf", "/a/b/report.pdf", true},
		{"*.pdf", "/a/report.pdf/notes.txt", false},
		{"/tmp/*", "/tmp/x", true},
		{"/tmp/*", "/a/tmp/x", false},
		{"/reports/**", "/reports/2024/q1/a.txt", true},
		{"/reports/**", "/old/reports/a.txt", false},
		{"**/cache", "/a/b/cache", true},
		{"build/*.o", "/src/build/main.o", true},
		{"build/*.o", "/src/build/sub/main.o", false},
		{"*/tmp/*", "/tmp", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchPattern(tt.pattern, tt.path), "%s ~ %s", tt.pattern, tt.path)
	}
}

func TestListPagesAndFilters(t *testing.T) {
	changed := time.UnixMilli(1700000000000)
	root := &fakeDir{entries: []os.FileInfo{
		smbEntry(".", true, 0, 0, changed),
		smbEntry("..", true, 0, 0, changed),
		smbEntry("a.txt", false, 0, 1, changed),
		smbEntry(".profile", false, 0, 1, changed),
		smbEntry("desktop.ini", false, attrHidden|attrSystem, 1, changed),
		smbEntry("b.txt", false, 0, 2, changed),
		smbEntry("sub", true, 0, 0, changed),
	}}
	share := &fakeShare{dirs: map[string]*fakeDir{"/": root}}
	s := newFakeSource(t, share, map[string]string{"batch_size": "3"})

	rootRec, err := s.Root(context.Background())
	require.NoError(t, err)
	it, err := s.List(context.Background(), rootRec)
	require.NoError(t, err)

	recs, err := batch.Drain(context.Background(), it)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.txt", "/b.txt", "/sub"}, ids(recs))

	// 7 entries in pages of 3 plus the EOF read
	assert.Equal(t, 4, root.reads)
	assert.Equal(t, 1, root.closed)
}

func TestListIncludeHidden(t *testing.T) {
	changed := time.Now()
	root := &fakeDir{entries: []os.FileInfo{
		smbEntry("desktop.ini", false, attrHidden, 1, changed),
		smbEntry(".git", true, 0, 0, changed),
	}}
	s := newFakeSource(t, &fakeShare{dirs: map[string]*fakeDir{"/": root}},
		map[string]string{"include_hidden": "true", "batch_size": "0"})

	rootRec, err := s.Root(context.Background())
	require.NoError(t, err)
	it, err := s.List(context.Background(), rootRec)
	require.NoError(t, err)
	recs, err := batch.Drain(context.Background(), it)
	require.NoError(t, err)

	assert.Equal(t, []string{"/.git", "/desktop.ini"}, ids(recs))
	assert.Equal(t, 1, root.reads)
}

func TestListMissingDirectory(t *testing.T) {
	s := newFakeSource(t, &fakeShare{}, nil)

	dir := core.NewRecord("/gone", core.EncodeURI(Scheme, "/gone"), "gone")
	dir.IsContainer = true
	_, err := s.List(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	leaf := core.NewRecord("/a.txt", core.EncodeURI(Scheme, "/a.txt"), "a.txt")
	_, err = s.List(context.Background(), leaf)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestGetAndOpen(t *testing.T) {
	changed := time.UnixMilli(1700000000000)
	share := &fakeShare{
		stats: map[string]os.FileInfo{
			"/docs/a b.txt": smbEntry("a b.txt", false, 0, 5, changed),
			"/docs":         smbEntry("docs", true, 0, 0, changed),
		},
		files: map[string]string{"/docs/a b.txt": "hello"},
	}
	s := newFakeSource(t, share, nil)
	ctx := context.Background()

	rec, err := s.Get(ctx, "cifs:///docs/a%20b.txt")
	require.NoError(t, err)
	assert.Equal(t, "/docs/a b.txt", rec.ID)
	assert.Equal(t, "1700000000000 5", rec.Version)

	rc, err := s.Open(ctx, rec.URI)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	require.NoError(t, rc.Close())
	require.NoError(t, rc.Close())

	_, err = s.Get(ctx, "cifs:///docs/missing.txt")
	assert.True(t, errors.IsNotFound(err))

	_, err = s.Open(ctx, "cifs:///docs")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	root, err := s.Get(ctx, "cifs:///")
	require.NoError(t, err)
	assert.True(t, root.IsContainer)
	assert.Equal(t, "/", root.ID)
}

func TestLocalBackendCrawl(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs", "tmp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "report.pdf"), []byte("pdf"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "tmp", "report.pdf"), []byte("tmp"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "notes.txt"), []byte("txt"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.pdf"), []byte("x"), 0o644))

	cfg := config.NewBaseConfig("local", "source")
	cfg.Properties["backend"] = BackendLocal
	cfg.Properties["base_path"] = dir
	cfg.Properties["include_patterns"] = "*.pdf"
	cfg.Properties["exclude_patterns"] = "/*/tmp"
	cfg.Properties["batch_size"] = "1"

	src, err := NewCIFSSource(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, src.Initialize(ctx, cfg))
	defer src.Close(ctx)

	var files []string
	var walk func(*core.Record)
	walk = func(container *core.Record) {
		it, err := src.List(ctx, container)
		require.NoError(t, err)
		defer it.Close()
		for it.Next(ctx) {
			rec := it.Record()
			if rec.IsContainer {
				walk(rec)
				continue
			}
			files = append(files, rec.ID)
		}
		require.NoError(t, it.Err())
	}

	root, err := src.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, dir, root.DisplayName)
	walk(root)

	assert.Equal(t, []string{"/docs/report.pdf"}, files)

	rc, err := src.Open(ctx, core.EncodeURI(Scheme, "/docs/report.pdf"))
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pdf", string(data))
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]string
		want  string
	}{
		{"missing host", map[string]string{"share": "docs"}, "host"},
		{"missing share", map[string]string{"host": "fs01"}, "share"},
		{"bad port", map[string]string{"host": "fs01", "share": "docs", "port": "70000"}, "port"},
		{"bad batch", map[string]string{"host": "fs01", "share": "docs", "batch_size": "ten"}, "batch_size"},
		{"unknown backend", map[string]string{"backend": "nfs"}, "backend"},
		{"local without base path", map[string]string{"backend": "local"}, "base_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewBaseConfig("cfg", "source")
			for k, v := range tt.props {
				cfg.Properties[k] = v
			}
			src, err := NewCIFSSource(cfg)
			require.NoError(t, err)
			err = src.Initialize(context.Background(), cfg)
			require.Error(t, err)
			assert.True(t, errors.IsConfig(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDialFailureReleasesConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	closer := base.NewCloser()
	_, err = dialSMB(context.Background(), smbOptions{
		host:  "127.0.0.1",
		port:  port,
		share: "docs",
	}, closer, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.True(t, errors.IsConnection(err))
	assert.Equal(t, 0, closer.Len())
}
