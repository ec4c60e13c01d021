package cifs

import (
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hirochachacha/go-smb2"

	"github.com/kennyhitachi/hci-connectors/pkg/errors"
)

// Windows file attribute bits.
const (
	attrHidden = 0x2
	attrSystem = 0x4
)

// pathFilter applies the include/exclude pattern lists. Patterns use
// doublestar glob syntax, where ** spans directories.
//
//   - A pattern without a slash is matched against the entry name.
//   - A pattern starting with a slash is anchored at the crawl root and
//     matched against the full normalized path.
//   - Any other pattern matches at any depth: it is tried against the full
//     path and against every trailing run of its segments, so */tmp/*
//     excludes /tmp/x as well as /a/b/tmp/x.
type pathFilter struct {
	include []string
	exclude []string
}

func newPathFilter(include, exclude []string) (*pathFilter, error) {
	for _, list := range [][]string{include, exclude} {
		for _, p := range list {
			if !doublestar.ValidatePattern(p) {
				return nil, errors.Newf(errors.ErrorTypeConfig, "invalid path pattern %q", p).
					WithDetail("pattern", p)
			}
		}
	}
	return &pathFilter{include: include, exclude: exclude}, nil
}

func matchAny(patterns []string, fullPath string) bool {
	for _, p := range patterns {
		if matchPattern(p, fullPath) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, fullPath string) bool {
	switch {
	case !strings.Contains(pattern, "/"):
		return match(pattern, path.Base(fullPath))
	case strings.HasPrefix(pattern, "/"):
		return match(pattern, fullPath)
	}
	if match(pattern, fullPath) {
		return true
	}
	for i := 0; i < len(fullPath); i++ {
		if fullPath[i] != '/' {
			continue
		}
		if match(pattern, fullPath[i:]) || match(pattern, fullPath[i+1:]) {
			return true
		}
	}
	return false
}

func match(pattern, name string) bool {
	ok, _ := doublestar.Match(pattern, name)
	return ok
}

// allows reports whether an entry is listed. Exclusion is checked first.
// Directories are only subject to the exclude list, so traversal can still
// reach included files below them.
func (f *pathFilter) allows(fullPath string, isDir bool) bool {
	if matchAny(f.exclude, fullPath) {
		return false
	}
	if isDir || len(f.include) == 0 {
		return true
	}
	return matchAny(f.include, fullPath)
}

// isHidden reports dot entries and entries carrying the hidden or system
// attribute.
func isHidden(fi os.FileInfo) bool {
	if strings.HasPrefix(fi.Name(), ".") {
		return true
	}
	if st, ok := fi.Sys().(*smb2.FileStat); ok {
		return st.FileAttributes&(attrHidden|attrSystem) != 0
	}
	return false
}

// isDotEntry reports the self and parent directory entries.
func isDotEntry(name string) bool {
	return name == "." || name == ".."
}
