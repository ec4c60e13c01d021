package cifs

import (
	"os"
	"path"
	"strconv"
	"time"

	"github.com/hirochachacha/go-smb2"

	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
)

// entryStat is the normalized stat information of a directory entry.
type entryStat struct {
	created    time.Time
	modified   time.Time
	changed    time.Time
	accessed   time.Time
	attributes uint32
	// smb reports whether the times and attributes came from the server
	smb bool
}

func statOf(fi os.FileInfo) entryStat {
	if st, ok := fi.Sys().(*smb2.FileStat); ok {
		return entryStat{
			created:    st.CreationTime,
			modified:   st.LastWriteTime,
			changed:    st.ChangeTime,
			accessed:   st.LastAccessTime,
			attributes: st.FileAttributes,
			smb:        true,
		}
	}
	// The local backend only knows the modification time portably.
	return entryStat{modified: fi.ModTime(), changed: fi.ModTime()}
}

// normalizePath cleans a path into record id form: slash separated,
// absolute, no trailing slash. The root is "/".
func normalizePath(p string) string {
	return path.Clean("/" + p)
}

// fileVersion is the change time in epoch milliseconds and the size,
// separated by a space.
func fileVersion(changed time.Time, size int64) string {
	return strconv.FormatInt(changed.UnixMilli(), 10) + " " + strconv.FormatInt(size, 10)
}

// mapEntry converts a directory entry of parent into a record. Directories
// carry neither version nor content.
func mapEntry(parent string, fi os.FileInfo) *core.Record {
	id := normalizePath(path.Join(parent, fi.Name()))
	st := statOf(fi)

	rec := core.NewRecord(id, core.EncodeURI(Scheme, id), fi.Name())
	rec.IsContainer = fi.IsDir()
	rec.ModifiedAt = st.modified

	rec.SetMetadata(core.FieldFilename, fi.Name())
	rec.SetMetadata(core.FieldContainer, rec.IsContainer)
	rec.SetMetadata(core.FieldModified, st.modified.UTC().Format(time.RFC3339))
	if !st.changed.IsZero() {
		rec.SetMetadata(core.FieldChanged, st.changed.UTC().Format(time.RFC3339))
	}
	if st.smb {
		rec.SetMetadata(core.FieldCreated, st.created.UTC().Format(time.RFC3339))
		rec.SetMetadata(core.FieldAccessed, st.accessed.UTC().Format(time.RFC3339))
		rec.SetMetadata("attributes", "0x"+strconv.FormatUint(uint64(st.attributes), 16))
	}

	if !rec.IsContainer {
		rec.Version = fileVersion(st.changed, fi.Size())
		rec.HasContent = true
		rec.Size = fi.Size()
		rec.SetMetadata(core.FieldSize, fi.Size())
	}
	return rec
}
