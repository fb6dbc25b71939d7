package fat32

import (
	"os"
	"time"

	"github.com/embedos/fat32/fat"
	"github.com/embedos/fat32/vfile"
)

// vfileInfo implements os.FileInfo over a live VFile handle (Fs.Stat,
// File.Stat).
type vfileInfo struct {
	vf   *vfile.VFile
	name string
}

func (v vfileInfo) Name() string { return v.name }

func (v vfileInfo) Size() int64 {
	if v.vf.IsDir() {
		// Same value dirEntryInfo reports: the directory entry's size field.
		return int64(v.vf.FileSize())
	}
	st, err := v.vf.Stat()
	if err != nil {
		return 0
	}
	return st.Size
}

func (v vfileInfo) Mode() os.FileMode {
	if v.vf.IsDir() {
		return os.ModeDir | 0755
	}
	if v.vf.Attribute()&fat.AttrReadOnly != 0 {
		return 0444
	}
	return 0644
}

func (v vfileInfo) ModTime() time.Time {
	st, err := v.vf.Stat()
	if err != nil {
		return time.Time{}
	}
	return CombineDateTime(st.ModifyDate, st.ModifyTime)
}

func (v vfileInfo) IsDir() bool { return v.vf.IsDir() }

func (v vfileInfo) Sys() interface{} { return v.vf }

// dirEntryInfo implements os.FileInfo over one vfile.Ls row, for Readdir,
// which has no live VFile per entry (spec.md §4.4's ls() returns plain
// rows, not handles).
type dirEntryInfo struct {
	e vfile.DirEntryInfo
}

func (d dirEntryInfo) Name() string { return d.e.Name }
func (d dirEntryInfo) Size() int64  { return int64(d.e.Size) }

func (d dirEntryInfo) Mode() os.FileMode {
	if d.e.Attribute&fat.AttrDirectory != 0 {
		return os.ModeDir | 0755
	}
	if d.e.Attribute&fat.AttrReadOnly != 0 {
		return 0444
	}
	return 0644
}

func (d dirEntryInfo) ModTime() time.Time {
	return CombineDateTime(d.e.ModifyDate, d.e.ModifyTime)
}

func (d dirEntryInfo) IsDir() bool { return d.e.Attribute&fat.AttrDirectory != 0 }

func (d dirEntryInfo) Sys() interface{} { return d.e }
