// Package vfile implements VFile, the per-file/per-directory handle
// described in spec.md §4.4: traversal by name/path, read/write at offset,
// create/remove, ls, stat and dirent_info. It is grounded in the teacher's
// File/readFileAt/readDir trio (file.go, fs.go in the pre-transform tree)
// and in original_source/fatfs/src/vfs.rs, generalized from the teacher's
// flat gofat.fatFileFs seam to the layered fat.Manager this module builds
// instead.
package vfile

import (
	"strings"

	"github.com/embedos/fat32/errs"
	"github.com/embedos/fat32/fat"
)

// Pos identifies one 32-byte directory-entry slot: the directory's first
// cluster (its chain never moves once allocated) and the byte offset of
// the slot within that chain. This plays the role of spec.md §3's
// "(sector, offset)" location pair, expressed in terms of the chain-level
// addressing fat.Manager.ReadAt/WriteAt already provide rather than a raw
// physical sector number, since only fat.Manager knows how to translate a
// cluster index back to a sector.
type Pos struct {
	DirFirstCluster uint32
	Offset          int64
}

// VFile is the central user-facing abstraction: a file or directory handle
// bound to its backing short directory entry (and, for a long name, the
// long entries preceding it), plus a shared reference to the Manager and
// the directory chain it lives in.
type VFile struct {
	mgr *fat.Manager

	name         string
	attr         byte
	firstCluster uint32
	size         uint32

	// parentCluster is the first cluster of the directory this entry lives
	// in. Needed to re-locate/rewrite the backing SDE on mutation.
	parentCluster uint32

	// isRoot marks the synthetic root VFile, which has no backing SDE
	// (spec.md §4.4's "root has no SDE" edge case).
	isRoot bool

	shortPos Pos
	longPos  []Pos

	createDate, createTime         uint16
	createTimeTenth                byte
	modifyDate, modifyTime         uint16
	accessDate                     uint16
	ntReserved                     byte
}

// Manager returns the FATManager this handle is bound to.
func (f *VFile) Manager() *fat.Manager { return f.mgr }

// Name returns the file's display name (long name if one was decoded,
// otherwise the reconstructed 8.3 name).
func (f *VFile) Name() string { return f.name }

// Attribute returns the raw FAT attribute byte (spec.md §3).
func (f *VFile) Attribute() byte { return f.attr }

// IsDir reports whether this handle names a directory.
func (f *VFile) IsDir() bool { return f.attr&fat.AttrDirectory != 0 }

// IsRoot reports whether this is the synthetic root directory handle.
func (f *VFile) IsRoot() bool { return f.isRoot }

// FirstCluster returns the first cluster of this file's/directory's data,
// or 0 for an empty file that has never been written to.
func (f *VFile) FirstCluster() uint32 { return f.firstCluster }

// FileSize returns the size recorded in the backing SDE (always the raw
// byte count the directory scan last saw, 0 for directories' "size" in the
// FAT32 sense - directories report their size as chain-length*cluster-size
// via Stat instead).
func (f *VFile) FileSize() uint32 { return f.size }

// GetRootVFile synthesizes the VFile representing the volume's root
// directory: first_cluster = mgr.RootCluster(), attribute = directory, no
// backing SDE, per spec.md §4.3's get_root_vfile.
func GetRootVFile(mgr *fat.Manager) *VFile {
	return &VFile{
		mgr:          mgr,
		name:         "/",
		attr:         fat.AttrDirectory,
		firstCluster: mgr.RootCluster(),
		isRoot:       true,
	}
}

// Stat is the value spec.md §4.4's stat() returns.
type Stat struct {
	Size        int64
	BlockSize   int64
	BlockCount  int64
	IsDir       bool
	CreateDate  uint16
	CreateTime  uint16
	ModifyDate  uint16
	ModifyTime  uint16
	AccessDate  uint16
}

// Stat reports size, block geometry, and timestamps for f. It takes
// Manager's read lock for the chain-length query.
func (f *VFile) Stat() (Stat, error) {
	f.mgr.Mu.RLock()
	defer f.mgr.Mu.RUnlock()
	count := 0
	if f.firstCluster != 0 {
		n, err := f.mgr.Table().Count(f.firstCluster)
		if err != nil {
			return Stat{}, err
		}
		count = n
	}
	size := int64(f.size)
	if f.IsDir() {
		size = int64(count) * int64(f.mgr.BytesPerCluster())
	}
	return Stat{
		Size:       size,
		BlockSize:  int64(f.mgr.BytesPerCluster()),
		BlockCount: int64(count),
		IsDir:      f.IsDir(),
		CreateDate: f.createDate,
		CreateTime: f.createTime,
		ModifyDate: f.modifyDate,
		ModifyTime: f.modifyTime,
		AccessDate: f.accessDate,
	}, nil
}

// SetTime updates the backing SDE's modify date/time fields. It is a no-op
// on the synthetic root, which has no SDE to carry timestamps
// (spec.md §9's "clock source left to the host kernel" note: callers
// supply already-encoded FAT date/time words).
func (f *VFile) SetTime(modifyDate, modifyTime uint16) error {
	f.modifyDate, f.modifyTime = modifyDate, modifyTime
	if f.isRoot {
		return nil
	}
	return f.rewriteSDE(func(s fat.ShortDirEntry) {
		s.SetModifyDate(modifyDate)
		s.SetModifyTime(modifyTime)
	})
}

// rewriteSDE reads the backing 32-byte slot, applies mutate to a
// fat.ShortDirEntry view over it, and writes it back. It is the only way
// mutations ever touch f's SDE, keeping every field write atomic from the
// cache's point of view (a single ModifyWith per underlying sector, via
// Manager.WriteAt). It takes Manager's read lock itself for standalone
// callers (SetTime, SetReadOnly); compound operations that already hold
// the write lock (IncreaseSize, Clear, Truncate, Rename) use rewriteSDENL.
func (f *VFile) rewriteSDE(mutate func(fat.ShortDirEntry)) error {
	f.mgr.Mu.RLock()
	defer f.mgr.Mu.RUnlock()
	return f.rewriteSDENL(mutate)
}

// rewriteSDENL is rewriteSDE without taking Mu.
func (f *VFile) rewriteSDENL(mutate func(fat.ShortDirEntry)) error {
	if f.isRoot {
		return errs.ErrInvalidName
	}
	buf := make([]byte, fat.DirEntSize)
	if _, err := f.mgr.ReadAtNL(f.shortPos.DirFirstCluster, f.shortPos.Offset, buf); err != nil {
		return err
	}
	s := fat.NewShortDirEntry(buf)
	mutate(s)
	_, err := f.mgr.WriteAtNL(f.shortPos.DirFirstCluster, f.shortPos.Offset, buf)
	return err
}

// splitPath splits a '/'-separated path into its non-empty, non-'.'
// components, per spec.md §4.4's find_by_path ('..' is not resolved at
// this layer).
func splitPath(path string) []string {
	var out []string
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	return out
}

// FindByPath walks path components from root via FindByName.
func FindByPath(root *VFile, path string) (*VFile, error) {
	cur := root
	for _, part := range splitPath(path) {
		if part == ".." {
			return nil, errs.ErrInvalidName
		}
		next, err := FindByName(cur, part)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
