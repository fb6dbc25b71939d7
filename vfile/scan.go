package vfile

import (
	"strings"

	"github.com/embedos/fat32/errs"
	"github.com/embedos/fat32/fat"
)

// dirSlot is one scanned, non-skipped SDE together with whatever long-name
// chain precedes it (already validated against the SDE's checksum).
type dirSlot struct {
	sde     fat.ShortDirEntry
	sdePos  Pos
	longPos []Pos
	name    string
}

// scanDirectory walks dirFirstCluster's chain slot by slot, per
// spec.md §4.4's find_by_name traversal rule: 0xE5 is skipped, 0x00 halts
// the scan, LDE runs are accumulated and checked against the following
// SDE's checksum, and a mismatching chain is dropped (the SDE survives
// with its short name only, per spec.md §7's "orphan LDE" recovery).
func scanDirectory(mgr *fat.Manager, dirFirstCluster uint32) ([]dirSlot, error) {
	if dirFirstCluster == 0 {
		return nil, nil
	}

	var entries []dirSlot
	var pendingLDE []fat.LongDirEntry
	var pendingPos []Pos

	buf := make([]byte, fat.DirEntSize)
	for offset := int64(0); ; offset += fat.DirEntSize {
		n, err := mgr.ReadAtNL(dirFirstCluster, offset, buf)
		if err != nil {
			return nil, err
		}
		if n < fat.DirEntSize {
			break
		}

		if buf[0] == fat.EntryFreeTerminator {
			break
		}
		if buf[0] == fat.EntryFreeDeleted {
			pendingLDE, pendingPos = nil, nil
			continue
		}

		pos := Pos{DirFirstCluster: dirFirstCluster, Offset: offset}

		if buf[11] == fat.AttrLongName {
			cp := make([]byte, fat.DirEntSize)
			copy(cp, buf)
			pendingLDE = append(pendingLDE, fat.NewLongDirEntry(cp))
			pendingPos = append(pendingPos, pos)
			continue
		}

		cp := make([]byte, fat.DirEntSize)
		copy(cp, buf)
		sde := fat.NewShortDirEntry(cp)
		if sde.IsVolumeID() {
			pendingLDE, pendingPos = nil, nil
			continue
		}

		name, longPos := resolveName(sde, pendingLDE, pendingPos)
		entries = append(entries, dirSlot{sde: sde, sdePos: pos, longPos: longPos, name: name})
		pendingLDE, pendingPos = nil, nil
	}
	return entries, nil
}

// resolveName decodes the accumulated long-name chain (innermost chunk
// last, as encountered walking the directory forward) against sde, or
// falls back to the short name if the chain is empty or its checksum
// doesn't match.
func resolveName(sde fat.ShortDirEntry, pendingLDE []fat.LongDirEntry, pendingPos []Pos) (string, []Pos) {
	if len(pendingLDE) == 0 {
		return sde.NameString(), nil
	}

	want := sde.Checksum()
	for _, e := range pendingLDE {
		if e.Checksum() != want {
			return sde.NameString(), nil
		}
	}

	ordered := make([]fat.LongDirEntry, len(pendingLDE))
	for i, e := range pendingLDE {
		ordered[len(pendingLDE)-1-i] = e
	}
	longPos := make([]Pos, len(pendingPos))
	for i, p := range pendingPos {
		longPos[len(pendingPos)-1-i] = p
	}
	return fat.DecodeLongName(ordered), longPos
}

func sameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

// FindByName looks up name directly inside dir, per spec.md §4.4. It takes
// dir.Manager()'s read lock for the scan.
func FindByName(dir *VFile, name string) (*VFile, error) {
	dir.mgr.Mu.RLock()
	defer dir.mgr.Mu.RUnlock()
	return findByNameNL(dir, name)
}

// findByNameNL is FindByName without taking Mu; used by createEntry, which
// runs under Create/Rename's own held write lock.
func findByNameNL(dir *VFile, name string) (*VFile, error) {
	if !dir.IsDir() {
		return nil, errs.ErrNotADirectory
	}
	slots, err := scanDirectory(dir.mgr, dir.firstCluster)
	if err != nil {
		return nil, err
	}
	for _, s := range slots {
		if sameName(s.name, name) {
			return vfileFromSlot(dir.mgr, dir.firstCluster, s), nil
		}
	}
	return nil, errs.ErrNotFound
}

// DirEntryInfo is one row of spec.md §4.4's ls() / dirent_info() output.
type DirEntryInfo struct {
	Name         string
	Attribute    byte
	FirstCluster uint32
	Size         uint32
	Offset       int
	ModifyDate   uint16
	ModifyTime   uint16
}

// Ls lists every non-deleted, non-volume-id entry in dir. It takes
// dir.Manager()'s read lock for the scan.
func Ls(dir *VFile) ([]DirEntryInfo, error) {
	dir.mgr.Mu.RLock()
	defer dir.mgr.Mu.RUnlock()
	if !dir.IsDir() {
		return nil, errs.ErrNotADirectory
	}
	slots, err := scanDirectory(dir.mgr, dir.firstCluster)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntryInfo, len(slots))
	for i, s := range slots {
		out[i] = DirEntryInfo{
			Name:         s.name,
			Attribute:    s.sde.Attr(),
			FirstCluster: s.sde.FirstCluster(),
			Size:         s.sde.FileSize(),
			ModifyDate:   s.sde.ModifyDate(),
			ModifyTime:   s.sde.ModifyTime(),
		}
	}
	return out, nil
}

// DirentInfo returns information about the index-th non-deleted entry in
// dir, per spec.md §4.4.
func DirentInfo(dir *VFile, index int) (DirEntryInfo, error) {
	entries, err := Ls(dir)
	if err != nil {
		return DirEntryInfo{}, err
	}
	if index < 0 || index >= len(entries) {
		return DirEntryInfo{}, errs.ErrNotFound
	}
	entries[index].Offset = index
	return entries[index], nil
}

func vfileFromSlot(mgr *fat.Manager, parentCluster uint32, s dirSlot) *VFile {
	return &VFile{
		mgr:           mgr,
		name:          s.name,
		attr:          s.sde.Attr(),
		firstCluster:  s.sde.FirstCluster(),
		size:          s.sde.FileSize(),
		parentCluster: parentCluster,
		shortPos:      s.sdePos,
		longPos:       s.longPos,
		createDate:    s.sde.CreateDate(),
		createTime:    s.sde.CreateTime(),
		createTimeTenth: s.sde.CreateTimeTenth(),
		modifyDate:    s.sde.ModifyDate(),
		modifyTime:    s.sde.ModifyTime(),
		accessDate:    s.sde.AccessDate(),
		ntReserved:    s.sde.NTReserved(),
	}
}
