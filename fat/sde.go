package fat

import (
	"encoding/binary"
	"strings"
)

// DirEntSize is the fixed size, in bytes, of every directory entry slot
// (short or long).
const DirEntSize = 32

// Directory entry attribute bits (spec.md §3).
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// Case bits for ShortDirEntry's NT-reserved byte: Windows stores whether an
// 8.3 name that round-trips through FAT should be displayed lowercase
// without needing a long-name chain.
const (
	CaseLowerBase = 0x08
	CaseLowerExt  = 0x10
)

// Free/deleted markers for a short entry's first name byte.
const (
	EntryFreeTerminator = 0x00 // free, and scanning should stop here
	EntryFreeDeleted    = 0xE5 // free, but continue scanning
	EntryEscapedE5      = 0x05 // first byte is really 0xE5
)

// ShortDirEntry is a zero-copy, 32-byte view over a short directory entry.
type ShortDirEntry struct {
	buf []byte
}

// NewShortDirEntry wraps a 32-byte buffer slice (typically borrowed from a
// cache buffer) as a ShortDirEntry view.
func NewShortDirEntry(buf []byte) ShortDirEntry { return ShortDirEntry{buf: buf[:DirEntSize:DirEntSize]} }

func (s ShortDirEntry) Bytes() []byte { return s.buf }

func (s ShortDirEntry) NameRaw() [11]byte {
	var n [11]byte
	copy(n[:], s.buf[0:11])
	return n
}
func (s ShortDirEntry) SetNameRaw(n [11]byte) { copy(s.buf[0:11], n[:]) }

func (s ShortDirEntry) Attr() byte     { return s.buf[11] }
func (s ShortDirEntry) SetAttr(v byte) { s.buf[11] = v }

func (s ShortDirEntry) NTReserved() byte     { return s.buf[12] }
func (s ShortDirEntry) SetNTReserved(v byte) { s.buf[12] = v }

func (s ShortDirEntry) FirstCluster() uint32 {
	hi := binary.LittleEndian.Uint16(s.buf[20:22])
	lo := binary.LittleEndian.Uint16(s.buf[26:28])
	return uint32(hi)<<16 | uint32(lo)
}

func (s ShortDirEntry) SetFirstCluster(c uint32) {
	binary.LittleEndian.PutUint16(s.buf[20:22], uint16(c>>16))
	binary.LittleEndian.PutUint16(s.buf[26:28], uint16(c&0xFFFF))
}

func (s ShortDirEntry) FileSize() uint32     { return binary.LittleEndian.Uint32(s.buf[28:32]) }
func (s ShortDirEntry) SetFileSize(v uint32) { binary.LittleEndian.PutUint32(s.buf[28:32], v) }

func (s ShortDirEntry) CreateTimeTenth() byte     { return s.buf[13] }
func (s ShortDirEntry) SetCreateTimeTenth(v byte) { s.buf[13] = v }
func (s ShortDirEntry) CreateTime() uint16        { return binary.LittleEndian.Uint16(s.buf[14:16]) }
func (s ShortDirEntry) SetCreateTime(v uint16)    { binary.LittleEndian.PutUint16(s.buf[14:16], v) }
func (s ShortDirEntry) CreateDate() uint16        { return binary.LittleEndian.Uint16(s.buf[16:18]) }
func (s ShortDirEntry) SetCreateDate(v uint16)    { binary.LittleEndian.PutUint16(s.buf[16:18], v) }
func (s ShortDirEntry) AccessDate() uint16        { return binary.LittleEndian.Uint16(s.buf[18:20]) }
func (s ShortDirEntry) SetAccessDate(v uint16)    { binary.LittleEndian.PutUint16(s.buf[18:20], v) }
func (s ShortDirEntry) ModifyTime() uint16        { return binary.LittleEndian.Uint16(s.buf[22:24]) }
func (s ShortDirEntry) SetModifyTime(v uint16)    { binary.LittleEndian.PutUint16(s.buf[22:24], v) }
func (s ShortDirEntry) ModifyDate() uint16        { return binary.LittleEndian.Uint16(s.buf[24:26]) }
func (s ShortDirEntry) SetModifyDate(v uint16)    { binary.LittleEndian.PutUint16(s.buf[24:26], v) }

// IsFreeTerminator reports whether this slot is free and marks the end of
// the directory's used entries (byte 0 == 0x00). Scanning must stop here.
func (s ShortDirEntry) IsFreeTerminator() bool { return s.buf[0] == EntryFreeTerminator }

// IsDeleted reports whether this slot is free but scanning should continue
// past it (byte 0 == 0xE5).
func (s ShortDirEntry) IsDeleted() bool { return s.buf[0] == EntryFreeDeleted }

// IsFree reports whether this slot is available for reuse by create.
func (s ShortDirEntry) IsFree() bool { return s.IsFreeTerminator() || s.IsDeleted() }

func (s ShortDirEntry) IsVolumeID() bool  { return s.Attr()&AttrVolumeID != 0 }
func (s ShortDirEntry) IsDirectory() bool { return s.Attr()&AttrDirectory != 0 }
func (s ShortDirEntry) IsLongName() bool  { return s.Attr() == AttrLongName }

// Clear truncates the entry to an empty file: zero size, no first cluster.
func (s ShortDirEntry) Clear() {
	s.SetFileSize(0)
	s.SetFirstCluster(0)
}

// Delete marks the entry as removed (byte 0 = 0xE5) after clearing it.
func (s ShortDirEntry) Delete() {
	s.Clear()
	s.buf[0] = EntryFreeDeleted
}

// NameString reconstructs the dotted "BASE.EXT" form of the 8.3 name,
// applying the NT-reserved case bits (CaseLowerBase/CaseLowerExt) the way
// original_source/fatfs/src/layout.rs's get_name_uppercase does, refined
// with lowercase display per those bits (see SPEC_FULL.md's "lowercase
// short name" supplemented feature).
func (s ShortDirEntry) NameString() string {
	raw := s.NameRaw()
	base := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	nt := s.NTReserved()
	if nt&CaseLowerBase != 0 {
		base = strings.ToLower(base)
	}
	if nt&CaseLowerExt != 0 {
		ext = strings.ToLower(ext)
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// Checksum computes the 8-bit rotate-add checksum over the 11-byte short
// name (spec.md §3's "Checksum" algorithm), used to tie an LDE chain to
// this SDE.
func (s ShortDirEntry) Checksum() byte {
	raw := s.NameRaw()
	var sum byte
	for _, b := range raw {
		sum = ((sum >> 1) | (sum << 7)) + b
	}
	return sum
}
