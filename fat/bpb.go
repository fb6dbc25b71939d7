// Package fat implements the on-disk engine of the driver: the BPB/FSInfo
// and short/long directory-entry layout views (spec.md §4.2), and the
// volume-level FATManager controller (spec.md §4.3). Every accessor here is
// byte-addressed rather than cast through an aligned Go struct, per
// spec.md §9's note that "layout views must be byte-addressed rather than
// cast through aligned structures on architectures that prohibit unaligned
// loads" — the teacher's model.go instead defines Go structs decoded with
// encoding/binary.Read, which is safe in Go (binary.Read walks fields via
// reflection, it never does a raw pointer cast) but this package goes one
// step further and never materializes an intermediate struct at all for
// the hot-path types (FAT entries, SDE, LDE), instead indexing directly
// into the cache's buffer bytes the way original_source/fatfs/src/layout.rs
// addresses its #[repr(packed)] structs byte-by-byte.
package fat

import "encoding/binary"

const (
	// LeadSignature is the FSInfo sector's lead signature.
	LeadSignature = 0x41615252
	// StrucSignature is the FSInfo sector's mid-sector signature.
	StrucSignature = 0x61417272
	// TrailSignature is the FSInfo sector's trailing signature.
	TrailSignature = 0xAA550000
)

// BPB is a zero-copy view over a 512-byte BIOS Parameter Block sector.
type BPB struct {
	buf []byte
}

// NewBPB wraps a raw boot-sector buffer (at least 512 bytes) as a BPB view.
func NewBPB(buf []byte) BPB { return BPB{buf: buf} }

func (b BPB) BytesPerSector() uint16      { return binary.LittleEndian.Uint16(b.buf[11:13]) }
func (b BPB) SectorsPerCluster() uint8    { return b.buf[13] }
func (b BPB) ReservedSectorCount() uint16 { return binary.LittleEndian.Uint16(b.buf[14:16]) }
func (b BPB) NumFATs() uint8              { return b.buf[16] }
func (b BPB) RootEntryCount() uint16      { return binary.LittleEndian.Uint16(b.buf[17:19]) }
func (b BPB) TotalSectors16() uint16      { return binary.LittleEndian.Uint16(b.buf[19:21]) }
func (b BPB) Media() uint8                { return b.buf[21] }
func (b BPB) FATSize16() uint16           { return binary.LittleEndian.Uint16(b.buf[22:24]) }
func (b BPB) HiddenSectors() uint32       { return binary.LittleEndian.Uint32(b.buf[28:32]) }
func (b BPB) TotalSectors32() uint32      { return binary.LittleEndian.Uint32(b.buf[32:36]) }

// FAT32-specific extended BPB, starting at offset 36.
func (b BPB) FATSize32() uint32      { return binary.LittleEndian.Uint32(b.buf[36:40]) }
func (b BPB) ExtFlags() uint16       { return binary.LittleEndian.Uint16(b.buf[40:42]) }
func (b BPB) FSVersion() uint16      { return binary.LittleEndian.Uint16(b.buf[42:44]) }
func (b BPB) RootCluster() uint32    { return binary.LittleEndian.Uint32(b.buf[44:48]) }
func (b BPB) FSInfoSector() uint16   { return binary.LittleEndian.Uint16(b.buf[48:50]) }
func (b BPB) BkBootSector() uint16   { return binary.LittleEndian.Uint16(b.buf[50:52]) }
func (b BPB) BootSignature() uint8   { return b.buf[66] }
func (b BPB) FileSystemType() string { return trimTrailingSpace(b.buf[82:90]) }

// JumpSignatureValid reports whether the boot-sector jump instruction looks
// like a real x86 short or near jump, as every FAT boot sector starts with.
func (b BPB) JumpSignatureValid() bool {
	return (b.buf[0] == 0xEB && b.buf[2] == 0x90) || b.buf[0] == 0xE9
}

// BootSectorSignatureValid reports whether the trailing 0x55 0xAA marker at
// byte offset 510 is present.
func (b BPB) BootSectorSignatureValid() bool {
	return b.buf[510] == 0x55 && b.buf[511] == 0xAA
}

// IsFAT32 reports whether this BPB describes a FAT32 volume: FAT16/FAT12's
// FATSize16 and RootEntryCount must be zero, and FATSize32 must be set.
func (b BPB) IsFAT32() bool {
	return b.FATSize16() == 0 && b.RootEntryCount() == 0 && b.FATSize32() != 0
}

func trimTrailingSpace(b []byte) string {
	i := len(b)
	for i > 0 && (b[i-1] == ' ' || b[i-1] == 0) {
		i--
	}
	return string(b[:i])
}

// FSInfo is a zero-copy view over the FSInfo sector.
type FSInfo struct {
	buf []byte
}

// NewFSInfo wraps a raw FSInfo sector buffer as an FSInfo view.
func NewFSInfo(buf []byte) FSInfo { return FSInfo{buf: buf} }

func (f FSInfo) LeadSignature() uint32  { return binary.LittleEndian.Uint32(f.buf[0:4]) }
func (f FSInfo) StrucSignature() uint32 { return binary.LittleEndian.Uint32(f.buf[484:488]) }
func (f FSInfo) TrailSignature() uint32 { return binary.LittleEndian.Uint32(f.buf[508:512]) }

// SignaturesValid reports whether all three FSInfo signatures match the
// FAT32 specification (spec.md §4.3 / §6).
func (f FSInfo) SignaturesValid() bool {
	return f.LeadSignature() == LeadSignature &&
		f.StrucSignature() == StrucSignature &&
		f.TrailSignature() == TrailSignature
}

func (f FSInfo) FreeCount() uint32       { return binary.LittleEndian.Uint32(f.buf[488:492]) }
func (f FSInfo) SetFreeCount(v uint32)   { binary.LittleEndian.PutUint32(f.buf[488:492], v) }
func (f FSInfo) NextFree() uint32        { return binary.LittleEndian.Uint32(f.buf[492:496]) }
func (f FSInfo) SetNextFree(v uint32)    { binary.LittleEndian.PutUint32(f.buf[492:496], v) }
