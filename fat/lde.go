package fat

import "encoding/binary"

// LastLongEntryMask marks the entry farthest from the short entry in an LDE
// chain (the "last" logical chunk, stored first on disk).
const LastLongEntryMask = 0x40

// OrdEndMarker is the ord byte of an unused long entry slot.
const OrdEndMarker = 0x00

// CharsPerLongEntry is the number of UTF-16 code units one LDE stores.
const CharsPerLongEntry = 13

// LongDirEntry is a zero-copy, 32-byte view over a long (VFAT) directory
// entry, as described by spec.md §3 and
// original_source/fatfs/src/layout.rs's LongDirEntry.
type LongDirEntry struct {
	buf []byte
}

// NewLongDirEntry wraps a 32-byte buffer slice as a LongDirEntry view.
func NewLongDirEntry(buf []byte) LongDirEntry {
	return LongDirEntry{buf: buf[:DirEntSize:DirEntSize]}
}

func (l LongDirEntry) Bytes() []byte { return l.buf }

func (l LongDirEntry) Ord() byte     { return l.buf[0] }
func (l LongDirEntry) SetOrd(v byte) { l.buf[0] = v }

// SequenceNumber returns the 1-based chunk index with the "last entry" bit
// masked off.
func (l LongDirEntry) SequenceNumber() int { return int(l.Ord() &^ LastLongEntryMask) }

// IsLastInChain reports whether this is the chunk farthest from the short
// entry (the highest-numbered chunk, written first on disk).
func (l LongDirEntry) IsLastInChain() bool { return l.Ord()&LastLongEntryMask != 0 }

func (l LongDirEntry) IsFree() bool    { return l.Ord() == OrdEndMarker }
func (l LongDirEntry) IsDeleted() bool { return l.Ord() == EntryFreeDeleted }

func (l LongDirEntry) Attr() byte     { return l.buf[11] }
func (l LongDirEntry) SetAttr(v byte) { l.buf[11] = v }

func (l LongDirEntry) Type() byte     { return l.buf[12] }
func (l LongDirEntry) SetType(v byte) { l.buf[12] = v }

func (l LongDirEntry) Checksum() byte     { return l.buf[13] }
func (l LongDirEntry) SetChecksum(v byte) { l.buf[13] = v }

// NameUnits returns the up-to-13 UTF-16 code units this entry holds, read
// out of its three discontiguous name fields in order.
func (l LongDirEntry) NameUnits() [CharsPerLongEntry]uint16 {
	var units [CharsPerLongEntry]uint16
	for i := 0; i < 5; i++ {
		units[i] = binary.LittleEndian.Uint16(l.buf[1+2*i : 3+2*i])
	}
	for i := 0; i < 6; i++ {
		units[5+i] = binary.LittleEndian.Uint16(l.buf[14+2*i : 16+2*i])
	}
	for i := 0; i < 2; i++ {
		units[11+i] = binary.LittleEndian.Uint16(l.buf[28+2*i : 30+2*i])
	}
	return units
}

// SetNameUnits writes 13 UTF-16 code units into this entry's three name
// fields. Unused trailing slots in the final chunk of a name should already
// contain 0x0000 followed by 0xFFFF padding per the caller's encoding.
func (l LongDirEntry) SetNameUnits(units [CharsPerLongEntry]uint16) {
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint16(l.buf[1+2*i:3+2*i], units[i])
	}
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint16(l.buf[14+2*i:16+2*i], units[5+i])
	}
	for i := 0; i < 2; i++ {
		binary.LittleEndian.PutUint16(l.buf[28+2*i:30+2*i], units[11+i])
	}
}

// Clear zeroes the entry so it reads as a free, end-of-directory slot.
func (l LongDirEntry) Clear() {
	for i := range l.buf {
		l.buf[i] = 0
	}
}

// Delete marks this long entry's slot as deleted (continue-scanning free).
func (l LongDirEntry) Delete() { l.buf[0] = EntryFreeDeleted }

// DecodeLongName reconstructs a name string from an ordered slice of LDE
// views, innermost (sequence 1) first, stopping at the first 0x0000
// terminator or 0xFFFF padding unit.
func DecodeLongName(entries []LongDirEntry) string {
	units := make([]uint16, 0, len(entries)*CharsPerLongEntry)
	for _, e := range entries {
		for _, u := range e.NameUnits() {
			if u == 0x0000 || u == 0xFFFF {
				return decodeUTF16(units)
			}
			units = append(units, u)
		}
	}
	return decodeUTF16(units)
}

func decodeUTF16(units []uint16) string {
	runes := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		r := rune(units[i])
		if r >= 0xD800 && r <= 0xDBFF && i+1 < len(units) {
			r2 := rune(units[i+1])
			if r2 >= 0xDC00 && r2 <= 0xDFFF {
				r = ((r - 0xD800) << 10) | (r2 - 0xDC00) + 0x10000
				i++
			}
		}
		runes = append(runes, r)
	}
	return string(runes)
}

// EncodeLongNameUnits splits name into CharsPerLongEntry-sized UTF-16
// chunks, padding the final chunk with a 0x0000 terminator followed by
// 0xFFFF filler, per spec.md §3's long-name encoding rule.
func EncodeLongNameUnits(name string) [][CharsPerLongEntry]uint16 {
	var units []uint16
	for _, r := range name {
		if r > 0xFFFF {
			r -= 0x10000
			units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
			continue
		}
		units = append(units, uint16(r))
	}

	nChunks := (len(units) + CharsPerLongEntry - 1) / CharsPerLongEntry
	if nChunks == 0 {
		nChunks = 1
	}
	chunks := make([][CharsPerLongEntry]uint16, nChunks)
	for i := range chunks {
		for j := range chunks[i] {
			chunks[i][j] = 0xFFFF
		}
	}

	for i, u := range units {
		chunk, slot := i/CharsPerLongEntry, i%CharsPerLongEntry
		chunks[chunk][slot] = u
	}
	// A name whose length is an exact multiple of 13 has no room left for a
	// terminator in its last chunk: the slot boundary itself marks the end,
	// per spec.md §8's "exactly 13 units uses one LDE" boundary case.
	if len(units)%CharsPerLongEntry != 0 {
		lastChunk, lastSlot := len(units)/CharsPerLongEntry, len(units)%CharsPerLongEntry
		chunks[lastChunk][lastSlot] = 0x0000
	}
	return chunks
}
