package fat

import "testing"

func TestEncodeDecodeLongName_RoundTrip(t *testing.T) {
	name := "a-rather-long-file-name.txt"
	chunks := EncodeLongNameUnits(name)

	entries := make([]LongDirEntry, len(chunks))
	for i, chunk := range chunks {
		buf := make([]byte, DirEntSize)
		e := NewLongDirEntry(buf)
		e.SetNameUnits(chunk)
		entries[i] = e
	}

	if got := DecodeLongName(entries); got != name {
		t.Errorf("DecodeLongName() = %q, want %q", got, name)
	}
}

func TestEncodeLongNameUnits_ExactMultipleUsesOneChunk(t *testing.T) {
	name := "abcdefghijklm" // exactly 13 chars, one full chunk; the slot boundary ends the name
	chunks := EncodeLongNameUnits(name)

	if len(chunks) != 1 {
		t.Fatalf("EncodeLongNameUnits() produced %d chunks, want 1", len(chunks))
	}
	if chunks[0][12] != 'm' {
		t.Errorf("last slot should hold the final character, got %#x", chunks[0][12])
	}
}

func TestLongDirEntry_OrdAndLastInChain(t *testing.T) {
	buf := make([]byte, DirEntSize)
	e := NewLongDirEntry(buf)
	e.SetOrd(2 | LastLongEntryMask)

	if !e.IsLastInChain() {
		t.Error("IsLastInChain() = false, want true")
	}
	if got := e.SequenceNumber(); got != 2 {
		t.Errorf("SequenceNumber() = %d, want 2", got)
	}
}

func TestLongDirEntry_FreeAndDeleted(t *testing.T) {
	buf := make([]byte, DirEntSize)
	e := NewLongDirEntry(buf)
	if !e.IsFree() {
		t.Error("a zeroed long entry should be free")
	}
	e.Delete()
	if !e.IsDeleted() {
		t.Error("Delete() should mark the entry deleted")
	}
}

func TestDecodeLongName_SurrogatePair(t *testing.T) {
	name := "\U0001F600" // a rune outside the BMP, needs a surrogate pair
	chunks := EncodeLongNameUnits(name)
	buf := make([]byte, DirEntSize)
	e := NewLongDirEntry(buf)
	e.SetNameUnits(chunks[0])

	if got := DecodeLongName([]LongDirEntry{e}); got != name {
		t.Errorf("DecodeLongName() = %q, want %q", got, name)
	}
}
