package fat

import "testing"

func makeBPB() []byte {
	buf := make([]byte, 512)
	buf[0] = 0xEB
	buf[1] = 0x58
	buf[2] = 0x90
	putU16(buf, 11, 512)
	buf[13] = 8
	putU16(buf, 14, 32)
	buf[16] = 2
	putU16(buf, 17, 0)
	putU16(buf, 19, 0)
	buf[21] = 0xF8
	putU16(buf, 22, 0)
	putU32(buf, 28, 63)
	putU32(buf, 32, 131072)
	putU32(buf, 36, 955)
	putU32(buf, 44, 2)
	putU16(buf, 48, 1)
	buf[66] = 0x29
	copy(buf[82:90], "FAT32   ")
	buf[510] = 0x55
	buf[511] = 0xAA
	return buf
}

func putU16(b []byte, off int, v uint16) { b[off], b[off+1] = byte(v), byte(v>>8) }
func putU32(b []byte, off int, v uint32) {
	b[off], b[off+1], b[off+2], b[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func TestBPB_Accessors(t *testing.T) {
	bpb := NewBPB(makeBPB())

	if got := bpb.BytesPerSector(); got != 512 {
		t.Errorf("BytesPerSector() = %d, want 512", got)
	}
	if got := bpb.SectorsPerCluster(); got != 8 {
		t.Errorf("SectorsPerCluster() = %d, want 8", got)
	}
	if got := bpb.ReservedSectorCount(); got != 32 {
		t.Errorf("ReservedSectorCount() = %d, want 32", got)
	}
	if got := bpb.NumFATs(); got != 2 {
		t.Errorf("NumFATs() = %d, want 2", got)
	}
	if got := bpb.HiddenSectors(); got != 63 {
		t.Errorf("HiddenSectors() = %d, want 63", got)
	}
	if got := bpb.FATSize32(); got != 955 {
		t.Errorf("FATSize32() = %d, want 955", got)
	}
	if got := bpb.RootCluster(); got != 2 {
		t.Errorf("RootCluster() = %d, want 2", got)
	}
	if got := bpb.FileSystemType(); got != "FAT32" {
		t.Errorf("FileSystemType() = %q, want %q", got, "FAT32")
	}
	if !bpb.JumpSignatureValid() {
		t.Error("JumpSignatureValid() = false, want true")
	}
	if !bpb.BootSectorSignatureValid() {
		t.Error("BootSectorSignatureValid() = false, want true")
	}
	if !bpb.IsFAT32() {
		t.Error("IsFAT32() = false, want true")
	}
}

func TestBPB_IsFAT32RejectsFAT16(t *testing.T) {
	buf := makeBPB()
	putU16(buf, 22, 200) // FATSize16 != 0 means FAT12/16
	putU32(buf, 36, 0)
	bpb := NewBPB(buf)

	if bpb.IsFAT32() {
		t.Error("IsFAT32() = true for a FAT16-shaped BPB, want false")
	}
}

func TestFSInfo_SignaturesValid(t *testing.T) {
	buf := make([]byte, 512)
	putU32(buf, 0, LeadSignature)
	putU32(buf, 484, StrucSignature)
	putU32(buf, 508, TrailSignature)
	putU32(buf, 488, 1000)
	putU32(buf, 492, 3)

	info := NewFSInfo(buf)
	if !info.SignaturesValid() {
		t.Fatal("SignaturesValid() = false, want true")
	}
	if got := info.FreeCount(); got != 1000 {
		t.Errorf("FreeCount() = %d, want 1000", got)
	}
	if got := info.NextFree(); got != 3 {
		t.Errorf("NextFree() = %d, want 3", got)
	}

	info.SetFreeCount(999)
	info.SetNextFree(4)
	if got := info.FreeCount(); got != 999 {
		t.Errorf("FreeCount() after SetFreeCount = %d, want 999", got)
	}
	if got := info.NextFree(); got != 4 {
		t.Errorf("NextFree() after SetNextFree = %d, want 4", got)
	}
}

func TestFSInfo_SignaturesInvalid(t *testing.T) {
	buf := make([]byte, 512)
	info := NewFSInfo(buf)
	if info.SignaturesValid() {
		t.Error("SignaturesValid() = true for a zeroed sector, want false")
	}
}
