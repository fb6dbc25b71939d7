package cache

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/embedos/fat32/blockdev"
	"github.com/embedos/fat32/errs"
)

func TestCache_GetReadsThroughOnMiss(t *testing.T) {
	dev := blockdev.NewMemory(4 * SectorSize)
	binary.LittleEndian.PutUint32(dev.Bytes()[0:4], 0xDEADBEEF)

	c := New(DefaultLimit)
	h, err := c.Get(0, dev)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer h.Release()

	var got uint32
	if err := h.ReadWith(0, 4, func(b []byte) { got = binary.LittleEndian.Uint32(b) }); err != nil {
		t.Fatalf("ReadWith() error = %v", err)
	}
	if got != 0xDEADBEEF {
		t.Errorf("ReadWith() = %#x, want %#x", got, 0xDEADBEEF)
	}
}

func TestCache_ModifyMarksDirtyAndWritesBack(t *testing.T) {
	dev := blockdev.NewMemory(1 * SectorSize)
	c := New(DefaultLimit)

	h, err := c.Get(0, dev)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if err := h.ModifyWith(10, 2, func(b []byte) { binary.LittleEndian.PutUint16(b, 0x1234) }); err != nil {
		t.Fatalf("ModifyWith() error = %v", err)
	}
	h.Release()

	// Not yet on the device: the cache is write-back.
	if binary.LittleEndian.Uint16(dev.Bytes()[10:12]) == 0x1234 {
		t.Fatalf("dirty write leaked to device before sync")
	}

	if err := c.WriteAllBack(); err != nil {
		t.Fatalf("WriteAllBack() error = %v", err)
	}
	if got := binary.LittleEndian.Uint16(dev.Bytes()[10:12]); got != 0x1234 {
		t.Errorf("after WriteAllBack device = %#x, want %#x", got, 0x1234)
	}
}

func TestCache_EvictsDirtyBufferBeforeReuse(t *testing.T) {
	dev := blockdev.NewMemory(3 * SectorSize)
	c := New(1)

	h0, err := c.Get(0, dev)
	if err != nil {
		t.Fatalf("Get(0) error = %v", err)
	}
	if err := h0.ModifyWith(0, 1, func(b []byte) { b[0] = 0x42 }); err != nil {
		t.Fatalf("ModifyWith() error = %v", err)
	}
	h0.Release() // not borrowed anymore, now evictable

	h1, err := c.Get(1, dev)
	if err != nil {
		t.Fatalf("Get(1) error = %v", err)
	}
	defer h1.Release()

	if got := dev.Bytes()[0]; got != 0x42 {
		t.Errorf("eviction did not flush dirty buffer: device[0] = %#x, want 0x42", got)
	}
}

func TestCache_EvictionRefusesToDropBorrowedBuffer(t *testing.T) {
	dev := blockdev.NewMemory(2 * SectorSize)
	c := New(1)

	h0, err := c.Get(0, dev)
	if err != nil {
		t.Fatalf("Get(0) error = %v", err)
	}
	defer h0.Release()

	if _, err := c.Get(1, dev); !errors.Is(err, errs.ErrNoSpace) {
		t.Errorf("Get(1) error = %v, want ErrNoSpace", err)
	}
}

func TestCache_GetHitReturnsSharedBuffer(t *testing.T) {
	dev := blockdev.NewMemory(6 * SectorSize)
	c := New(DefaultLimit)

	h0, err := c.Get(5, dev)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	h0.Release()

	h1, err := c.Get(5, dev)
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	defer h1.Release()

	if h0.b != h1.b {
		t.Errorf("Get() for the same sector returned different buffers")
	}
}

func TestCache_StartSectorOffsetsDeviceAccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dev := NewMockBlockDevice(ctrl)
	dev.EXPECT().ReadBlock(uint64(7), gomock.Any()).Return(nil)

	c := New(DefaultLimit)
	c.SetStartSector(5)

	h, err := c.Get(2, dev)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	h.Release()
}

func TestCache_ReadBlockErrorPropagates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	wantErr := errors.New("io failure")
	dev := NewMockBlockDevice(ctrl)
	dev.EXPECT().ReadBlock(gomock.Any(), gomock.Any()).Return(wantErr)

	c := New(DefaultLimit)
	if _, err := c.Get(0, dev); !errors.Is(err, wantErr) {
		t.Errorf("Get() error = %v, want %v", err, wantErr)
	}
}

func TestCache_OutOfRangeViewIsRejected(t *testing.T) {
	dev := blockdev.NewMemory(1 * SectorSize)
	c := New(DefaultLimit)
	h, err := c.Get(0, dev)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer h.Release()

	if err := h.ReadWith(500, 32, func([]byte) {}); !errors.Is(err, errs.ErrCorrupt) {
		t.Errorf("ReadWith() out-of-range error = %v, want ErrCorrupt", err)
	}
}
