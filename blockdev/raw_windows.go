//go:build windows

package blockdev

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// Raw opens a raw volume handle directly, the way
// RinpoStk-FAT32-SecRm's win.go DefaultDriver.DInit does with
// windows.CreateFile/SetFilePointer/ReadFile.
type Raw struct {
	h windows.Handle
}

// OpenRaw opens the volume at path (e.g. `\\.\D:`) for reading and writing
// sectors.
func OpenRaw(path string) (*Raw, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(
		p,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %q: %w", path, err)
	}
	return &Raw{h: h}, nil
}

func (d *Raw) seek(sector uint64) error {
	offset := int64(sector) * SectorSize
	high := int32(offset >> 32)
	_, err := windows.SetFilePointer(d.h, int32(offset&0xFFFFFFFF), &high, windows.FILE_BEGIN)
	return err
}

func (d *Raw) ReadBlock(sector uint64, buf []byte) error {
	if err := d.seek(sector); err != nil {
		return err
	}
	var n uint32
	return windows.ReadFile(d.h, buf, &n, nil)
}

func (d *Raw) WriteBlock(sector uint64, buf []byte) error {
	if err := d.seek(sector); err != nil {
		return err
	}
	var n uint32
	return windows.WriteFile(d.h, buf, &n, nil)
}

// Close releases the volume handle.
func (d *Raw) Close() error {
	return windows.CloseHandle(d.h)
}
