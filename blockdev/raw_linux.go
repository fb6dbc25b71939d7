//go:build linux

package blockdev

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Raw opens a raw block device or partition node (e.g. /dev/sdb1) directly,
// the way RinpoStk-FAT32-SecRm's DefalutDriver.DInit does with
// syscall.Open/Pread/Pwrite. This is the backend a kernel build would swap
// in for its own driver; it is not exercised by this module's tests, which
// use Memory instead.
type Raw struct {
	fd int
}

// OpenRaw opens the device node at path for reading and writing sectors.
func OpenRaw(path string) (*Raw, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %q: %w", path, err)
	}
	return &Raw{fd: fd}, nil
}

func (d *Raw) ReadBlock(sector uint64, buf []byte) error {
	_, err := unix.Pread(d.fd, buf, int64(sector)*SectorSize)
	return err
}

func (d *Raw) WriteBlock(sector uint64, buf []byte) error {
	_, err := unix.Pwrite(d.fd, buf, int64(sector)*SectorSize)
	return err
}

// Size returns the device's total size in bytes via the BLKGETSIZE64 ioctl.
func (d *Raw) Size() (uint64, error) {
	size, err := unix.IoctlGetInt(d.fd, unix.BLKGETSIZE64)
	return uint64(size), err
}

// Close releases the file descriptor.
func (d *Raw) Close() error {
	return unix.Close(d.fd)
}
