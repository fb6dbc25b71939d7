package blockdev

import "os"

// File adapts an *os.File into a BlockDevice. This is what cmd/example and cmd/fat32ctl
// use to mount a disk image file, the same role the teacher's plain
// io.ReadSeeker played in gofat.New.
type File struct {
	f *os.File
}

// NewFile wraps an already-opened file as a BlockDevice.
func NewFile(f *os.File) *File {
	return &File{f: f}
}

// OpenFile opens path and wraps it as a BlockDevice. flag/perm are passed
// through to os.OpenFile.
func OpenFile(path string, flag int, perm os.FileMode) (*File, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	return &File{f: f}, nil
}

func (d *File) ReadBlock(sector uint64, buf []byte) error {
	_, err := d.f.ReadAt(buf, int64(sector)*SectorSize)
	return err
}

func (d *File) WriteBlock(sector uint64, buf []byte) error {
	_, err := d.f.WriteAt(buf, int64(sector)*SectorSize)
	return err
}

// Sync flushes any OS-buffered writes to durable storage.
func (d *File) Sync() error {
	return d.f.Sync()
}

// Close releases the underlying file.
func (d *File) Close() error {
	return d.f.Close()
}
