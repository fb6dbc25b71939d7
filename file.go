package fat32

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/afero"

	"github.com/embedos/fat32/checkpoint"
	"github.com/embedos/fat32/vfile"
)

// These errors may occur while processing a file.
var (
	ErrReadFile  = errors.New("could not read file completely")
	ErrWriteFile = errors.New("could not write file completely")
	ErrSeekFile  = errors.New("could not seek inside of the file")
	ErrReadDir   = errors.New("could not read the directory")
)

// File implements afero.File over a vfile.VFile handle.
type File struct {
	vf     *vfile.VFile
	name   string
	offset int64
	dirOff int
	closed bool
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := f.vf.ReadAt(f.offset, p)
	f.offset += int64(n)
	if err != nil {
		return n, checkpoint.Wrap(err, ErrReadFile)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n, err := f.vf.ReadAt(off, p)
	if err != nil {
		return n, checkpoint.Wrap(err, ErrReadFile)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek jumps to a specific offset in the file. This affects all Read
// operations except ReadAt. May return a syscall.EINVAL error if the
// whence value is invalid, or afero.ErrOutOfRange if offset would go
// negative.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		st, err := f.vf.Stat()
		if err != nil {
			return 0, checkpoint.Wrap(err, ErrSeekFile)
		}
		offset = st.Size + offset
	default:
		return 0, checkpoint.Wrap(fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence), ErrSeekFile)
	}

	if offset < 0 {
		return 0, checkpoint.Wrap(fmt.Errorf("%w, offset: %v, whence: %v", afero.ErrOutOfRange, offset, whence), ErrSeekFile)
	}

	f.offset = offset
	return offset, nil
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.vf.WriteAt(f.offset, p)
	f.offset += int64(n)
	if err != nil {
		return n, checkpoint.Wrap(err, ErrWriteFile)
	}
	return n, nil
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	n, err := f.vf.WriteAt(off, p)
	if err != nil {
		return n, checkpoint.Wrap(err, ErrWriteFile)
	}
	return n, nil
}

func (f *File) Name() string {
	return f.name
}

// Readdir reads the contents of a directory. May return syscall.ENOTDIR if
// the current File is not a directory.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if !f.vf.IsDir() {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}

	entries, err := vfile.Ls(f.vf)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	visible := entries[:0]
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		visible = append(visible, e)
	}
	entries = visible

	if f.dirOff >= len(entries) {
		if count > 0 {
			return nil, io.EOF
		}
		return []os.FileInfo{}, nil
	}

	end := len(entries)
	var err2 error
	if count > 0 {
		if f.dirOff+count < end {
			end = f.dirOff + count
		} else {
			err2 = io.EOF
		}
	}

	slice := entries[f.dirOff:end]
	f.dirOff = end

	result := make([]os.FileInfo, len(slice))
	for i, e := range slice {
		result[i] = dirEntryInfo{e}
	}
	return result, err2
}

func (f *File) Readdirnames(count int) ([]string, error) {
	entries, err := f.Readdir(count)
	if err != nil && err != io.EOF {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, err
}

func (f *File) Stat() (os.FileInfo, error) {
	return vfileInfo{vf: f.vf, name: f.name}, nil
}

func (f *File) Sync() error {
	return checkpoint.Wrap(f.vf.Manager().Sync(), ErrWriteFile)
}

func (f *File) Truncate(size int64) error {
	return checkpoint.Wrap(f.vf.Truncate(uint32(size)), ErrWriteFile)
}

func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}
