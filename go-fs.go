package fat32

import (
	"errors"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/embedos/fat32/blockdev"
)

type GoDirEntry struct {
	fs.FileInfo
}

func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

type GoFile struct {
	*File
}

func (g GoFile) Stat() (fs.FileInfo, error) {
	return g.File.Stat()
}

func (g GoFile) Read(bytes []byte) (int, error) {
	return g.File.Read(bytes)
}

func (g GoFile) Close() error {
	return g.File.Close()
}

func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := g.File.Readdir(n)

	goEntries := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		goEntries[i] = GoDirEntry{e}
	}

	return goEntries, err
}

// GoFs just wraps the afero FAT32 implementation to be compatible with fs.FS.
type GoFs struct {
	Fs
}

// NewGoFS mounts device as a fs.FS-compatible filesystem.
func NewGoFS(device blockdev.BlockDevice) (*GoFs, error) {
	fs, err := New(device)
	if err != nil {
		return nil, err
	}

	return &GoFs{*fs}, nil
}

// NewGoFSSkipChecks mounts device like NewGoFS but skips some filesystem
// validations which may allow opening not perfectly standard FAT32 images.
// Use with caution!
func NewGoFSSkipChecks(device blockdev.BlockDevice) (*GoFs, error) {
	fs, err := NewSkipChecks(device)
	if err != nil {
		return nil, err
	}

	return &GoFs{*fs}, nil
}

func (g GoFs) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	file, err := g.Fs.Open(name)
	if err != nil {
		return nil, err
	}

	f, ok := file.(*File)
	if !ok {
		return nil, errors.New("invalid File implementation")
	}

	return GoFile{f}, nil
}

// NewIOFS mounts device and wraps it with afero's own io/fs.FS adapter,
// for callers that want a plain fs.FS without this package's GoFs/GoFile
// shim (e.g. fs.WalkDir, http.FileServer).
func NewIOFS(device blockdev.BlockDevice) (afero.IOFS, error) {
	fs, err := New(device)
	if err != nil {
		return afero.IOFS{}, err
	}
	return afero.IOFS{Fs: fs}, nil
}

// NewIOFSSkipChecks mounts device like NewIOFS but skips the BPB/FSInfo
// validation checks.
func NewIOFSSkipChecks(device blockdev.BlockDevice) (afero.IOFS, error) {
	fs, err := NewSkipChecks(device)
	if err != nil {
		return afero.IOFS{}, err
	}
	return afero.IOFS{Fs: fs}, nil
}
