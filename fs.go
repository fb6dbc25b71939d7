package fat32

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/embedos/fat32/blockdev"
	"github.com/embedos/fat32/cache"
	"github.com/embedos/fat32/checkpoint"
	"github.com/embedos/fat32/errs"
	"github.com/embedos/fat32/fat"
	"github.com/embedos/fat32/vfile"
)

// These errors may occur while mounting or navigating a volume.
var (
	ErrMount      = errors.New("could not mount the volume")
	ErrCreateFile = errors.New("could not create the file or directory")
	ErrOpenFile   = errors.New("could not open the file")
	ErrRemoveFile = errors.New("could not remove the file or directory")
	ErrRenameFile = errors.New("could not rename the file or directory")
	ErrStatFile   = errors.New("could not stat the file or directory")
	ErrChmodFile  = errors.New("could not change the file mode")
	ErrChtimes    = errors.New("could not change the file times")
)

// Fs implements afero.Fs over a mounted FAT32 volume. It is the VFS-facing
// counterpart to fat.Manager: every method here resolves a path through
// vfile and lets that package do the actual cluster/directory-entry work.
type Fs struct {
	mgr  *fat.Manager
	root *vfile.VFile
}

// New mounts device as a FAT32 volume, rejecting a BPB/FSInfo pair that
// doesn't look like FAT32.
func New(device blockdev.BlockDevice) (*Fs, error) {
	return mount(device, true)
}

// NewSkipChecks mounts device like New but does not validate the BPB jump
// signature, boot sector signature or FAT32 shape, for nonstandard images.
// Use with caution.
func NewSkipChecks(device blockdev.BlockDevice) (*Fs, error) {
	return mount(device, false)
}

func mount(device blockdev.BlockDevice, strict bool) (*Fs, error) {
	var mgr *fat.Manager
	var err error
	if strict {
		mgr, err = fat.Mount(device, cache.DefaultLimit)
	} else {
		mgr, err = fat.MountSkipChecks(device, cache.DefaultLimit)
	}
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrMount)
	}
	return &Fs{mgr: mgr, root: vfile.GetRootVFile(mgr)}, nil
}

// resolveParent walks every path component but the last and returns the
// parent directory handle plus the leaf name, for the operations (Create,
// Mkdir, Rename's destination) that need to create or locate a slot rather
// than just read one.
func (fs *Fs) resolveParent(name string) (*vfile.VFile, string, error) {
	name = strings.Trim(name, "/")
	if name == "" {
		return nil, "", errs.ErrInvalidName
	}
	parts := strings.Split(name, "/")
	leaf := parts[len(parts)-1]
	dir := fs.root
	for _, p := range parts[:len(parts)-1] {
		next, err := vfile.FindByName(dir, p)
		if err != nil {
			return nil, "", err
		}
		dir = next
	}
	return dir, leaf, nil
}

func leafOf(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}

func (fs *Fs) Create(name string) (afero.File, error) {
	dir, leaf, err := fs.resolveParent(name)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrCreateFile)
	}
	vf, err := vfile.Create(dir, leaf, fat.AttrArchive)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrCreateFile)
	}
	return &File{vf: vf, name: leaf}, nil
}

func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	dir, leaf, err := fs.resolveParent(name)
	if err != nil {
		return checkpoint.Wrap(err, ErrCreateFile)
	}
	if _, err := vfile.Create(dir, leaf, fat.AttrDirectory); err != nil {
		return checkpoint.Wrap(err, ErrCreateFile)
	}
	return nil
}

func (fs *Fs) MkdirAll(path string, perm os.FileMode) error {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	dir := fs.root
	for _, p := range strings.Split(path, "/") {
		next, err := vfile.FindByName(dir, p)
		if err == nil {
			if !next.IsDir() {
				return checkpoint.Wrap(errs.ErrNotADirectory, ErrCreateFile)
			}
			dir = next
			continue
		}
		if err != errs.ErrNotFound {
			return checkpoint.Wrap(err, ErrCreateFile)
		}
		created, cErr := vfile.Create(dir, p, fat.AttrDirectory)
		if cErr != nil {
			return checkpoint.Wrap(cErr, ErrCreateFile)
		}
		dir = created
	}
	return nil
}

func (fs *Fs) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	trimmed := strings.Trim(name, "/")
	if trimmed == "" {
		return &File{vf: fs.root, name: "/"}, nil
	}

	vf, err := vfile.FindByPath(fs.root, name)
	if err != nil {
		if err == errs.ErrNotFound && flag&os.O_CREATE != 0 {
			dir, leaf, rErr := fs.resolveParent(name)
			if rErr != nil {
				return nil, checkpoint.Wrap(rErr, ErrOpenFile)
			}
			vf, err = vfile.Create(dir, leaf, fat.AttrArchive)
			if err != nil {
				return nil, checkpoint.Wrap(err, ErrOpenFile)
			}
			return &File{vf: vf, name: leaf}, nil
		}
		return nil, checkpoint.Wrap(err, ErrOpenFile)
	}

	if flag&os.O_TRUNC != 0 {
		if err := vf.Truncate(0); err != nil {
			return nil, checkpoint.Wrap(err, ErrOpenFile)
		}
	}

	f := &File{vf: vf, name: leafOf(name)}
	if flag&os.O_APPEND != 0 {
		st, err := vf.Stat()
		if err != nil {
			return nil, checkpoint.Wrap(err, ErrOpenFile)
		}
		f.offset = st.Size
	}
	return f, nil
}

func (fs *Fs) Remove(name string) error {
	vf, err := vfile.FindByPath(fs.root, name)
	if err != nil {
		return checkpoint.Wrap(err, ErrRemoveFile)
	}
	if _, err := vfile.Remove(vf); err != nil {
		return checkpoint.Wrap(err, ErrRemoveFile)
	}
	return nil
}

func (fs *Fs) RemoveAll(path string) error {
	vf, err := vfile.FindByPath(fs.root, path)
	if err != nil {
		if err == errs.ErrNotFound {
			return nil
		}
		return checkpoint.Wrap(err, ErrRemoveFile)
	}

	if vf.IsDir() {
		entries, err := vfile.Ls(vf)
		if err != nil {
			return checkpoint.Wrap(err, ErrRemoveFile)
		}
		base := strings.TrimRight(path, "/")
		for _, e := range entries {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			if err := fs.RemoveAll(base + "/" + e.Name); err != nil {
				return err
			}
		}
	}

	if _, err := vfile.Remove(vf); err != nil {
		return checkpoint.Wrap(err, ErrRemoveFile)
	}
	return nil
}

func (fs *Fs) Rename(oldname, newname string) error {
	vf, err := vfile.FindByPath(fs.root, oldname)
	if err != nil {
		return checkpoint.Wrap(err, ErrRenameFile)
	}
	newDir, leaf, err := fs.resolveParent(newname)
	if err != nil {
		return checkpoint.Wrap(err, ErrRenameFile)
	}
	if _, err := vfile.Rename(vf, newDir, leaf); err != nil {
		return checkpoint.Wrap(err, ErrRenameFile)
	}
	return nil
}

func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	vf, err := vfile.FindByPath(fs.root, name)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrStatFile)
	}
	return vfileInfo{vf: vf, name: leafOf(name)}, nil
}

func (fs *Fs) Name() string { return "fat32" }

// Chmod maps the single owner-write bit to the SDE's AttrReadOnly flag.
// FAT32 has no richer permission model to map the rest of mode onto.
func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	vf, err := vfile.FindByPath(fs.root, name)
	if err != nil {
		return checkpoint.Wrap(err, ErrChmodFile)
	}
	if err := vf.SetReadOnly(mode&0200 == 0); err != nil {
		return checkpoint.Wrap(err, ErrChmodFile)
	}
	return nil
}

// Chown is a no-op: FAT32 directory entries carry no uid/gid.
func (fs *Fs) Chown(name string, uid, gid int) error {
	_, err := vfile.FindByPath(fs.root, name)
	if err != nil {
		return checkpoint.Wrap(err, ErrStatFile)
	}
	return nil
}

func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	vf, err := vfile.FindByPath(fs.root, name)
	if err != nil {
		return checkpoint.Wrap(err, ErrChtimes)
	}
	if err := vf.SetTime(EncodeDate(mtime), EncodeTime(mtime)); err != nil {
		return checkpoint.Wrap(err, ErrChtimes)
	}
	return nil
}

// Label returns the volume's ATTR_VOLUME_ID entry name, if any.
func (fs *Fs) Label() (string, bool, error) {
	label, ok, err := vfile.VolumeLabel(fs.root)
	if err != nil {
		return "", false, checkpoint.Wrap(err, ErrStatFile)
	}
	return label, ok, nil
}
