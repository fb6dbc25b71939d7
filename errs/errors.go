// Package errs holds the sentinel error kinds shared by every layer of the
// driver (cache, fat, vfile, and the afero-facing root package). Callers
// should match against these with errors.Is; the checkpoint package is used
// on top to attach caller provenance.
package errs

import "errors"

var (
	// ErrNotFound is returned when a path or name lookup fails.
	ErrNotFound = errors.New("fat32: not found")

	// ErrAlreadyExists is returned when a create target name is already present.
	ErrAlreadyExists = errors.New("fat32: already exists")

	// ErrNotADirectory is returned when a directory-only operation targets a file.
	ErrNotADirectory = errors.New("fat32: not a directory")

	// ErrIsADirectory is returned when a file-only operation targets a directory.
	ErrIsADirectory = errors.New("fat32: is a directory")

	// ErrNoSpace is returned when free-cluster allocation fails or a directory
	// cannot be grown.
	ErrNoSpace = errors.New("fat32: no space left on device")

	// ErrCorrupt is returned for an invalid BPB/FSInfo signature, a FAT entry
	// pointing into reserved or out-of-range territory, or an LDE checksum
	// mismatch on a chain whose SDE nonetheless parses.
	ErrCorrupt = errors.New("fat32: corrupt filesystem structure")

	// ErrInvalidName is returned when a name contains illegal characters after
	// normalization, is empty, or is "." / ".." where disallowed.
	ErrInvalidName = errors.New("fat32: invalid name")
)
