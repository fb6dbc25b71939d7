//go:build !linux && !windows

package blockdev

import "fmt"

// Raw is unimplemented on this platform; use File against a device node
// exposed in the filesystem, or Memory for testing.
type Raw struct{}

// OpenRaw always fails on platforms without a native raw-device backend.
func OpenRaw(path string) (*Raw, error) {
	return nil, fmt.Errorf("blockdev: OpenRaw not supported on this platform")
}

func (d *Raw) ReadBlock(sector uint64, buf []byte) error {
	return fmt.Errorf("blockdev: Raw not supported on this platform")
}

func (d *Raw) WriteBlock(sector uint64, buf []byte) error {
	return fmt.Errorf("blockdev: Raw not supported on this platform")
}

func (d *Raw) Close() error {
	return nil
}
