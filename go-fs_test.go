package fat32

import (
	"testing"
	"testing/fstest"

	"github.com/spf13/afero"

	"github.com/embedos/fat32/blockdev"
	"github.com/embedos/fat32/internal/fatimage"
)

// buildPopulatedFs mounts a fresh image, creates a subdirectory with a file
// in it, and returns the live *Fs (not a fresh remount), so GoFs/afero.IOFS
// see the same cache state the writes went through.
func buildPopulatedFs(t *testing.T) *Fs {
	t.Helper()

	fsys, err := New(fatimage.Build())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := fsys.MkdirAll("sub", 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	f, err := fsys.Create("sub/hello.txt")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.Write([]byte("hello, fat32")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return fsys
}

func TestGoFS(t *testing.T) {
	fsys := buildPopulatedFs(t)
	gofs := GoFs{*fsys}

	if err := fstest.TestFS(gofs, "sub", "sub/hello.txt"); err != nil {
		t.Fatal(err)
	}
}

func TestIOFS(t *testing.T) {
	fsys := buildPopulatedFs(t)
	iofs := afero.IOFS{Fs: fsys}

	if err := fstest.TestFS(iofs, "sub", "sub/hello.txt"); err != nil {
		t.Fatal(err)
	}
}

func TestNewGoFS(t *testing.T) {
	type args struct {
		device blockdev.BlockDevice
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			name:    "valid FAT32 image",
			args:    args{device: fatimage.Build()},
			wantErr: false,
		},
		{
			name:    "unformatted device",
			args:    args{device: blockdev.NewMemory(fatimage.TotalSectors * fatimage.SectorSize)},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewGoFS(tt.args.device)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewGoFS() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got == nil {
				t.Fatal("NewGoFS() = nil, want non-nil")
			}
		})
	}
}

func TestNewGoFSSkipChecks(t *testing.T) {
	type args struct {
		device blockdev.BlockDevice
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			name:    "valid FAT32 image",
			args:    args{device: fatimage.Build()},
			wantErr: false,
		},
		{
			name:    "unformatted device still accepted",
			args:    args{device: blockdev.NewMemory(fatimage.TotalSectors * fatimage.SectorSize)},
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewGoFSSkipChecks(tt.args.device)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewGoFSSkipChecks() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got == nil {
				t.Fatal("NewGoFSSkipChecks() = nil, want non-nil")
			}
		})
	}
}

func TestNewIOFS(t *testing.T) {
	type args struct {
		device blockdev.BlockDevice
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			name:    "valid FAT32 image",
			args:    args{device: fatimage.Build()},
			wantErr: false,
		},
		{
			name:    "unformatted device",
			args:    args{device: blockdev.NewMemory(fatimage.TotalSectors * fatimage.SectorSize)},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewIOFS(tt.args.device)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewIOFS() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Fs == nil {
				t.Fatal("NewIOFS() Fs = nil, want non-nil")
			}
		})
	}
}

func TestNewIOFSSkipChecks(t *testing.T) {
	type args struct {
		device blockdev.BlockDevice
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			name:    "valid FAT32 image",
			args:    args{device: fatimage.Build()},
			wantErr: false,
		},
		{
			name:    "unformatted device still accepted",
			args:    args{device: blockdev.NewMemory(fatimage.TotalSectors * fatimage.SectorSize)},
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewIOFSSkipChecks(tt.args.device)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewIOFSSkipChecks() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Fs == nil {
				t.Fatal("NewIOFSSkipChecks() Fs = nil, want non-nil")
			}
		})
	}
}
