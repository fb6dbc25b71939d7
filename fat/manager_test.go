package fat_test

import (
	"testing"

	"github.com/embedos/fat32/fat"
	"github.com/embedos/fat32/internal/fatimage"
)

func TestManager_MountReadsGeometry(t *testing.T) {
	dev := fatimage.Build()
	mgr, err := fat.Mount(dev, 8)
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if got := mgr.RootCluster(); got != fatimage.RootCluster {
		t.Errorf("RootCluster() = %d, want %d", got, fatimage.RootCluster)
	}
	if got := mgr.BytesPerCluster(); got != fatimage.BytesPerCluster {
		t.Errorf("BytesPerCluster() = %d, want %d", got, fatimage.BytesPerCluster)
	}
}

func TestManager_MountRejectsCorruptSignature(t *testing.T) {
	dev := fatimage.Build()
	buf := make([]byte, 512)
	_ = dev.ReadBlock(0, buf)
	buf[0] = 0x00
	buf[2] = 0x00
	_ = dev.WriteBlock(0, buf)

	if _, err := fat.Mount(dev, 8); err == nil {
		t.Fatal("Mount() error = nil, want a signature error")
	}
}

func TestManager_MountRejectsCorruptFSInfoSignature(t *testing.T) {
	dev := fatimage.Build()
	buf := make([]byte, 512)
	_ = dev.ReadBlock(fatimage.FSInfoSector, buf)
	buf[0] = 0x00
	_ = dev.WriteBlock(fatimage.FSInfoSector, buf)

	if _, err := fat.Mount(dev, 8); err == nil {
		t.Fatal("Mount() error = nil, want a corrupt FSInfo signature error")
	}
}

func TestManager_MountRejectsNonStandardSectorSize(t *testing.T) {
	dev := fatimage.Build()
	buf := make([]byte, 512)
	_ = dev.ReadBlock(0, buf)
	buf[11], buf[12] = 0x00, 0x04 // BytesPerSector = 1024
	_ = dev.WriteBlock(0, buf)

	if _, err := fat.Mount(dev, 8); err == nil {
		t.Fatal("Mount() error = nil, want a sector-size mismatch error")
	}
}

func TestManager_MountSkipChecksAcceptsCorruptSignature(t *testing.T) {
	dev := fatimage.Build()
	buf := make([]byte, 512)
	_ = dev.ReadBlock(0, buf)
	buf[0] = 0x00
	buf[2] = 0x00
	_ = dev.WriteBlock(0, buf)

	if _, err := fat.MountSkipChecks(dev, 8); err != nil {
		t.Fatalf("MountSkipChecks() error = %v, want nil", err)
	}
}

func TestManager_AllocAndFreeClusters(t *testing.T) {
	dev := fatimage.Build()
	mgr, err := fat.Mount(dev, 8)
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	clusters, err := mgr.AllocClusters(3)
	if err != nil {
		t.Fatalf("AllocClusters() error = %v", err)
	}
	if len(clusters) != 3 {
		t.Fatalf("AllocClusters() returned %d clusters, want 3", len(clusters))
	}
	n, err := mgr.Table().Count(clusters[0])
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}

	if err := mgr.FreeChain(clusters[0]); err != nil {
		t.Fatalf("FreeChain() error = %v", err)
	}
	next, err := mgr.Table().GetNext(clusters[0])
	if err != nil {
		t.Fatalf("GetNext() error = %v", err)
	}
	if next != 0 {
		t.Errorf("GetNext() after free = %d, want 0", next)
	}
}

func TestManager_ReadWriteAtRoundTrips(t *testing.T) {
	dev := fatimage.Build()
	mgr, err := fat.Mount(dev, 8)
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}

	clusters, err := mgr.AllocClusters(2)
	if err != nil {
		t.Fatalf("AllocClusters() error = %v", err)
	}
	if err := mgr.Table().SetNext(clusters[0], clusters[1]); err != nil {
		t.Fatalf("SetNext() error = %v", err)
	}
	if err := mgr.Table().SetNext(clusters[1], fat.ClusterEOCMin); err != nil {
		t.Fatalf("SetNext() error = %v", err)
	}

	payload := make([]byte, mgr.BytesPerCluster()+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := mgr.WriteAt(clusters[0], 0, payload)
	if err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	if n != len(payload) {
		t.Fatalf("WriteAt() wrote %d bytes, want %d", n, len(payload))
	}

	readBack := make([]byte, len(payload))
	n, err = mgr.ReadAt(clusters[0], 0, readBack)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if n != len(payload) {
		t.Fatalf("ReadAt() read %d bytes, want %d", n, len(payload))
	}
	for i := range payload {
		if readBack[i] != payload[i] {
			t.Fatalf("byte %d = %d, want %d", i, readBack[i], payload[i])
		}
	}
}
