// Package fat also hosts FATManager, the volume-level controller described
// in spec.md §4.3: it owns the BPB-derived geometry, the FAT table, and the
// block cache, and exposes the cluster-level primitives the vfile package
// builds directory and file semantics on top of. It is grounded in
// original_source/fatfs/src/layout.rs's FATManager and in the teacher's
// gofat.Fs mount sequence (fs.go's New), generalized from a single
// io.ReadSeeker to the blockdev.BlockDevice seam.
package fat

import (
	"sync"

	"github.com/embedos/fat32/blockdev"
	"github.com/embedos/fat32/cache"
	"github.com/embedos/fat32/errs"
)

// Manager is the mounted, live view of a FAT32 volume: BPB-derived
// geometry, the FAT table, and the shared block cache. Per spec.md §5,
// queries (Table's Count/GetNext/Chain/LastOf, RootCluster) are safe to
// call under a read lock on Mu, while AllocClusters/FreeChain require the
// write lock: every exported Manager method that touches shared state
// takes the appropriate lock itself. Callers composing several calls into
// one atomic operation (vfile's Create/Remove/IncreaseSize) hold Mu
// themselves for the whole operation and use the NL ("no lock") entry
// points below instead, since Mu is not reentrant.
type Manager struct {
	Mu sync.RWMutex

	device blockdev.BlockDevice
	cache  *cache.Cache
	table  *Table

	bytesPerSector      uint16
	sectorsPerCluster   uint8
	reservedSectorCount uint16
	numFATs             uint8
	sectorsPerFAT       uint32
	rootCluster         uint32
	totalClusters       uint32
	fsInfoSector        uint16
	dataStartSector     uint64
	hiddenSectors       uint32
}

// Mount reads the boot sector and FSInfo sector from device, validates the
// volume as FAT32, and returns a ready-to-use Manager. It follows a
// two-phase bootstrap: sector 0 is first read with no partition offset to
// recover HiddenSectors, then the cache's start sector is set and sector 0
// is re-read at its true logical position, per spec.md §4.3.
func Mount(device blockdev.BlockDevice, cacheLimit int) (*Manager, error) {
	return mount(device, cacheLimit, true)
}

// MountSkipChecks mounts like Mount but does not reject a volume whose BPB
// jump/boot-sector signatures or FAT32 shape look wrong, for callers
// working with nonstandard or hand-built images. Use with caution: a
// volume that fails these checks may have wrong geometry, and subsequent
// reads/writes can misbehave.
func MountSkipChecks(device blockdev.BlockDevice, cacheLimit int) (*Manager, error) {
	return mount(device, cacheLimit, false)
}

func mount(device blockdev.BlockDevice, cacheLimit int, strict bool) (*Manager, error) {
	c := cache.New(cacheLimit)

	// The probe bypasses the cache so that the later Get(0) is a real read at
	// the partition-relative sector rather than a hit on the probe's buffer.
	var probe [blockdev.SectorSize]byte
	if err := device.ReadBlock(0, probe[:]); err != nil {
		return nil, err
	}
	hidden := NewBPB(probe[:]).HiddenSectors()

	c.SetStartSector(uint64(hidden))

	h, err := c.Get(0, device)
	if err != nil {
		return nil, err
	}
	var bpbBuf [blockdev.SectorSize]byte
	err = h.ReadWith(0, blockdev.SectorSize, func(b []byte) { copy(bpbBuf[:], b) })
	h.Release()
	if err != nil {
		return nil, err
	}
	bpb := NewBPB(bpbBuf[:])

	if strict && (!bpb.JumpSignatureValid() || !bpb.BootSectorSignatureValid() || !bpb.IsFAT32()) {
		return nil, errs.ErrCorrupt
	}

	if strict && bpb.BytesPerSector() != blockdev.SectorSize {
		return nil, errs.ErrCorrupt
	}

	if strict {
		fh, err := c.Get(uint64(bpb.FSInfoSector()), device)
		if err != nil {
			return nil, err
		}
		var fsInfoBuf [blockdev.SectorSize]byte
		err = fh.ReadWith(0, blockdev.SectorSize, func(b []byte) { copy(fsInfoBuf[:], b) })
		fh.Release()
		if err != nil {
			return nil, err
		}
		if !NewFSInfo(fsInfoBuf[:]).SignaturesValid() {
			return nil, errs.ErrCorrupt
		}
	}

	m := &Manager{
		device:              device,
		cache:               c,
		bytesPerSector:      bpb.BytesPerSector(),
		sectorsPerCluster:   bpb.SectorsPerCluster(),
		reservedSectorCount: bpb.ReservedSectorCount(),
		numFATs:             bpb.NumFATs(),
		sectorsPerFAT:       bpb.FATSize32(),
		rootCluster:         bpb.RootCluster(),
		fsInfoSector:        bpb.FSInfoSector(),
		hiddenSectors:       hidden,
	}

	totalSectors := bpb.TotalSectors32()
	if totalSectors == 0 {
		totalSectors = uint32(bpb.TotalSectors16())
	}
	m.dataStartSector = uint64(m.reservedSectorCount) + uint64(m.numFATs)*uint64(m.sectorsPerFAT)
	if m.sectorsPerCluster != 0 && uint64(totalSectors) > m.dataStartSector {
		dataSectors := totalSectors - uint32(m.dataStartSector)
		m.totalClusters = dataSectors / uint32(m.sectorsPerCluster)
	}

	m.table = NewTable(c, device, uint64(m.reservedSectorCount), m.sectorsPerFAT, m.numFATs, m.bytesPerSector, m.totalClusters)

	return m, nil
}

// BytesPerCluster returns the cluster size in bytes.
func (m *Manager) BytesPerCluster() uint32 {
	return uint32(m.bytesPerSector) * uint32(m.sectorsPerCluster)
}

// RootCluster returns the first cluster of the root directory.
func (m *Manager) RootCluster() uint32 { return m.rootCluster }

// Cache returns the block cache this manager reads and writes through.
func (m *Manager) Cache() *cache.Cache { return m.cache }

// Device returns the underlying block device.
func (m *Manager) Device() blockdev.BlockDevice { return m.device }

// Table returns the FAT cluster-chain table.
func (m *Manager) Table() *Table { return m.table }

func (m *Manager) firstSectorOfCluster(cluster uint32) uint64 {
	return m.dataStartSector + uint64(cluster-FirstDataCluster)*uint64(m.sectorsPerCluster)
}

func (m *Manager) fsInfo() (FSInfo, error) {
	h, err := m.cache.Get(uint64(m.fsInfoSector), m.device)
	if err != nil {
		return FSInfo{}, err
	}
	defer h.Release()
	var buf [blockdev.SectorSize]byte
	err = h.ReadWith(0, blockdev.SectorSize, func(b []byte) { copy(buf[:], b) })
	return NewFSInfo(buf[:]), err
}

func (m *Manager) nextFreeHint() uint32 {
	info, err := m.fsInfo()
	if err != nil || !info.SignaturesValid() {
		return FirstDataCluster
	}
	hint := info.NextFree()
	if hint == 0xFFFFFFFF {
		return FirstDataCluster
	}
	return hint
}

// updateFSInfo adjusts the FSInfo free-cluster count by delta and records
// hint as the next place to start scanning for a free cluster. It is a
// hint only: an invalid FSInfo sector is left untouched rather than
// treated as a mount error, matching spec.md §4.3's "advisory" framing.
func (m *Manager) updateFSInfo(delta int32, hint uint32) {
	h, err := m.cache.Get(uint64(m.fsInfoSector), m.device)
	if err != nil {
		return
	}
	defer h.Release()
	_ = h.ModifyWith(0, blockdev.SectorSize, func(b []byte) {
		info := NewFSInfo(b)
		if !info.SignaturesValid() {
			return
		}
		if fc := info.FreeCount(); fc != 0xFFFFFFFF {
			info.SetFreeCount(uint32(int64(fc) + int64(delta)))
		}
		info.SetNextFree(hint)
	})
}

// AllocClusters allocates n clusters chained together and returns them in
// order. It takes Mu's write lock for the duration, per spec.md §5.
func (m *Manager) AllocClusters(n int) ([]uint32, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.AllocClustersNL(n)
}

// AllocClustersNL is AllocClusters without taking Mu. The caller must
// already hold Mu for writing - vfile's Create/IncreaseSize call this
// instead of AllocClusters so that allocation stays inside their own
// outer write lock rather than re-entering Mu.
func (m *Manager) AllocClustersNL(n int) ([]uint32, error) {
	clusters, err := m.table.AllocateFree(n, m.nextFreeHint())
	if err != nil {
		return nil, err
	}
	last := clusters[len(clusters)-1]
	hint := last + 1
	if hint >= m.totalClusters+FirstDataCluster {
		hint = FirstDataCluster
	}
	m.updateFSInfo(-int32(len(clusters)), hint)
	return clusters, nil
}

// FreeChain deallocates every cluster in the chain starting at first. It
// takes Mu's write lock for the duration, per spec.md §5.
func (m *Manager) FreeChain(first uint32) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.FreeChainNL(first)
}

// FreeChainNL is FreeChain without taking Mu; see AllocClustersNL.
func (m *Manager) FreeChainNL(first uint32) error {
	n, err := m.table.Count(first)
	if err != nil {
		return err
	}
	if err := m.table.DeallocateChain(first); err != nil {
		return err
	}
	m.updateFSInfo(int32(n), first)
	return nil
}

// ClearCluster zeroes every byte of cluster.
func (m *Manager) ClearCluster(cluster uint32) error {
	sector := m.firstSectorOfCluster(cluster)
	for i := uint8(0); i < m.sectorsPerCluster; i++ {
		h, err := m.cache.Get(sector+uint64(i), m.device)
		if err != nil {
			return err
		}
		err = h.ModifyWith(0, blockdev.SectorSize, func(b []byte) {
			for j := range b {
				b[j] = 0
			}
		})
		h.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

// SizeToClusters returns the number of clusters needed to hold size bytes.
func (m *Manager) SizeToClusters(size uint32) uint32 {
	bpc := m.BytesPerCluster()
	return (size + bpc - 1) / bpc
}

// ClustersNeededToGrow returns how many additional clusters must be
// allocated for a chain currently holding currentSize bytes to hold
// newSize bytes.
func (m *Manager) ClustersNeededToGrow(currentSize, newSize uint32) uint32 {
	cur := m.SizeToClusters(currentSize)
	want := m.SizeToClusters(newSize)
	if want <= cur {
		return 0
	}
	return want - cur
}

// ReadAt reads into buf starting at byte offset within the cluster chain
// beginning at firstCluster, returning the number of bytes copied. It does
// not consult any file-size bound; callers (vfile.VFile) clamp against
// their own recorded size first. It takes Mu's read lock for the chain
// traversal, per spec.md §5; per-sector access is further serialized by
// the BlockCache's own per-buffer lock.
func (m *Manager) ReadAt(firstCluster uint32, offset int64, buf []byte) (int, error) {
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	return m.ioAt(firstCluster, offset, buf, false)
}

// ReadAtNL is ReadAt without taking Mu; the caller must already hold Mu
// (for reading or writing) - used by vfile's compound operations that span
// several Manager calls under one outer lock.
func (m *Manager) ReadAtNL(firstCluster uint32, offset int64, buf []byte) (int, error) {
	return m.ioAt(firstCluster, offset, buf, false)
}

// WriteAt writes buf into the cluster chain beginning at firstCluster at
// byte offset, returning the number of bytes written. The chain must
// already be long enough to hold offset+len(buf) bytes; extending it is
// the caller's responsibility (via AllocClusters + Table.SetNext). It
// takes Mu's read lock for the chain traversal, same as ReadAt - writing
// the chain's data bytes does not itself mutate FAT structure.
func (m *Manager) WriteAt(firstCluster uint32, offset int64, buf []byte) (int, error) {
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	return m.ioAt(firstCluster, offset, buf, true)
}

// WriteAtNL is WriteAt without taking Mu; see ReadAtNL.
func (m *Manager) WriteAtNL(firstCluster uint32, offset int64, buf []byte) (int, error) {
	return m.ioAt(firstCluster, offset, buf, true)
}

func (m *Manager) ioAt(firstCluster uint32, offset int64, buf []byte, write bool) (int, error) {
	if firstCluster < FirstDataCluster || len(buf) == 0 {
		return 0, nil
	}
	bpc := int64(m.BytesPerCluster())
	clusterIndex := offset / bpc
	posInCluster := offset % bpc

	it := m.table.ChainFrom(firstCluster)
	cluster, ok := it.Next()
	if !ok {
		return 0, it.Err()
	}
	for i := int64(0); i < clusterIndex; i++ {
		cluster, ok = it.Next()
		if !ok {
			return 0, it.Err()
		}
	}

	total := 0
	for total < len(buf) {
		sector := m.firstSectorOfCluster(cluster) + uint64(posInCluster)/uint64(m.bytesPerSector)
		offInSector := int(uint64(posInCluster) % uint64(m.bytesPerSector))
		n := int(m.bytesPerSector) - offInSector
		if remaining := len(buf) - total; n > remaining {
			n = remaining
		}

		h, err := m.cache.Get(sector, m.device)
		if err != nil {
			return total, err
		}
		chunk := buf[total : total+n]
		if write {
			err = h.ModifyWith(offInSector, n, func(b []byte) { copy(b, chunk) })
		} else {
			err = h.ReadWith(offInSector, n, func(b []byte) { copy(chunk, b) })
		}
		h.Release()
		if err != nil {
			return total, err
		}

		total += n
		posInCluster += int64(n)
		if posInCluster >= bpc {
			posInCluster = 0
			cluster, ok = it.Next()
			if !ok {
				if it.Err() != nil {
					return total, it.Err()
				}
				return total, nil
			}
		}
	}
	return total, nil
}

// Sync flushes every dirty cache buffer to the device.
func (m *Manager) Sync() error { return m.cache.WriteAllBack() }
