package fat

import (
	"encoding/binary"

	"github.com/embedos/fat32/blockdev"
	"github.com/embedos/fat32/cache"
	"github.com/embedos/fat32/errs"
)

// FAT32 cluster-entry reserved value ranges (spec.md §3 / §4.2).
const (
	ClusterFree     = 0x00000000
	ClusterBadMin   = 0x0FFFFFF7
	ClusterEOCMin   = 0x0FFFFFF8
	ClusterEntryMsk = 0x0FFFFFFF
	FirstDataCluster = 2
)

// Table is the FAT itself: the linked-list-of-clusters allocation table
// mirrored across NumFATs copies, grounded in
// original_source/fatfs/src/layout.rs's FATManager get_next_cluster/
// set_next_cluster and spec.md §4.2's entry-position arithmetic.
type Table struct {
	c      *cache.Cache
	device blockdev.BlockDevice

	fatStartSector uint64
	sectorsPerFAT  uint32
	numFATs        uint8
	bytesPerSector uint16
	totalClusters  uint32
}

// NewTable constructs a Table over an already-validated geometry. fatStartSector
// is the logical (start_sec-relative) sector of the first FAT copy.
func NewTable(c *cache.Cache, device blockdev.BlockDevice, fatStartSector uint64, sectorsPerFAT uint32, numFATs uint8, bytesPerSector uint16, totalClusters uint32) *Table {
	return &Table{
		c:              c,
		device:         device,
		fatStartSector: fatStartSector,
		sectorsPerFAT:  sectorsPerFAT,
		numFATs:        numFATs,
		bytesPerSector: bytesPerSector,
		totalClusters:  totalClusters,
	}
}

// IsEOC reports whether a raw (already-masked) 28-bit entry value marks the
// end of a cluster chain.
func IsEOC(v uint32) bool { return v >= ClusterEOCMin }

// IsBadCluster reports whether a raw entry value marks a bad cluster.
func IsBadCluster(v uint32) bool { return v >= ClusterBadMin && v < ClusterEOCMin }

// IsFreeEntry reports whether a raw entry value marks an unallocated
// cluster.
func IsFreeEntry(v uint32) bool { return v == ClusterFree }

func (t *Table) entryPosition(fatIndex int, cluster uint32) (sector uint64, offset int) {
	bytePos := uint64(cluster) * 4
	sectorsIntoFAT := bytePos / uint64(t.bytesPerSector)
	offset = int(bytePos % uint64(t.bytesPerSector))
	sector = t.fatStartSector + uint64(fatIndex)*uint64(t.sectorsPerFAT) + sectorsIntoFAT
	return sector, offset
}

func (t *Table) readEntry(fatIndex int, cluster uint32) (uint32, error) {
	sector, offset := t.entryPosition(fatIndex, cluster)
	h, err := t.c.Get(sector, t.device)
	if err != nil {
		return 0, err
	}
	defer h.Release()

	var raw uint32
	err = h.ReadWith(offset, 4, func(b []byte) { raw = binary.LittleEndian.Uint32(b) })
	if err != nil {
		return 0, err
	}
	return raw & ClusterEntryMsk, nil
}

// writeEntryAll writes value (already masked to 28 bits) to every FAT copy,
// preserving each copy's reserved top 4 bits, per spec.md §4.2's "all FAT
// copies kept in sync" invariant.
func (t *Table) writeEntryAll(cluster, value uint32) error {
	value &= ClusterEntryMsk
	for i := 0; i < int(t.numFATs); i++ {
		sector, offset := t.entryPosition(i, cluster)
		h, err := t.c.Get(sector, t.device)
		if err != nil {
			return err
		}
		err = h.ModifyWith(offset, 4, func(b []byte) {
			top := binary.LittleEndian.Uint32(b) &^ ClusterEntryMsk
			binary.LittleEndian.PutUint32(b, top|value)
		})
		h.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

// GetNext returns the successor cluster in the chain, reading FAT #1 first
// and falling back to FAT #2 if FAT #1's entry reads back as a bad-cluster
// marker (SPEC_FULL.md's supplemented FAT2-fallback feature, grounded in
// original_source/fatfs/src/layout.rs's get_next_cluster).
func (t *Table) GetNext(cluster uint32) (uint32, error) {
	v, err := t.readEntry(0, cluster)
	if err != nil {
		return 0, err
	}
	if IsBadCluster(v) && t.numFATs > 1 {
		return t.readEntry(1, cluster)
	}
	return v, nil
}

// SetNext links cluster to next (which may be a reserved EOC/free value) in
// every FAT copy.
func (t *Table) SetNext(cluster, next uint32) error {
	return t.writeEntryAll(cluster, next)
}

// ChainFrom lazily walks the cluster chain starting at first.
type ChainFrom struct {
	t       *Table
	cur     uint32
	started bool
	err     error
}

func (t *Table) ChainFrom(first uint32) *ChainFrom { return &ChainFrom{t: t, cur: first} }

// Next advances the iterator, returning the next cluster and true, or
// (0, false) at end of chain. Check Err after Next returns false.
func (it *ChainFrom) Next() (uint32, bool) {
	if it.err != nil {
		return 0, false
	}
	if !it.started {
		it.started = true
		if it.cur < FirstDataCluster || IsEOC(it.cur) {
			return 0, false
		}
		return it.cur, true
	}
	next, err := it.t.GetNext(it.cur)
	if err != nil {
		it.err = err
		return 0, false
	}
	if IsEOC(next) || next < FirstDataCluster {
		return 0, false
	}
	it.cur = next
	return next, true
}

func (it *ChainFrom) Err() error { return it.err }

// Chain eagerly collects every cluster in the chain starting at first.
func (t *Table) Chain(first uint32) ([]uint32, error) {
	var out []uint32
	it := t.ChainFrom(first)
	for c, ok := it.Next(); ok; c, ok = it.Next() {
		out = append(out, c)
	}
	return out, it.Err()
}

// LastOf returns the final cluster in the chain starting at first.
func (t *Table) LastOf(first uint32) (uint32, error) {
	if first < FirstDataCluster {
		return 0, errs.ErrCorrupt
	}
	cur := first
	for {
		next, err := t.GetNext(cur)
		if err != nil {
			return 0, err
		}
		if IsEOC(next) || next < FirstDataCluster {
			return cur, nil
		}
		cur = next
	}
}

// Count returns the number of clusters in the chain starting at first (0 if
// first is itself not a valid data cluster).
func (t *Table) Count(first uint32) (int, error) {
	n := 0
	it := t.ChainFrom(first)
	for _, ok := it.Next(); ok; _, ok = it.Next() {
		n++
	}
	return n, it.Err()
}

// AllocateFree allocates n free clusters, linking them into a single chain
// (each pointing to the next, the last marked EOC), and returns the chain
// in allocation order. Scanning starts at hint and wraps around the whole
// cluster space, mirroring FSInfo's next_free first-fit policy
// (original_source/fatfs/src/layout.rs's FSInfo-guided allocate_free).
func (t *Table) AllocateFree(n int, hint uint32) ([]uint32, error) {
	if n <= 0 {
		return nil, nil
	}
	if hint < FirstDataCluster || hint >= t.totalClusters+FirstDataCluster {
		hint = FirstDataCluster
	}

	found := make([]uint32, 0, n)
	total := t.totalClusters
	for i := uint32(0); i < total && uint32(len(found)) < uint32(n); i++ {
		cluster := hint + i
		if cluster >= total+FirstDataCluster {
			cluster -= total
		}
		v, err := t.readEntry(0, cluster)
		if err != nil {
			return nil, err
		}
		if IsFreeEntry(v) {
			found = append(found, cluster)
		}
	}
	if len(found) < n {
		return nil, errs.ErrNoSpace
	}

	for i, cluster := range found {
		if i == len(found)-1 {
			if err := t.writeEntryAll(cluster, ClusterEOCMin); err != nil {
				return nil, err
			}
			continue
		}
		if err := t.writeEntryAll(cluster, found[i+1]); err != nil {
			return nil, err
		}
	}
	return found, nil
}

// DeallocateChain frees every cluster in the chain starting at first,
// zeroing each entry in all FAT copies.
func (t *Table) DeallocateChain(first uint32) error {
	clusters, err := t.Chain(first)
	if err != nil {
		return err
	}
	for _, cluster := range clusters {
		if err := t.writeEntryAll(cluster, ClusterFree); err != nil {
			return err
		}
	}
	return nil
}
