// Package fatimage builds small, valid in-memory FAT32 volumes for tests
// across this module's packages, the way fat/bpb_test.go's makeBPB builds a
// single boot sector. A full volume needs a BPB, an FSInfo sector, two FAT
// copies and a zeroed root directory cluster all agreeing with each other,
// which is more than any one package's _test.go file should duplicate, so
// it lives here instead.
package fatimage

import (
	"encoding/binary"

	"github.com/embedos/fat32/blockdev"
)

// Geometry are the constants every built image shares. They describe a
// deliberately small, single-sector-per-cluster volume: enough clusters to
// exercise directory growth and multi-cluster files without building a
// multi-megabyte image per test.
const (
	SectorSize        = blockdev.SectorSize
	SectorsPerCluster = 1
	ReservedSectors   = 32
	NumFATs           = 2
	FATSize32         = 1
	RootCluster       = 2
	FSInfoSector      = 1
	DataStartSector   = ReservedSectors + NumFATs*FATSize32
	TotalClusters     = 64
	TotalSectors      = DataStartSector + TotalClusters*SectorsPerCluster
	BytesPerCluster   = SectorsPerCluster * SectorSize
)

// Build returns a freshly formatted volume: an empty root directory (one
// cluster, zeroed so it reads as immediately terminated) and both FAT
// copies marking cluster 0/1 reserved and cluster 2 (root) as an
// end-of-chain.
func Build() *blockdev.Memory {
	dev := blockdev.NewMemory(TotalSectors * SectorSize)

	bpb := make([]byte, SectorSize)
	bpb[0], bpb[1], bpb[2] = 0xEB, 0x58, 0x90
	putU16(bpb, 11, SectorSize)
	bpb[13] = SectorsPerCluster
	putU16(bpb, 14, ReservedSectors)
	bpb[16] = NumFATs
	bpb[21] = 0xF8
	putU32(bpb, 32, TotalSectors)
	putU32(bpb, 36, FATSize32)
	putU32(bpb, 44, RootCluster)
	putU16(bpb, 48, FSInfoSector)
	bpb[66] = 0x29
	copy(bpb[82:90], "FAT32   ")
	bpb[510], bpb[511] = 0x55, 0xAA
	if err := dev.WriteBlock(0, bpb); err != nil {
		panic(err)
	}

	fsinfo := make([]byte, SectorSize)
	putU32(fsinfo, 0, 0x41615252)
	putU32(fsinfo, 484, 0x61417272)
	putU32(fsinfo, 508, 0xAA550000)
	putU32(fsinfo, 488, TotalClusters-1)
	putU32(fsinfo, 492, RootCluster+1)
	if err := dev.WriteBlock(FSInfoSector, fsinfo); err != nil {
		panic(err)
	}

	fatSector := make([]byte, SectorSize)
	putU32(fatSector, 0, 0x0FFFFFF8)
	putU32(fatSector, 4, 0x0FFFFFFF)
	putU32(fatSector, 8, 0x0FFFFFFF) // cluster 2 (root), one-cluster chain
	if err := dev.WriteBlock(ReservedSectors, fatSector); err != nil {
		panic(err)
	}
	if err := dev.WriteBlock(ReservedSectors+FATSize32, fatSector); err != nil {
		panic(err)
	}

	root := make([]byte, BytesPerCluster)
	if err := dev.WriteBlock(sectorOfCluster(RootCluster), root); err != nil {
		panic(err)
	}

	return dev
}

func sectorOfCluster(cluster uint32) uint64 {
	return DataStartSector + uint64(cluster-RootCluster)*SectorsPerCluster
}

func putU16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:], v) }
func putU32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }
