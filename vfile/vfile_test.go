package vfile_test

import (
	"strings"
	"testing"

	"github.com/embedos/fat32/fat"
	"github.com/embedos/fat32/internal/fatimage"
	"github.com/embedos/fat32/vfile"
)

func mustMount(t *testing.T) *fat.Manager {
	t.Helper()
	mgr, err := fat.Mount(fatimage.Build(), 16)
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	return mgr
}

func TestGetRootVFile(t *testing.T) {
	mgr := mustMount(t)
	root := vfile.GetRootVFile(mgr)
	if !root.IsRoot() {
		t.Error("IsRoot() = false, want true")
	}
	if !root.IsDir() {
		t.Error("IsDir() = false, want true")
	}
	if got := root.FirstCluster(); got != mgr.RootCluster() {
		t.Errorf("FirstCluster() = %d, want %d", got, mgr.RootCluster())
	}
}

func TestCreate_ShortNameFile(t *testing.T) {
	mgr := mustMount(t)
	root := vfile.GetRootVFile(mgr)

	f, err := vfile.Create(root, "HELLO.TXT", fat.AttrArchive)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if f.Name() != "HELLO.TXT" {
		t.Errorf("Name() = %q, want HELLO.TXT", f.Name())
	}

	found, err := vfile.FindByName(root, "hello.txt")
	if err != nil {
		t.Fatalf("FindByName() error = %v", err)
	}
	if found.Name() != "HELLO.TXT" {
		t.Errorf("FindByName() = %q, want HELLO.TXT", found.Name())
	}
}

func TestCreate_LongNameGeneratesShortAlias(t *testing.T) {
	mgr := mustMount(t)
	root := vfile.GetRootVFile(mgr)

	f, err := vfile.Create(root, "MyLongFileName.txt", fat.AttrArchive)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if f.Name() != "MyLongFileName.txt" {
		t.Errorf("Name() = %q, want MyLongFileName.txt", f.Name())
	}

	entries, err := vfile.Ls(root)
	if err != nil {
		t.Fatalf("Ls() error = %v", err)
	}
	var short string
	for _, e := range entries {
		if e.Name == "MyLongFileName.txt" {
			short = e.Name
		}
	}
	if short == "" {
		t.Fatal("Ls() did not return the long name entry")
	}

	// The generated 8.3 alias sits in the SDE right after the two LDE slots.
	sdeBuf := make([]byte, fat.DirEntSize)
	if _, err := mgr.ReadAt(mgr.RootCluster(), 2*fat.DirEntSize, sdeBuf); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if alias := fat.NewShortDirEntry(sdeBuf).NameString(); alias != "MYLONG~1.TXT" {
		t.Errorf("short alias = %q, want MYLONG~1.TXT", alias)
	}
}

func TestCreate_DuplicateNameFails(t *testing.T) {
	mgr := mustMount(t)
	root := vfile.GetRootVFile(mgr)

	if _, err := vfile.Create(root, "DUP.TXT", fat.AttrArchive); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := vfile.Create(root, "DUP.TXT", fat.AttrArchive); err == nil {
		t.Fatal("Create() error = nil, want ErrAlreadyExists")
	}
}

func TestCreate_DirectoryGetsDotEntries(t *testing.T) {
	mgr := mustMount(t)
	root := vfile.GetRootVFile(mgr)

	dir, err := vfile.Create(root, "SUBDIR", fat.AttrDirectory)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	entries, err := vfile.Ls(dir)
	if err != nil {
		t.Fatalf("Ls() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "." && entries[0].Name != ".." {
		t.Fatalf("Ls() = %+v, want './..' pair", entries)
	}

	names := map[string]uint32{}
	for _, e := range entries {
		names[e.Name] = e.FirstCluster
	}
	if names["."] != dir.FirstCluster() {
		t.Errorf(". points at cluster %d, want %d", names["."], dir.FirstCluster())
	}
	if names[".."] != root.FirstCluster() && names[".."] != 0 {
		t.Errorf(".. points at cluster %d, want the root's cluster", names[".."])
	}
}

func TestWriteAtAndReadAt_CrossesClusterBoundary(t *testing.T) {
	mgr := mustMount(t)
	root := vfile.GetRootVFile(mgr)

	f, err := vfile.Create(root, "BIG.BIN", fat.AttrArchive)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	payload := strings.Repeat("x", int(mgr.BytesPerCluster())+37)
	if _, err := f.WriteAt(0, []byte(payload)); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}

	buf := make([]byte, len(payload))
	n, err := f.ReadAt(0, buf)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if n != len(payload) {
		t.Fatalf("ReadAt() = %d bytes, want %d", n, len(payload))
	}
	if string(buf) != payload {
		t.Fatal("ReadAt() data does not round-trip across a cluster boundary")
	}
}

func TestRemove_FreesChainAndRemovesEntry(t *testing.T) {
	mgr := mustMount(t)
	root := vfile.GetRootVFile(mgr)

	f, err := vfile.Create(root, "GONE.TXT", fat.AttrArchive)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.WriteAt(0, []byte("bye")); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}

	first := f.FirstCluster()

	n, err := vfile.Remove(f)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Remove() freed %d clusters, want 1", n)
	}
	if next, err := mgr.Table().GetNext(first); err != nil {
		t.Fatalf("GetNext() error = %v", err)
	} else if next != 0 {
		t.Errorf("FAT entry of freed cluster %d = %#x, want 0 (free)", first, next)
	}

	if _, err := vfile.FindByName(root, "GONE.TXT"); err == nil {
		t.Fatal("FindByName() found a removed entry")
	}

	// The deleted directory slots should be reusable by a subsequent create.
	if _, err := vfile.Create(root, "NEW.TXT", fat.AttrArchive); err != nil {
		t.Fatalf("Create() after Remove() error = %v", err)
	}
}

func TestClear_KeepsEntryDropsData(t *testing.T) {
	mgr := mustMount(t)
	root := vfile.GetRootVFile(mgr)

	f, err := vfile.Create(root, "CLEARME.TXT", fat.AttrArchive)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := f.WriteAt(0, []byte("data")); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}

	if err := vfile.Clear(f); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if f.FileSize() != 0 {
		t.Errorf("FileSize() after Clear() = %d, want 0", f.FileSize())
	}

	if _, err := vfile.FindByName(root, "CLEARME.TXT"); err != nil {
		t.Fatalf("FindByName() after Clear() error = %v, want entry to survive", err)
	}
}

func TestFindByPath_NestedDirectories(t *testing.T) {
	mgr := mustMount(t)
	root := vfile.GetRootVFile(mgr)

	dir, err := vfile.Create(root, "A", fat.AttrDirectory)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := vfile.Create(dir, "B.TXT", fat.AttrArchive); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := vfile.FindByPath(root, "A/B.TXT")
	if err != nil {
		t.Fatalf("FindByPath() error = %v", err)
	}
	if found.Name() != "B.TXT" {
		t.Errorf("FindByPath() = %q, want B.TXT", found.Name())
	}
}

func TestRename_MovesAcrossDirectories(t *testing.T) {
	mgr := mustMount(t)
	root := vfile.GetRootVFile(mgr)

	src, err := vfile.Create(root, "SRC.TXT", fat.AttrArchive)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := src.WriteAt(0, []byte("payload")); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}

	dir, err := vfile.Create(root, "DST", fat.AttrDirectory)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	moved, err := vfile.Rename(src, dir, "MOVED.TXT")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	if _, err := vfile.FindByName(root, "SRC.TXT"); err == nil {
		t.Fatal("FindByName() still finds the old name after Rename()")
	}
	found, err := vfile.FindByName(dir, "MOVED.TXT")
	if err != nil {
		t.Fatalf("FindByName() in destination error = %v", err)
	}
	if found.FirstCluster() != moved.FirstCluster() {
		t.Error("renamed entry lost its data cluster")
	}
	buf := make([]byte, 7)
	if _, err := found.ReadAt(0, buf); err != nil {
		t.Fatalf("ReadAt() after rename error = %v", err)
	}
	if string(buf) != "payload" {
		t.Errorf("data after rename = %q, want payload", buf)
	}
}

func TestDirentInfo_RestartsAfterDeletedEntry(t *testing.T) {
	mgr := mustMount(t)
	root := vfile.GetRootVFile(mgr)

	a, err := vfile.Create(root, "MyLongNameA.txt", fat.AttrArchive)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := vfile.Create(root, "MyLongNameB.txt", fat.AttrArchive); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := vfile.Remove(a); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	entries, err := vfile.Ls(root)
	if err != nil {
		t.Fatalf("Ls() error = %v", err)
	}
	for _, e := range entries {
		if e.Name == "MyLongNameA.txt" {
			t.Fatal("Ls() returned a deleted entry's long name")
		}
	}

	got, err := vfile.DirentInfo(root, len(entries)-1)
	if err != nil {
		t.Fatalf("DirentInfo() error = %v", err)
	}
	if got.Name != "MyLongNameB.txt" {
		t.Errorf("DirentInfo() name = %q, want MyLongNameB.txt", got.Name)
	}
}
