package pager

import (
	"testing"

	"github.com/relstore/storagecore/internal/fsx"
)

func newTestBPM(t *testing.T, poolSize int) *BufferPoolManager {
	t.Helper()
	dm, err := NewDiskManager(t.TempDir(), fsx.OS{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	bpm, err := NewBufferPoolManager(dm, BufferPoolManagerOptions{PoolSizeInPages: poolSize}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return bpm
}

func TestCreatePageThenFetchPageSeesSameBytes(t *testing.T) {
	bpm := newTestBPM(t, 4)
	page, err := bpm.CreatePage(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := page.WriteI32(0, 12345); err != nil {
		t.Fatal(err)
	}
	id := page.ID
	if err := bpm.UnpinPage(id, true); err != nil {
		t.Fatal(err)
	}

	fetched, err := bpm.FetchPage(id)
	if err != nil {
		t.Fatal(err)
	}
	got, err := fetched.ReadI32(0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 12345 {
		t.Errorf("got %d, want 12345", got)
	}
	_ = bpm.UnpinPage(id, false)
}

// S6: buffer pool exhaustion. With every frame pinned, a further fetch/create
// fails fast with ErrBufferPoolFull rather than blocking.
func TestBufferPoolFullFailsFast(t *testing.T) {
	bpm := newTestBPM(t, 2)

	p1, err := bpm.CreatePage(1)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := bpm.CreatePage(1)
	if err != nil {
		t.Fatal(err)
	}
	_ = p1
	_ = p2

	if _, err := bpm.CreatePage(1); err != ErrBufferPoolFull {
		t.Errorf("got %v, want ErrBufferPoolFull", err)
	}
}

func TestUnpinnedFramesAreEvictable(t *testing.T) {
	bpm := newTestBPM(t, 1)

	p1, err := bpm.CreatePage(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := bpm.UnpinPage(p1.ID, false); err != nil {
		t.Fatal(err)
	}

	p2, err := bpm.CreatePage(1)
	if err != nil {
		t.Fatalf("expected eviction of unpinned frame to free space: %v", err)
	}
	if err := bpm.UnpinPage(p2.ID, false); err != nil {
		t.Fatal(err)
	}
}

func TestFlushAllThenFreshPoolReadsBack(t *testing.T) {
	dir := t.TempDir()
	dm, err := NewDiskManager(dir, fsx.OS{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	bpm, err := NewBufferPoolManager(dm, BufferPoolManagerOptions{PoolSizeInPages: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}

	page, err := bpm.CreatePage(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := page.WriteI64(8, 999); err != nil {
		t.Fatal(err)
	}
	id := page.ID
	if err := bpm.UnpinPage(id, true); err != nil {
		t.Fatal(err)
	}
	if err := bpm.FlushAll(); err != nil {
		t.Fatal(err)
	}
	if err := dm.Close(); err != nil {
		t.Fatal(err)
	}

	dm2, err := NewDiskManager(dir, fsx.OS{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	bpm2, err := NewBufferPoolManager(dm2, BufferPoolManagerOptions{PoolSizeInPages: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	reread, err := bpm2.FetchPage(id)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reread.ReadI64(8)
	if err != nil {
		t.Fatal(err)
	}
	if got != 999 {
		t.Errorf("got %d, want 999 after flush + reopen", got)
	}
}
