package pager

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/relstore/storagecore/internal/storelog"
)

// frame is one buffer-pool slot. Frames are allocated once at pool
// construction and rebound to different pages over their lifetime.
type frame struct {
	page       *Page
	pinCount   int32
	isDirty    bool
	lruElement *list.Element // present iff pinCount == 0
}

// BufferPoolManagerOptions configures pool size. See internal/config for
// the YAML-loadable form.
type BufferPoolManagerOptions struct {
	PoolSizeInPages int
}

// BufferPoolManager mediates all access to resident pages: a fixed pool of
// frames, a page table, pin counts, dirty flags, and an LRU eviction
// policy. fetch_page/create_page fail fast with ErrBufferPoolFull when no
// frame is evictable — callers never block.
type BufferPoolManager struct {
	dm  *DiskManager
	log *storelog.Logger

	mu        sync.Mutex
	frames    []*frame
	pageTable map[PageID]int
	freeList  []int     // frame indices currently holding no page
	lru       *list.List // holds frame indices, front = most recently used
}

// NewBufferPoolManager creates a pool of opts.PoolSizeInPages frames backed
// by dm.
func NewBufferPoolManager(dm *DiskManager, opts BufferPoolManagerOptions, log *storelog.Logger) (*BufferPoolManager, error) {
	if opts.PoolSizeInPages <= 0 {
		return nil, fmt.Errorf("pager: pool_size_in_pages must be > 0, got %d", opts.PoolSizeInPages)
	}
	if log == nil {
		log = storelog.Nop()
	}
	bpm := &BufferPoolManager{
		dm:        dm,
		log:       log,
		frames:    make([]*frame, opts.PoolSizeInPages),
		pageTable: make(map[PageID]int, opts.PoolSizeInPages),
		lru:       list.New(),
	}
	for i := range bpm.frames {
		bpm.frames[i] = &frame{}
		bpm.freeList = append(bpm.freeList, i)
	}
	return bpm, nil
}

// pickVictim returns a frame index with pin_count == 0, preferring a never-
// used frame, then the least-recently-used resident frame. Returns -1 if
// none is evictable. Caller must hold bpm.mu.
func (bpm *BufferPoolManager) pickVictim() int {
	if n := len(bpm.freeList); n > 0 {
		idx := bpm.freeList[n-1]
		bpm.freeList = bpm.freeList[:n-1]
		return idx
	}
	back := bpm.lru.Back()
	if back == nil {
		return -1
	}
	bpm.lru.Remove(back)
	idx := back.Value.(int)
	bpm.frames[idx].lruElement = nil
	return idx
}

// evict prepares frame idx to be reused: flushes it if dirty and removes
// its old page-table entry. Caller must hold bpm.mu.
func (bpm *BufferPoolManager) evict(idx int) error {
	f := bpm.frames[idx]
	if f.page == nil {
		return nil
	}
	if f.isDirty {
		if err := bpm.dm.WritePage(f.page.ID, f.page.Bytes()); err != nil {
			bpm.log.Errorf("evict: flush of dirty page %s failed: %v", f.page.ID, err)
			return err
		}
		f.isDirty = false
	}
	bpm.log.Debugf("evicted page %s from frame %d", f.page.ID, idx)
	delete(bpm.pageTable, f.page.ID)
	return nil
}

// install binds frame idx to a freshly-read or freshly-allocated page,
// pinned once. Caller must hold bpm.mu.
func (bpm *BufferPoolManager) install(idx int, id PageID, dirty bool) *Page {
	f := bpm.frames[idx]
	if f.page == nil {
		f.page = NewPage(id)
	} else {
		f.page.ID = id
	}
	f.pinCount = 1
	f.isDirty = dirty
	f.lruElement = nil
	bpm.pageTable[id] = idx
	return f.page
}

func (bpm *BufferPoolManager) touch(idx int) {
	f := bpm.frames[idx]
	if f.pinCount == 0 && f.lruElement != nil {
		bpm.lru.Remove(f.lruElement)
		f.lruElement = nil
	}
}

// FetchPage returns the page for id, pinned. If not resident, it evicts a
// victim frame (flushing it first if dirty), reads the page from disk, and
// installs it.
func (bpm *BufferPoolManager) FetchPage(id PageID) (*Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if idx, ok := bpm.pageTable[id]; ok {
		f := bpm.frames[idx]
		bpm.touch(idx)
		f.pinCount++
		return f.page, nil
	}

	idx := bpm.pickVictim()
	if idx < 0 {
		bpm.log.Warnf("fetch page %s: pool exhausted, no evictable frame", id)
		return nil, ErrBufferPoolFull
	}
	if err := bpm.evict(idx); err != nil {
		return nil, err
	}
	buf := make([]byte, PageSize)
	if err := bpm.dm.ReadPage(id, buf); err != nil {
		return nil, err
	}
	page := bpm.install(idx, id, false)
	copy(page.Bytes(), buf)
	return page, nil
}

// CreatePage allocates a new page for tableID via the disk manager and
// installs it pinned and dirty.
func (bpm *BufferPoolManager) CreatePage(tableID int32) (*Page, error) {
	id, err := bpm.dm.AllocatePage(tableID)
	if err != nil {
		return nil, err
	}

	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	idx := bpm.pickVictim()
	if idx < 0 {
		bpm.log.Warnf("create page for table %d: pool exhausted, no evictable frame", tableID)
		return nil, ErrBufferPoolFull
	}
	if err := bpm.evict(idx); err != nil {
		return nil, err
	}
	page := bpm.install(idx, id, true)
	page.Reset()
	return page, nil
}

// UnpinPage decrements id's pin count and ORs isDirty into its dirty flag.
// Once the pin count reaches zero the frame becomes eviction-eligible.
func (bpm *BufferPoolManager) UnpinPage(id PageID, isDirty bool) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	idx, ok := bpm.pageTable[id]
	if !ok {
		return fmt.Errorf("pager: unpin: page %s not resident", id)
	}
	f := bpm.frames[idx]
	if f.pinCount <= 0 {
		return fmt.Errorf("pager: unpin: page %s already has pin_count 0", id)
	}
	f.pinCount--
	if isDirty {
		f.isDirty = true
	}
	if f.pinCount == 0 {
		f.lruElement = bpm.lru.PushFront(idx)
	}
	return nil
}

// FlushPage writes id's frame to disk if dirty and clears the dirty flag.
func (bpm *BufferPoolManager) FlushPage(id PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	idx, ok := bpm.pageTable[id]
	if !ok {
		return fmt.Errorf("pager: flush: page %s not resident", id)
	}
	f := bpm.frames[idx]
	if !f.isDirty {
		return nil
	}
	if err := bpm.dm.WritePage(id, f.page.Bytes()); err != nil {
		return err
	}
	f.isDirty = false
	return nil
}

// FlushAll writes every dirty resident frame to disk.
func (bpm *BufferPoolManager) FlushAll() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	for id, idx := range bpm.pageTable {
		f := bpm.frames[idx]
		if !f.isDirty {
			continue
		}
		if err := bpm.dm.WritePage(id, f.page.Bytes()); err != nil {
			return err
		}
		f.isDirty = false
	}
	return nil
}

// DisposeTableFile drops every resident frame belonging to tableID without
// flushing them, then deletes the table's file from disk. Used by
// DropTable, where dirty pages for a vanishing table must never be written
// back.
func (bpm *BufferPoolManager) DisposeTableFile(tableID int32) error {
	bpm.mu.Lock()
	for id, idx := range bpm.pageTable {
		if id.TableID != tableID {
			continue
		}
		f := bpm.frames[idx]
		if f.lruElement != nil {
			bpm.lru.Remove(f.lruElement)
			f.lruElement = nil
		}
		f.page = nil
		f.isDirty = false
		f.pinCount = 0
		delete(bpm.pageTable, id)
		bpm.freeList = append(bpm.freeList, idx)
	}
	bpm.mu.Unlock()
	return bpm.dm.RemoveTable(tableID)
}

// DisposeAsync flushes every dirty frame and closes the underlying disk
// manager. I/O here is synchronous like the rest of this package; the name
// just mirrors the engine's async-sounding lifecycle method.
func (bpm *BufferPoolManager) DisposeAsync() error {
	if err := bpm.FlushAll(); err != nil {
		return err
	}
	return bpm.dm.Close()
}
