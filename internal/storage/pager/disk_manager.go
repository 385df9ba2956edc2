package pager

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/relstore/storagecore/internal/fsx"
	"github.com/relstore/storagecore/internal/storelog"
)

// DiskManager maps (table_id, page_index) pairs to file offsets within
// one file per table: {base_dir}/{table_id}.tbl.
type DiskManager struct {
	baseDir string
	fs      fsx.Filesystem
	log     *storelog.Logger

	mu    sync.Mutex
	files map[int32]fsx.File
}

// NewDiskManager creates a DiskManager rooted at baseDir, creating the
// directory if it does not already exist.
func NewDiskManager(baseDir string, fs fsx.Filesystem, log *storelog.Logger) (*DiskManager, error) {
	if err := fs.EnsureDir(baseDir); err != nil {
		return nil, fmt.Errorf("%w: ensure base dir %s: %v", ErrIoError, baseDir, err)
	}
	if log == nil {
		log = storelog.Nop()
	}
	return &DiskManager{baseDir: baseDir, fs: fs, log: log, files: make(map[int32]fsx.File)}, nil
}

func (dm *DiskManager) tablePath(tableID int32) string {
	return filepath.Join(dm.baseDir, fmt.Sprintf("%d.tbl", tableID))
}

// file returns the (lazily opened) handle for tableID. Callers must hold dm.mu.
func (dm *DiskManager) file(tableID int32) (fsx.File, error) {
	if f, ok := dm.files[tableID]; ok {
		return f, nil
	}
	f, err := dm.fs.OpenReadWrite(dm.tablePath(tableID))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIoError, dm.tablePath(tableID), err)
	}
	dm.files[tableID] = f
	return f, nil
}

// ReadPage reads PageSize bytes for id into buf, zero-filling any portion
// past the current end of file.
func (dm *DiskManager) ReadPage(id PageID, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("pager: read page: buffer length %d != %d", len(buf), PageSize)
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	f, err := dm.file(id.TableID)
	if err != nil {
		return err
	}
	offset := int64(id.PageIndex) * PageSize
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: read page %s: %v", ErrIoError, id, err)
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

// WritePage writes data (exactly PageSize bytes) for id, extending the file
// if the page lies past its current length.
func (dm *DiskManager) WritePage(id PageID, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("pager: write page: buffer length %d != %d", len(data), PageSize)
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()

	f, err := dm.file(id.TableID)
	if err != nil {
		return err
	}
	offset := int64(id.PageIndex) * PageSize
	length, err := f.Length()
	if err != nil {
		return fmt.Errorf("%w: stat table %d: %v", ErrIoError, id.TableID, err)
	}
	needed := offset + PageSize
	if length < needed {
		if err := f.Truncate(needed); err != nil {
			return fmt.Errorf("%w: extend table %d to %d bytes: %v", ErrIoError, id.TableID, needed, err)
		}
	}
	if _, err := f.WriteAt(data, offset); err != nil {
		return fmt.Errorf("%w: write page %s: %v", ErrIoError, id, err)
	}
	return nil
}

// AllocatePage extends tableID's file by one page and returns its new id.
// The new page_index equals the file's prior length in pages.
func (dm *DiskManager) AllocatePage(tableID int32) (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	f, err := dm.file(tableID)
	if err != nil {
		return PageID{}, err
	}
	length, err := f.Length()
	if err != nil {
		return PageID{}, fmt.Errorf("%w: stat table %d: %v", ErrIoError, tableID, err)
	}
	pageIndex := int32(length / PageSize)
	id := PageID{TableID: tableID, PageIndex: pageIndex}
	if err := f.Truncate(int64(pageIndex+1) * PageSize); err != nil {
		return PageID{}, fmt.Errorf("%w: allocate page %s: %v", ErrIoError, id, err)
	}
	dm.log.Debugf("allocated page %s", id)
	return id, nil
}

// TableExists reports whether tableID's file already exists on disk,
// letting callers distinguish bootstrapping a fresh table from opening one.
func (dm *DiskManager) TableExists(tableID int32) bool {
	return dm.fs.Exists(dm.tablePath(tableID))
}

// PageCount returns the number of pages currently in tableID's file.
func (dm *DiskManager) PageCount(tableID int32) (int32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	f, err := dm.file(tableID)
	if err != nil {
		return 0, err
	}
	length, err := f.Length()
	if err != nil {
		return 0, fmt.Errorf("%w: stat table %d: %v", ErrIoError, tableID, err)
	}
	return int32(length / PageSize), nil
}

// RemoveTable closes and deletes tableID's file.
func (dm *DiskManager) RemoveTable(tableID int32) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if f, ok := dm.files[tableID]; ok {
		_ = f.Close()
		delete(dm.files, tableID)
	}
	if err := dm.fs.Remove(dm.tablePath(tableID)); err != nil {
		return fmt.Errorf("%w: remove table %d: %v", ErrIoError, tableID, err)
	}
	return nil
}

// Close closes every open table file.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	var firstErr error
	for tableID, f := range dm.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: close table %d: %v", ErrIoError, tableID, err)
		}
	}
	return firstErr
}
