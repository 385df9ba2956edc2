package pager

import (
	"testing"

	"github.com/relstore/storagecore/internal/fsx"
)

func TestDiskManagerAllocateWriteReadRoundTrip(t *testing.T) {
	dm, err := NewDiskManager(t.TempDir(), fsx.OS{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	id, err := dm.AllocatePage(7)
	if err != nil {
		t.Fatal(err)
	}
	if id.PageIndex != 0 {
		t.Errorf("first allocated page index = %d, want 0", id.PageIndex)
	}

	data := make([]byte, PageSize)
	data[0] = 0xAB
	if err := dm.WritePage(id, data); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, PageSize)
	if err := dm.ReadPage(id, buf); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 0xAB {
		t.Errorf("got %x, want 0xAB", buf[0])
	}

	id2, err := dm.AllocatePage(7)
	if err != nil {
		t.Fatal(err)
	}
	if id2.PageIndex != 1 {
		t.Errorf("second allocated page index = %d, want 1", id2.PageIndex)
	}
}

func TestDiskManagerReadPastEndOfFileZeroFills(t *testing.T) {
	dm, err := NewDiskManager(t.TempDir(), fsx.OS{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, PageSize)
	for i := range buf {
		buf[i] = 1
	}
	if err := dm.ReadPage(PageID{TableID: 3, PageIndex: 5}, buf); err != nil {
		t.Fatal(err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 (zero-filled read past EOF)", i, b)
		}
	}
}

func TestDiskManagerTableExistsAndRemoveTable(t *testing.T) {
	dm, err := NewDiskManager(t.TempDir(), fsx.OS{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if dm.TableExists(9) {
		t.Error("table should not exist before any page is allocated")
	}
	if _, err := dm.AllocatePage(9); err != nil {
		t.Fatal(err)
	}
	if !dm.TableExists(9) {
		t.Error("table should exist after allocating a page")
	}
	if err := dm.RemoveTable(9); err != nil {
		t.Fatal(err)
	}
	if dm.TableExists(9) {
		t.Error("table should not exist after RemoveTable")
	}
}
