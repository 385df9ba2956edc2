package pager

import (
	"testing"

	"github.com/relstore/storagecore/internal/schema"
	"github.com/relstore/storagecore/internal/types"
)

func intKeyedTable() *schema.Table {
	return &schema.Table{
		Columns:    []schema.Column{{Name: "id", Kind: types.KindInt}},
		PrimaryKey: []int{0},
	}
}

func newInternalNode(t *testing.T, table *schema.Table, parent int32) *BTreeInternalNode {
	t.Helper()
	page := NewPage(PageID{TableID: 1, PageIndex: 0})
	if err := Initialize(page, PageTypeInternal, parent); err != nil {
		t.Fatal(err)
	}
	return NewBTreeInternalNode(page, table)
}

func k(n int32) types.Key { return types.Key{types.NewInt(n)} }

// S4: internal split, new key lands as the promoted median.
func TestInternalSplitNewKeyAsMedian(t *testing.T) {
	table := intKeyedTable()
	a := newInternalNode(t, table, InvalidPageIndex)
	for _, e := range []struct {
		key   int32
		child int32
	}{{100, 10}, {200, 20}, {400, 40}} {
		if ok, err := a.TryInsert(k(e.key), e.child); err != nil || !ok {
			t.Fatalf("seed insert (%d,%d): ok=%v err=%v", e.key, e.child, ok, err)
		}
	}
	a.SetRightmostChild(50)

	bPage := NewPage(PageID{TableID: 1, PageIndex: 1})
	_ = Initialize(bPage, PageTypeInternal, InvalidPageIndex)
	b := NewBTreeInternalNode(bPage, table)

	separator, err := a.SplitAndInsert(k(300), 30, b)
	if err != nil {
		t.Fatal(err)
	}
	if separator.Compare(k(300)) != 0 {
		t.Errorf("separator = %v, want 300", separator)
	}

	aEntries, err := a.Entries()
	if err != nil {
		t.Fatal(err)
	}
	assertEntries(t, aEntries, []int32{100, 200}, []int32{10, 20})
	if a.RightmostChild() != 30 {
		t.Errorf("A.rightmost = %d, want 30", a.RightmostChild())
	}

	bEntries, err := b.Entries()
	if err != nil {
		t.Fatal(err)
	}
	assertEntries(t, bEntries, []int32{400}, []int32{40})
	if b.RightmostChild() != 50 {
		t.Errorf("B.rightmost = %d, want 50", b.RightmostChild())
	}
}

// S5: internal split, new key becomes the smallest entry.
func TestInternalSplitNewKeySmallest(t *testing.T) {
	table := intKeyedTable()
	a := newInternalNode(t, table, InvalidPageIndex)
	for _, e := range []struct {
		key   int32
		child int32
	}{{100, 10}, {200, 20}, {400, 40}} {
		if ok, err := a.TryInsert(k(e.key), e.child); err != nil || !ok {
			t.Fatalf("seed insert (%d,%d): ok=%v err=%v", e.key, e.child, ok, err)
		}
	}
	a.SetRightmostChild(50)

	bPage := NewPage(PageID{TableID: 1, PageIndex: 1})
	_ = Initialize(bPage, PageTypeInternal, InvalidPageIndex)
	b := NewBTreeInternalNode(bPage, table)

	separator, err := a.SplitAndInsert(k(50), 5, b)
	if err != nil {
		t.Fatal(err)
	}
	if separator.Compare(k(200)) != 0 {
		t.Errorf("separator = %v, want 200", separator)
	}

	aEntries, err := a.Entries()
	if err != nil {
		t.Fatal(err)
	}
	assertEntries(t, aEntries, []int32{50, 100}, []int32{5, 10})
	if a.RightmostChild() != 20 {
		t.Errorf("A.rightmost = %d, want 20", a.RightmostChild())
	}

	bEntries, err := b.Entries()
	if err != nil {
		t.Fatal(err)
	}
	assertEntries(t, bEntries, []int32{400}, []int32{40})
	if b.RightmostChild() != 50 {
		t.Errorf("B.rightmost = %d, want 50", b.RightmostChild())
	}
}

// S8: merge-left on internal nodes.
func TestMergeLeftOnInternalNodes(t *testing.T) {
	table := intKeyedTable()
	left := newInternalNode(t, table, InvalidPageIndex)
	if ok, err := left.TryInsert(k(100), 10); err != nil || !ok {
		t.Fatalf("seed left: ok=%v err=%v", ok, err)
	}
	left.SetRightmostChild(20)

	right := newInternalNode(t, table, InvalidPageIndex)
	if ok, err := right.TryInsert(k(300), 30); err != nil || !ok {
		t.Fatalf("seed right: ok=%v err=%v", ok, err)
	}
	right.SetRightmostChild(40)

	if err := right.MergeLeft(left, k(200), 20); err != nil {
		t.Fatal(err)
	}

	leftEntries, err := left.Entries()
	if err != nil {
		t.Fatal(err)
	}
	assertEntries(t, leftEntries, []int32{100, 200, 300}, []int32{10, 20, 30})
	if left.RightmostChild() != 40 {
		t.Errorf("left.rightmost = %d, want 40", left.RightmostChild())
	}
	if right.ItemCount() != 0 {
		t.Errorf("right.item_count = %d, want 0", right.ItemCount())
	}
}

func assertEntries(t *testing.T, got []internalEntry, wantKeys, wantChildren []int32) {
	t.Helper()
	if len(got) != len(wantKeys) {
		t.Fatalf("entry count = %d, want %d (%v)", len(got), len(wantKeys), got)
	}
	for i, e := range got {
		if e.key.Compare(k(wantKeys[i])) != 0 {
			t.Errorf("entry %d key = %v, want %d", i, e.key, wantKeys[i])
		}
		if e.child != wantChildren[i] {
			t.Errorf("entry %d child = %d, want %d", i, e.child, wantChildren[i])
		}
	}
}
