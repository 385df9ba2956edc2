package pager

import (
	"encoding/binary"
	"fmt"

	"github.com/relstore/storagecore/internal/schema"
	"github.com/relstore/storagecore/internal/types"
)

// BTreeLeafNode is a typed view over a leaf-typed slotted page: serialized
// records ordered ascending by key, with prev/next sibling pointers held in
// the header. Tombstoned slots are skipped by every method here; the tree
// algorithms decide when to compact via merge/redistribute.
type BTreeLeafNode struct {
	page   *Page
	header *PageHeader
	table  *schema.Table
}

// NewBTreeLeafNode wraps an already-initialized leaf page.
func NewBTreeLeafNode(p *Page, table *schema.Table) *BTreeLeafNode {
	return &BTreeLeafNode{page: p, header: NewPageHeader(p), table: table}
}

func (n *BTreeLeafNode) ItemCount() int32     { return n.header.ItemCount() }
func (n *BTreeLeafNode) PrevPageIndex() int32 { return n.header.PrevPageIndex() }
func (n *BTreeLeafNode) NextPageIndex() int32 { return n.header.NextPageIndex() }
func (n *BTreeLeafNode) ParentIndex() int32   { return n.header.ParentIndex() }

func (n *BTreeLeafNode) SetPrevPageIndex(v int32) { n.header.SetPrevPageIndex(v) }
func (n *BTreeLeafNode) SetNextPageIndex(v int32) { n.header.SetNextPageIndex(v) }
func (n *BTreeLeafNode) SetParentIndex(v int32)   { n.header.SetParentIndex(v) }

// RecordAt decodes the record stored at slotIndex.
func (n *BTreeLeafNode) RecordAt(slotIndex int32) (types.Record, error) {
	raw, err := GetRecord(n.page, slotIndex)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return RecordSerializer{}.Deserialize(n.table, raw)
}

// FindPrimaryKeySlotIndex performs a linear scan over live slots in order.
// It returns (slotIndex, true) on an exact match, or (insertionPoint, false)
// — the slot index before which key should be inserted to keep ascending
// order — when absent.
func (n *BTreeLeafNode) FindPrimaryKeySlotIndex(key types.Key) (int32, bool, error) {
	itemCount := n.header.ItemCount()
	for i := int32(0); i < itemCount; i++ {
		if IsTombstoned(n.page, i) {
			continue
		}
		rec, err := n.RecordAt(i)
		if err != nil {
			return 0, false, err
		}
		k := n.table.KeyOf(rec)
		switch key.Compare(k) {
		case 0:
			return i, true, nil
		case -1:
			return i, false, nil
		}
	}
	return itemCount, false, nil
}

// TryInsert encodes rec and places it at its sorted slot position.
func (n *BTreeLeafNode) TryInsert(rec types.Record) (bool, error) {
	data, err := RecordSerializer{}.Serialize(n.table, rec)
	if err != nil {
		return false, err
	}
	key := n.table.KeyOf(rec)
	slotIndex, found, err := n.FindPrimaryKeySlotIndex(key)
	if err != nil {
		return false, err
	}
	if found {
		return false, ErrDuplicateKey
	}
	return TryAddItem(n.page, data, slotIndex), nil
}

// DeleteAt tombstones the slot at slotIndex.
func (n *BTreeLeafNode) DeleteAt(slotIndex int32) error {
	return DeleteRecord(n.page, slotIndex)
}

// LiveRecords decodes every non-tombstoned record in ascending slot order.
func (n *BTreeLeafNode) LiveRecords() ([]types.Record, error) {
	itemCount := n.header.ItemCount()
	out := make([]types.Record, 0, itemCount)
	for i := int32(0); i < itemCount; i++ {
		if IsTombstoned(n.page, i) {
			continue
		}
		rec, err := n.RecordAt(i)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// LiveCount returns the number of non-tombstoned slots.
func (n *BTreeLeafNode) LiveCount() int32 {
	itemCount := n.header.ItemCount()
	var count int32
	for i := int32(0); i < itemCount; i++ {
		if !IsTombstoned(n.page, i) {
			count++
		}
	}
	return count
}

// ───────────────────────────────────────────────────────────────────────────

// internalEntry is one (key, child_page_index) pair of an internal node.
type internalEntry struct {
	key   types.Key
	child int32
}

// BTreeInternalNode is a typed view over an internal-typed slotted page:
// (key, child) entries ordered ascending by key, plus a rightmost-child
// pointer in the header for keys greater than the last entry. Internal
// entries are never individually tombstoned — only split and merge_left
// touch a node's entry set, and both rewrite it wholesale.
type BTreeInternalNode struct {
	page   *Page
	header *PageHeader
	table  *schema.Table
}

// NewBTreeInternalNode wraps an already-initialized internal page.
func NewBTreeInternalNode(p *Page, table *schema.Table) *BTreeInternalNode {
	return &BTreeInternalNode{page: p, header: NewPageHeader(p), table: table}
}

func (n *BTreeInternalNode) ItemCount() int32       { return n.header.ItemCount() }
func (n *BTreeInternalNode) ParentIndex() int32     { return n.header.ParentIndex() }
func (n *BTreeInternalNode) RightmostChild() int32  { return n.header.RightmostChild() }
func (n *BTreeInternalNode) SetParentIndex(v int32) { n.header.SetParentIndex(v) }
func (n *BTreeInternalNode) SetRightmostChild(v int32) {
	n.header.SetRightmostChild(v)
}

func (n *BTreeInternalNode) encodeEntry(e internalEntry) ([]byte, error) {
	keyBytes, err := KeyCodec{}.Encode(n.table, e.key)
	if err != nil {
		return nil, err
	}
	return append(keyBytes, appendI32(nil, e.child)...), nil
}

func (n *BTreeInternalNode) decodeEntry(raw []byte) (internalEntry, error) {
	if len(raw) < 4 {
		return internalEntry{}, fmt.Errorf("pager: internal entry too short: %d bytes", len(raw))
	}
	keyBytes, childBytes := raw[:len(raw)-4], raw[len(raw)-4:]
	key, err := KeyCodec{}.Decode(n.table, keyBytes)
	if err != nil {
		return internalEntry{}, err
	}
	child := int32(binary.LittleEndian.Uint32(childBytes))
	return internalEntry{key: key, child: child}, nil
}

// Entries decodes every entry in ascending slot order.
func (n *BTreeInternalNode) Entries() ([]internalEntry, error) {
	itemCount := n.header.ItemCount()
	out := make([]internalEntry, 0, itemCount)
	for i := int32(0); i < itemCount; i++ {
		raw, err := GetRecord(n.page, i)
		if err != nil {
			return nil, err
		}
		e, err := n.decodeEntry(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// FindChild returns the child page index to descend into for key: the
// first entry whose key is >= key, or the rightmost child if none.
func (n *BTreeInternalNode) FindChild(key types.Key) (int32, error) {
	entries, err := n.Entries()
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if key.Compare(e.key) <= 0 {
			return e.child, nil
		}
	}
	return n.RightmostChild(), nil
}

// TryInsert places (key, child) at its sorted position. It leaves the page
// unchanged and returns false iff space is insufficient.
func (n *BTreeInternalNode) TryInsert(key types.Key, child int32) (bool, error) {
	entries, err := n.Entries()
	if err != nil {
		return false, err
	}
	pos := int32(len(entries))
	for i, e := range entries {
		if key.Compare(e.key) < 0 {
			pos = int32(i)
			break
		}
	}
	data, err := n.encodeEntry(internalEntry{key: key, child: child})
	if err != nil {
		return false, err
	}
	return TryAddItem(n.page, data, pos), nil
}

// rebuildFrom re-initializes the page as an internal node holding entries,
// in order, via repeated appends.
func (n *BTreeInternalNode) rebuildFrom(entries []internalEntry, rightmost int32) error {
	parent := n.header.ParentIndex()
	if err := Initialize(n.page, PageTypeInternal, parent); err != nil {
		return err
	}
	n.header = NewPageHeader(n.page)
	for i, e := range entries {
		data, err := n.encodeEntry(e)
		if err != nil {
			return err
		}
		if !TryAddItem(n.page, data, int32(i)) {
			return ErrInsufficientSpace
		}
	}
	n.header.SetRightmostChild(rightmost)
	return nil
}

// SplitAndInsert virtually builds the sorted (N+1)-entry list of the
// node's existing entries plus (newKey, newChild), promotes the entry at
// index (N+1)/2 as the separator, keeps entries left of it in this node,
// and moves entries right of it into sibling. The median entry's child
// becomes this node's new rightmost child; this node's old rightmost
// child becomes sibling's rightmost child.
func (n *BTreeInternalNode) SplitAndInsert(newKey types.Key, newChild int32, sibling *BTreeInternalNode) (types.Key, error) {
	existing, err := n.Entries()
	if err != nil {
		return nil, err
	}
	combined := make([]internalEntry, 0, len(existing)+1)
	inserted := false
	for _, e := range existing {
		if !inserted && newKey.Compare(e.key) < 0 {
			combined = append(combined, internalEntry{key: newKey, child: newChild})
			inserted = true
		}
		combined = append(combined, e)
	}
	if !inserted {
		combined = append(combined, internalEntry{key: newKey, child: newChild})
	}

	total := len(combined)
	medianIdx := total / 2
	left := combined[:medianIdx]
	median := combined[medianIdx]
	right := combined[medianIdx+1:]
	oldRightmost := n.RightmostChild()

	if err := n.rebuildFrom(left, median.child); err != nil {
		return nil, err
	}
	if err := sibling.rebuildFrom(right, oldRightmost); err != nil {
		return nil, err
	}
	return median.key, nil
}

// MergeLeft appends (demotedKey, demotedChild) followed by this
// node's own entries into left, sets left's rightmost child to this
// node's rightmost child, then zeroes this node's item-count and header
// fields. It fails with ErrInsufficientSpace if the combined entries do
// not fit in left, leaving both pages unchanged.
func (n *BTreeInternalNode) MergeLeft(left *BTreeInternalNode, demotedKey types.Key, demotedChild int32) error {
	selfEntries, err := n.Entries()
	if err != nil {
		return err
	}
	leftEntries, err := left.Entries()
	if err != nil {
		return err
	}
	demoted := internalEntry{key: demotedKey, child: demotedChild}

	combined := make([]internalEntry, 0, len(leftEntries)+1+len(selfEntries))
	combined = append(combined, leftEntries...)
	combined = append(combined, demoted)
	combined = append(combined, selfEntries...)

	needed := 0
	for _, e := range combined {
		data, err := left.encodeEntry(e)
		if err != nil {
			return err
		}
		needed += len(data) + SlotSize
	}
	// Compare against left's total page capacity, not just its current free
	// space, since rebuildFrom starts from a freshly-initialized page.
	if int32(needed) > PageSize-HeaderSize {
		return ErrInsufficientSpace
	}

	if err := left.rebuildFrom(combined, n.RightmostChild()); err != nil {
		return err
	}

	parent := n.header.ParentIndex()
	if err := Initialize(n.page, PageTypeInternal, parent); err != nil {
		return err
	}
	n.header = NewPageHeader(n.page)
	n.header.SetItemCount(0)
	return nil
}
