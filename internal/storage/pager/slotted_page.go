package pager

import "fmt"

// SlottedPage holds the static operations over a page that maintain the
// slot directory / record heap invariants. It carries no state of its own;
// every function takes the page it operates on.
//
// Layout: [PageHeader | slot0 | slot1 | ... | free ... | record1 | record0]
// The slot directory grows forward from HeaderSize; records grow backward
// from PageSize. Slot i lives at HeaderSize + i*SlotSize and is a pair of
// little-endian int32s: (record_offset, record_length). (0,0) is a tombstone.

// Initialize zeros the header, sets the page type, and resets item-count
// and data-start to their empty-page values.
func Initialize(p *Page, pageType PageType, parentIndex int32) error {
	if pageType == PageTypeInvalid {
		return ErrInvalidPageType
	}
	p.Reset()
	h := NewPageHeader(p)
	h.SetType(pageType)
	h.SetItemCount(0)
	h.SetDataStart(PageSize)
	h.SetParentIndex(parentIndex)
	h.SetPrevPageIndex(InvalidPageIndex)
	h.SetNextPageIndex(InvalidPageIndex)
	return nil
}

func slotOffset(slotIndex int32) int {
	return HeaderSize + int(slotIndex)*SlotSize
}

// getSlot reads the (offset, length) pair for slotIndex without range checking.
func getSlot(p *Page, slotIndex int32) (int32, int32) {
	off := slotOffset(slotIndex)
	recOffset, _ := p.ReadI32(off)
	recLength, _ := p.ReadI32(off + 4)
	return recOffset, recLength
}

func setSlot(p *Page, slotIndex int32, recOffset, recLength int32) {
	off := slotOffset(slotIndex)
	_ = p.WriteI32(off, recOffset)
	_ = p.WriteI32(off+4, recLength)
}

// GetFreeSpace returns the bytes available between the slot directory and
// the record heap.
func GetFreeSpace(p *Page) int32 {
	h := NewPageHeader(p)
	return h.DataStart() - (int32(HeaderSize) + h.ItemCount()*SlotSize)
}

// TryAddItem places data at the top of the record heap and writes a new
// slot at slotIndex, shifting slots [slotIndex, item_count) one position to
// make room. It returns false, leaving the page byte-identical to before,
// iff free space is insufficient for the record plus one new slot.
func TryAddItem(p *Page, data []byte, slotIndex int32) bool {
	h := NewPageHeader(p)
	itemCount := h.ItemCount()
	if slotIndex < 0 || slotIndex > itemCount {
		return false
	}
	needed := int32(len(data)) + SlotSize
	if GetFreeSpace(p) < needed {
		return false
	}

	dataStart := h.DataStart()
	newDataStart := dataStart - int32(len(data))
	span, err := p.GetSpan(int(newDataStart), len(data))
	if err != nil {
		return false
	}
	copy(span, data)

	for i := itemCount; i > slotIndex; i-- {
		off, length := getSlot(p, i-1)
		setSlot(p, i, off, length)
	}
	setSlot(p, slotIndex, newDataStart, int32(len(data)))

	h.SetItemCount(itemCount + 1)
	h.SetDataStart(newDataStart)
	return true
}

// GetRecord returns the bytes of the record at slotIndex, or an empty slice
// if the slot is tombstoned.
func GetRecord(p *Page, slotIndex int32) ([]byte, error) {
	h := NewPageHeader(p)
	if slotIndex < 0 || slotIndex >= h.ItemCount() {
		return nil, fmt.Errorf("%w: slot %d item_count %d", ErrIndexOutOfRange, slotIndex, h.ItemCount())
	}
	recOffset, recLength := getSlot(p, slotIndex)
	if recOffset == 0 && recLength == 0 {
		return nil, nil
	}
	return p.GetReadonlySpan(int(recOffset), int(recLength))
}

// IsTombstoned reports whether slotIndex has been deleted.
func IsTombstoned(p *Page, slotIndex int32) bool {
	recOffset, recLength := getSlot(p, slotIndex)
	return recOffset == 0 && recLength == 0
}

// DeleteRecord zeros the slot at slotIndex. It does not compact the heap,
// does not decrement item-count, and leaves the record bytes in place.
func DeleteRecord(p *Page, slotIndex int32) error {
	h := NewPageHeader(p)
	if slotIndex < 0 || slotIndex >= h.ItemCount() {
		return fmt.Errorf("%w: slot %d item_count %d", ErrIndexOutOfRange, slotIndex, h.ItemCount())
	}
	setSlot(p, slotIndex, 0, 0)
	return nil
}
