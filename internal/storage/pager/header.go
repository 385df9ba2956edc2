package pager

// PageType distinguishes leaf from internal B+Tree pages. The zero value,
// PageTypeInvalid, is never a legal on-disk state.
type PageType int32

const (
	PageTypeInvalid PageType = iota
	PageTypeLeaf
	PageTypeInternal
)

func (t PageType) String() string {
	switch t {
	case PageTypeLeaf:
		return "LeafNode"
	case PageTypeInternal:
		return "InternalNode"
	default:
		return "Invalid"
	}
}

// Header layout, exact byte offsets (HeaderSize = 32 bytes):
//
//	[0:8]   LSN                  int64
//	[8:12]  PageType             int32
//	[12:16] ItemCount            int32
//	[16:20] DataStart            int32
//	[20:24] ParentIndex          int32
//	[24:28] union word 1: leaf PrevPageIndex / internal RightmostChild
//	[28:32] union word 2: leaf NextPageIndex  / internal (unused, -1)
const (
	offLSN         = 0
	offPageType    = 8
	offItemCount   = 12
	offDataStart   = 16
	offParentIndex = 20
	offUnion1      = 24
	offUnion2      = 28

	// HeaderSize is the fixed-width header present at the start of every page.
	HeaderSize = 32

	// SlotSize is the fixed width of one slot directory entry (offset, length).
	SlotSize = 8
)

// PageHeader is a typed, mutable view over a page's first HeaderSize bytes.
// It borrows the page for the lifetime of the caller's pin; no hidden state.
type PageHeader struct {
	page *Page
}

// NewPageHeader wraps the header of an already-initialized page.
func NewPageHeader(p *Page) *PageHeader { return &PageHeader{page: p} }

func (h *PageHeader) LSN() int64 {
	v, _ := h.page.ReadI64(offLSN)
	return v
}

func (h *PageHeader) SetLSN(v int64) { _ = h.page.WriteI64(offLSN, v) }

func (h *PageHeader) Type() PageType {
	v, _ := h.page.ReadI32(offPageType)
	return PageType(v)
}

func (h *PageHeader) SetType(t PageType) { _ = h.page.WriteI32(offPageType, int32(t)) }

func (h *PageHeader) ItemCount() int32 {
	v, _ := h.page.ReadI32(offItemCount)
	return v
}

func (h *PageHeader) SetItemCount(n int32) { _ = h.page.WriteI32(offItemCount, n) }

func (h *PageHeader) DataStart() int32 {
	v, _ := h.page.ReadI32(offDataStart)
	return v
}

func (h *PageHeader) SetDataStart(v int32) { _ = h.page.WriteI32(offDataStart, v) }

func (h *PageHeader) ParentIndex() int32 {
	v, _ := h.page.ReadI32(offParentIndex)
	return v
}

func (h *PageHeader) SetParentIndex(v int32) { _ = h.page.WriteI32(offParentIndex, v) }

// PrevPageIndex is meaningful only for leaf pages.
func (h *PageHeader) PrevPageIndex() int32 {
	v, _ := h.page.ReadI32(offUnion1)
	return v
}

func (h *PageHeader) SetPrevPageIndex(v int32) { _ = h.page.WriteI32(offUnion1, v) }

// NextPageIndex is meaningful only for leaf pages.
func (h *PageHeader) NextPageIndex() int32 {
	v, _ := h.page.ReadI32(offUnion2)
	return v
}

func (h *PageHeader) SetNextPageIndex(v int32) { _ = h.page.WriteI32(offUnion2, v) }

// RightmostChild is meaningful only for internal pages.
func (h *PageHeader) RightmostChild() int32 {
	v, _ := h.page.ReadI32(offUnion1)
	return v
}

func (h *PageHeader) SetRightmostChild(v int32) { _ = h.page.WriteI32(offUnion1, v) }
