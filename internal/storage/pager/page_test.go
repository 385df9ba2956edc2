package pager

import (
	"testing"
	"time"
)

func TestPageI32RoundTrip(t *testing.T) {
	p := NewPage(PageID{TableID: 1, PageIndex: 0})
	cases := []int32{0, 1, -1, 1 << 20, -(1 << 20), InvalidPageIndex}
	for i, v := range cases {
		off := i * 4
		if err := p.WriteI32(off, v); err != nil {
			t.Fatalf("write i32 %d: %v", v, err)
		}
		got, err := p.ReadI32(off)
		if err != nil {
			t.Fatalf("read i32 at %d: %v", off, err)
		}
		if got != v {
			t.Errorf("offset %d: got %d, want %d", off, got, v)
		}
	}
}

func TestPageI64RoundTrip(t *testing.T) {
	p := NewPage(PageID{TableID: 1, PageIndex: 0})
	cases := []int64{0, 1, -1, 1 << 40, -(1 << 40)}
	for i, v := range cases {
		off := i * 8
		if err := p.WriteI64(off, v); err != nil {
			t.Fatalf("write i64 %d: %v", v, err)
		}
		got, err := p.ReadI64(off)
		if err != nil {
			t.Fatalf("read i64 at %d: %v", off, err)
		}
		if got != v {
			t.Errorf("offset %d: got %d, want %d", off, got, v)
		}
	}
}

func TestPageDateTimeRoundTrip(t *testing.T) {
	p := NewPage(PageID{TableID: 1, PageIndex: 0})
	want := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	if err := p.WriteDateTime(0, want); err != nil {
		t.Fatal(err)
	}
	got, err := p.ReadDateTime(0)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPageBoundsChecked(t *testing.T) {
	p := NewPage(PageID{TableID: 1, PageIndex: 0})
	if _, err := p.ReadI32(PageSize - 3); err == nil {
		t.Error("expected bounds error reading past end of page")
	}
	if err := p.WriteI64(-1, 0); err == nil {
		t.Error("expected bounds error writing at negative offset")
	}
}

func TestWrapPageRejectsWrongLength(t *testing.T) {
	if _, err := WrapPage(PageID{}, make([]byte, PageSize-1)); err == nil {
		t.Error("expected error wrapping a buffer of the wrong length")
	}
}
