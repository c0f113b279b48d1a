package storage

import "testing"

func TestNormalizePage(t *testing.T) {
	p := NormalizePage(0, 0)
	if p.Page != 1 || p.Limit != 10 {
		t.Fatalf("expected defaults 1/10, got %d/%d", p.Page, p.Limit)
	}
	if p.Offset() != 0 {
		t.Fatalf("expected offset 0, got %d", p.Offset())
	}

	p = NormalizePage(3, 20)
	if p.Offset() != 40 {
		t.Fatalf("expected offset 40, got %d", p.Offset())
	}

	p = NormalizePage(1, 10000)
	if p.Limit != 100 {
		t.Fatalf("expected limit capped at 100, got %d", p.Limit)
	}
}

func TestNewPageMeta(t *testing.T) {
	meta := NewPageMeta(NormalizePage(1, 10), 25)
	if meta.TotalResult != 25 || meta.TotalPage != 3 {
		t.Fatalf("expected 25 results over 3 pages, got %d/%d", meta.TotalResult, meta.TotalPage)
	}

	meta = NewPageMeta(NormalizePage(1, 10), 30)
	if meta.TotalPage != 3 {
		t.Fatalf("expected exactly 3 pages, got %d", meta.TotalPage)
	}

	meta = NewPageMeta(NormalizePage(1, 10), 0)
	if meta.TotalPage != 0 {
		t.Fatalf("expected 0 pages for empty result, got %d", meta.TotalPage)
	}
}
