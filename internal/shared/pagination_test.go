package shared

import "testing"

func TestNewPagination(t *testing.T) {
	cases := []struct {
		name           string
		page, perPage  int
		total          int
		wantPage       int
		wantPerPage    int
		wantTotalPages int
	}{
		{"defaults", 0, 0, 100, 1, 20, 5},
		{"negative page", -5, 10, 95, 1, 10, 10},
		{"partial last page", 2, 30, 61, 2, 30, 3},
		{"empty", 1, 20, 0, 1, 20, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPagination(tc.page, tc.perPage, tc.total)
			if p.Page != tc.wantPage || p.PerPage != tc.wantPerPage || p.TotalPages != tc.wantTotalPages {
				t.Fatalf("got %+v, want page=%d perPage=%d totalPages=%d", p, tc.wantPage, tc.wantPerPage, tc.wantTotalPages)
			}
		})
	}
}

func TestOffset(t *testing.T) {
	p := NewPagination(3, 25, 100)
	if got := p.Offset(); got != 50 {
		t.Fatalf("Offset() = %d, want 50", got)
	}
}
