package tenancy

import "testing"

func TestNormalizeSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme Widgets Inc.", "acme-widgets-inc"},
		{"  Trimmed  ", "trimmed"},
		{"already-a-slug", "already-a-slug"},
		{"Mixed_CASE 42", "mixed-case-42"},
		{"--multiple---separators--", "multiple-separators"},
		{"Café Ltd", "caf-ltd"},
		{"ﬀull-width", "ffull-width"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeSlug(tc.in); got != tc.want {
			t.Errorf("NormalizeSlug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
