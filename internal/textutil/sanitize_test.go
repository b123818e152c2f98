package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Week 3: Thermodynamics", "Week 3- Thermodynamics"},
		{"  a/b\\c  ", "a-b-c"},
		{`What is "entropy"?`, "What is entropy"},
		{"<>|", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.in); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Week 3: Thermodynamics", "week_3__thermodynamics"},
		{"lecture-01_final", "lecture-01_final"},
		{"__", "unknown"},
		{"  ", "unknown"},
	}
	for _, tt := range tests {
		if got := SanitizeToken(tt.in); got != tt.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
