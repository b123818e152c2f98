package language

import "testing"

func TestToISO2(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{" EN ", "en"},
		{"eng", "en"},
		{"English", "en"},
		{"ger", "de"},
		{"deu", "de"},
		{"fra", "fr"},
		{"fre", "fr"},
		{"en-US", "en"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ToISO2(tt.in); got != tt.want {
			t.Errorf("ToISO2(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToTesseract(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"eng", "eng"},
		{"en", "eng"},
		{"english+de", "eng+deu"},
		{"French", "fra"},
		{"zh", "chi_sim"},
		{"chi_tra", "chi_tra"},
		{"eng++", "eng"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ToTesseract(tt.in); got != tt.want {
			t.Errorf("ToTesseract(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en", "English"},
		{"de", "German"},
		{"fre", "French"},
		{"spanish", "Spanish"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.in); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
