package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// aliases maps English words and ISO 639-2/B codes that BCP 47 parsing
// does not accept.
var aliases = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
	"fre":        "fr",
	"ger":        "de",
	"dut":        "nl",
	"chi":        "zh",
}

// tesseractNames covers traineddata files that are not plain ISO 639-2/T codes.
var tesseractNames = map[string]string{
	"zh": "chi_sim",
}

// Parse resolves a language code or English language name.
func Parse(value string) (language.Tag, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return language.Und, false
	}
	if alias, ok := aliases[v]; ok {
		v = alias
	}
	tag, err := language.Parse(v)
	if err != nil || tag == language.Und {
		return language.Und, false
	}
	return tag, true
}

// ToISO2 returns the ISO 639-1 code for value, or "" when it has none.
func ToISO2(value string) string {
	tag, ok := Parse(value)
	if !ok {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	code := base.String()
	if len(code) != 2 {
		return ""
	}
	return code
}

// ToTesseract converts a "+"-joined language list to tesseract traineddata
// names. Entries already carrying a script suffix (chi_tra) and unknown
// entries pass through lowercased.
func ToTesseract(value string) string {
	parts := strings.Split(value, "+")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if strings.Contains(part, "_") {
			out = append(out, part)
			continue
		}
		tag, ok := Parse(part)
		if !ok {
			out = append(out, part)
			continue
		}
		base, _ := tag.Base()
		if name, ok := tesseractNames[base.String()]; ok {
			out = append(out, name)
			continue
		}
		out = append(out, base.ISO3())
	}
	return strings.Join(out, "+")
}

// DisplayName returns the English name of value ("de" -> "German"). Values
// that do not parse are returned trimmed.
func DisplayName(value string) string {
	tag, ok := Parse(value)
	if !ok {
		return strings.TrimSpace(value)
	}
	base, _ := tag.Base()
	if name := display.English.Languages().Name(base); name != "" {
		return name
	}
	return strings.TrimSpace(value)
}
