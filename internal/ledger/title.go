package ledger

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const untitled = "Untitled"

// DeriveTitle turns an uploaded filename into a display title.
func DeriveTitle(filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return untitled
	}
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return untitled
	}
	return cases.Title(language.Und).String(title)
}

// FoldTitle is the caseless form titles are searched by. Stored titles and
// search terms go through the same folding.
func FoldTitle(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}
