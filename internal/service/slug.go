package service

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var slugLower = cases.Lower(language.Und)

// Slugify derives a URL slug from a brand name: lower case letters and digits
// of any script, every other run of characters collapsed to a single '-', and
// no leading or trailing '-'. The name is NFC-normalized first so composed and
// decomposed spellings of the same name share a slug.
func Slugify(name string) string {
	var b strings.Builder
	sep := false
	inWord := false
	for _, r := range norm.NFC.String(slugLower.String(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
		case unicode.IsMark(r) && inWord && !sep:
			// combining mark attached to the previous letter
		default:
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('-')
		}
		sep = false
		inWord = true
		b.WriteRune(r)
	}
	return b.String()
}
