package assemble

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultName is used when the title is missing or sanitizes to nothing.
const DefaultName = "document"

const maxTitleLen = 50

var (
	disallowed = regexp.MustCompile(`[^A-Za-z0-9\s_-]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// SanitizeTitle reduces title to ASCII letters, digits, hyphens and
// underscores. Accented letters lose their marks, whitespace runs become a
// single underscore and the result is cut to 50 characters.
func SanitizeTitle(title string) string {
	t := stripMarks(title)
	t = disallowed.ReplaceAllString(t, "")
	t = strings.TrimSpace(t)
	t = whitespace.ReplaceAllString(t, "_")
	if len(t) > maxTitleLen {
		t = t[:maxTitleLen]
	}
	return t
}

func stripMarks(s string) string {
	tr := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(tr, s)
	if err != nil {
		return s
	}
	return out
}

// Filename builds the output filename. With includeRange the first and
// last captured page numbers are appended.
func Filename(title string, first, last int, includeRange bool) string {
	name := SanitizeTitle(title)
	if name == "" {
		name = DefaultName
	}
	if includeRange && first > 0 && last > 0 {
		if first == last {
			name += fmt.Sprintf("_p%d", first)
		} else {
			name += fmt.Sprintf("_p%d-%d", first, last)
		}
	}
	return name + ".pdf"
}
