package archive

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Slugify derives a stable identifier from a topic title: NFKC-normalized,
// lowercased, with every non-letter non-digit run collapsed to a single
// hyphen. CJK letters pass through unchanged.
func Slugify(title string) string {
	normalized := norm.NFKC.String(title)

	var b strings.Builder

	lastHyphen := true // suppress a leading hyphen

	for _, r := range strings.ToLower(normalized) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)

			lastHyphen = false

			continue
		}

		if !lastHyphen {
			b.WriteRune('-')

			lastHyphen = true
		}
	}

	return strings.TrimRight(b.String(), "-")
}
