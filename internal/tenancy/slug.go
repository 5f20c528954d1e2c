package tenancy

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lowerCaser = cases.Lower(language.Und)

// NormalizeSlug derives a URL-safe slug from a tenant name: Unicode
// normalized, lowercased, non-alphanumerics collapsed into single hyphens.
func NormalizeSlug(name string) string {
	name = norm.NFKC.String(name)
	name = lowerCaser.String(strings.TrimSpace(name))

	var b strings.Builder
	lastHyphen := true
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
