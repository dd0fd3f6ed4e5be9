package output

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// toASCII decomposes accented letters and drops everything outside ASCII.
	toASCII = transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))

	slugReplacer = strings.NewReplacer(
		"/", "-",
		`\`, "-",
		"*", "",
		":", "",
		"?", "",
		"|", "",
	)

	dashes = regexp.MustCompile(`-+`)
)

// Slugify turns a remote name into a single filesystem-safe path component:
// ASCII only, lower case, no separators or reserved characters. Distinct
// names can collide; collisions are not detected.
func Slugify(value string) string {
	ascii, _, err := transform.String(toASCII, value)
	if err != nil {
		ascii = value
	}
	s := strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r > unicode.MaxASCII {
			return -1
		}
		return r
	}, ascii)
	s = strings.ToLower(s)
	s = slugReplacer.Replace(s)
	s = dashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "_-. ")
}
