// Package slug turns titles into URL-safe identifiers.
package slug

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	disallowed = regexp.MustCompile(`[^a-z0-9\s-]`)
	separators = regexp.MustCompile(`[\s_-]+`)

	// đ has a stroke, not a combining mark, so NFD leaves it alone.
	strokeReplacer = strings.NewReplacer("đ", "d", "Đ", "d")
)

// Make lowercases text, strips diacritics and collapses everything that is not
// [a-z0-9] into single hyphens. It never fails; empty input yields "".
func Make(text string) string {
	if text == "" {
		return ""
	}

	s := strings.ToLower(strings.TrimSpace(text))
	s = strokeReplacer.Replace(s)
	s = removeMarks(s)
	s = strings.Map(foldSpace, s)
	s = disallowed.ReplaceAllString(s, "")
	s = separators.ReplaceAllString(s, "-")

	return strings.Trim(s, "-")
}

// WithSuffix appends the publish time in Unix milliseconds so posts that share
// a title still get distinct slugs.
func WithSuffix(text string, publishedAt time.Time) string {
	suffix := strconv.FormatInt(publishedAt.UnixMilli(), 10)
	base := Make(text)
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}

// foldSpace maps Unicode whitespace such as NBSP to an ASCII space, since
// RE2's \s only matches ASCII.
func foldSpace(r rune) rune {
	if unicode.IsSpace(r) || r == '\uFEFF' {
		return ' '
	}
	return r
}

func removeMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}
