// Package slug derives filesystem- and URL-safe identifiers from
// human-readable titles.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum    = regexp.MustCompile(`[^a-z0-9]+`)
	forbidden   = regexp.MustCompile(`[<>:"/\\|?*]`)
	underscores = regexp.MustCompile(`_+`)

	// NFKD decomposition followed by removal of combining marks strips
	// accents: "Lübeck" -> "Lubeck".
	deaccent = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Slugify creates a URL-safe, lowercase slug (a-z0-9 and dashes only).
// An input that reduces to nothing yields "talk".
func Slugify(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if ascii, _, err := transform.String(deaccent, v); err == nil {
		v = ascii
	}
	// Any remaining non-ASCII runes fall into the non-alnum class below.
	v = nonAlnum.ReplaceAllString(v, "-")
	v = strings.Trim(v, "-")
	if v == "" {
		return "talk"
	}
	return v
}

// SanitizeFolderName turns a display name into a safe directory name:
// spaces become underscores, characters that are problematic on common
// filesystems are dropped, and the result is capped at 50 characters.
func SanitizeFolderName(name string) string {
	safe := strings.ReplaceAll(name, " ", "_")
	safe = forbidden.ReplaceAllString(safe, "")
	safe = underscores.ReplaceAllString(safe, "_")
	safe = strings.Trim(safe, "_")
	if len(safe) > 50 {
		safe = strings.TrimRight(safe[:50], "_")
	}
	return safe
}
