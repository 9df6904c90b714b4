package textutil

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// leadingTrackNumber matches prefixes such as "01 - ", "1. ", "02) " and "003_".
var leadingTrackNumber = regexp.MustCompile(`^\s*\d{1,3}[\s\-\._:\)\]]*`)

var unsafeSlugChars = regexp.MustCompile(`[^0-9A-Za-z._-]`)

const maxSlugLength = 100

// CleanTitle normalizes title to NFC and removes a leading track number.
func CleanTitle(title string) string {
	title = norm.NFC.String(title)
	return strings.TrimSpace(leadingTrackNumber.ReplaceAllString(title, ""))
}

// TitleFromFilename derives a display title from a file path: the base name
// without its extension, optionally with a leading track number removed.
func TitleFromFilename(path string, stripLeadingNumbers bool) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if stripLeadingNumbers {
		return CleanTitle(base)
	}
	return strings.TrimSpace(norm.NFC.String(base))
}

// Slug converts value to a filesystem-safe directory name. Accents are folded
// to their base letters, every other character outside [0-9A-Za-z._-] becomes
// a dash, and the result is capped at 100 characters. Empty results become
// "untitled".
func Slug(value string) string {
	value = strings.TrimSpace(value)
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), value)
	if err == nil {
		value = folded
	}
	if r := []rune(value); len(r) > maxSlugLength {
		value = string(r[:maxSlugLength])
	}
	out := strings.Trim(unsafeSlugChars.ReplaceAllString(value, "-"), "-")
	if out == "" {
		return "untitled"
	}
	return out
}
