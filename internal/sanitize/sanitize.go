// Package sanitize cleans operator-supplied names before they reach session
// metadata and output file names.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength is the maximum length, in runes, of a cleaned name.
const MaxNameLength = 64

// Unnamed replaces a file component that cleans to nothing.
const Unnamed = "unnamed"

var (
	reWhitespace      = regexp.MustCompile(`\s+`)
	reRepeatedHyphens = regexp.MustCompile(`-{2,}`)
)

// Name strips control characters, collapses runs of whitespace to a single
// space, trims and truncates to MaxNameLength runes.
func Name(input string) string {
	if input == "" {
		return ""
	}
	s := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, input)
	s = strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
	return truncate(s, MaxNameLength)
}

// FileComponent turns a name into something safe to embed in a file name.
// Path separators, characters reserved on common filesystems and spaces
// become hyphens; the result never contains "..", never starts with a dot
// and is never empty.
func FileComponent(input string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '-'
		}
		return r
	}, Name(input))
	s = strings.ReplaceAll(s, "..", "-")
	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")
	if s == "" {
		return Unnamed
	}
	return s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
