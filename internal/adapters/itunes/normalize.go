package itunes

import (
	"strings"
)

// artistSeparators split a credited artist string into individual artists.
// Matched case-insensitively; the first match wins.
var artistSeparators = []string{
	" feat. ", " feat ", " ft. ", " ft ", " featuring ", " with ",
	" & ", ", ", " x ", " × ", "、",
}

// primaryArtist returns the lead artist of a credit like
// "Artist A feat. Artist B (Live)", trimmed of bracketed segments.
func primaryArtist(credit string) string {
	name := strings.TrimSpace(stripBracketedSegments(credit))
	if name == "" {
		return fallbackIfEmpty(name, strings.TrimSpace(credit))
	}

	lower := strings.ToLower(name)
	if len(lower) != len(name) {
		lower = name
	}
	cut := len(name)
	for _, sep := range artistSeparators {
		if i := strings.Index(lower, sep); i > 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(name[:cut])
}

func stripBracketedSegments(input string) string {
	var out strings.Builder
	depth := 0
	for _, r := range input {
		switch r {
		case '(', '[', '（', '【':
			depth++
		case ')', ']', '）', '】':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				out.WriteRune(r)
			}
		}
	}

	return out.String()
}

func fallbackIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}
