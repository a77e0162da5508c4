// Package transcript turns recognition events and imported caption
// documents into pipeline segments.
package transcript

import (
	"strings"
	"unicode"
)

// ParseCues extracts the spoken text of a cue-formatted caption document
// (WebVTT style) and joins it into one line of prose
func ParseCues(doc string) string {
	doc = strings.ReplaceAll(doc, "\r\n", "\n")

	var spoken []string
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "WEBVTT"):
		case line == "NOTE" || strings.HasPrefix(line, "NOTE "):
		case strings.Contains(line, "-->"):
		case isNumeric(line):
		default:
			spoken = append(spoken, line)
		}
	}
	return strings.Join(spoken, " ")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// SplitSentences cuts prose after '.', '!' or '?' when followed by
// whitespace. Units are trimmed; empty units are dropped.
func SplitSentences(text string) []string {
	var (
		units []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		switch runes[i] {
		case '.', '!', '?':
			if unicode.IsSpace(runes[i+1]) {
				units = appendUnit(units, string(runes[start:i+1]))
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		units = appendUnit(units, string(runes[start:]))
	}
	return units
}

func appendUnit(units []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		units = append(units, s)
	}
	return units
}
