package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type boundary struct {
	re *regexp.Regexp
	// cutAfter also cuts at the end of the match.
	cutAfter bool
}

// boundaries are applied in priority order.
var boundaries = []boundary{
	{re: regexp.MustCompile(`(?ms)\n#{1,6}\s+.+?\n`)},
	{re: regexp.MustCompile(`(?ms)\n\n+`)},
	{re: regexp.MustCompile(`(?ms)\n[-*+]\s+`)},
	{re: regexp.MustCompile(`(?ms)\n\d+\.\s+`)},
	{re: regexp.MustCompile("(?ms)\\n```.*?```\\n"), cutAfter: true},
	{re: regexp.MustCompile(`(?ms)\n\|\s*.+?\|\s*\n`), cutAfter: true},
}

// span is a half-open byte range of the document.
type span struct {
	start int
	end   int
}

// segment is a chunk candidate. located segments are exact spans of the
// document; LLM output is not, and is located later by search.
type segment struct {
	text    string
	start   int
	end     int
	located bool
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// splitStructure cuts content on markdown structure and returns the
// non-blank sections in order.
func splitStructure(content string) []span {
	spans := []span{{start: 0, end: len(content)}}
	for _, b := range boundaries {
		next := make([]span, 0, len(spans))
		for _, sp := range spans {
			next = append(next, cutSpan(content, sp, b)...)
		}
		spans = next
	}
	return spans
}

func cutSpan(content string, sp span, b boundary) []span {
	text := content[sp.start:sp.end]
	matches := b.re.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		if isBlank(text) {
			return nil
		}
		return []span{sp}
	}
	cuts := make([]int, 0, len(matches)*2)
	for _, m := range matches {
		cuts = append(cuts, sp.start+m[0])
		if b.cutAfter {
			cuts = append(cuts, sp.start+m[1])
		}
	}
	out := make([]span, 0, len(cuts)+1)
	prev := sp.start
	for _, cut := range cuts {
		if cut > prev && !isBlank(content[prev:cut]) {
			out = append(out, span{start: prev, end: cut})
		}
		if cut > prev {
			prev = cut
		}
	}
	if prev < sp.end && !isBlank(content[prev:sp.end]) {
		out = append(out, span{start: prev, end: sp.end})
	}
	return out
}

// trimSpan narrows [start,end) to exclude surrounding whitespace.
func trimSpan(content string, start, end int) segment {
	text := content[start:end]
	lead := len(text) - len(strings.TrimLeftFunc(text, unicode.IsSpace))
	trimmed := strings.TrimSpace(text)
	return segment{
		text:    trimmed,
		start:   start + lead,
		end:     start + lead + len(trimmed),
		located: true,
	}
}

func trimmedLen(s string) int {
	return len(strings.TrimSpace(s))
}

// runeFloor moves i back to the start of the rune containing it.
func runeFloor(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
