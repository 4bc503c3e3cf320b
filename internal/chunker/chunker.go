// Package chunker splits raw document text into overlapping fragments.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/models"
)

// Chunker splits normalized text into fragments of at most size runes, with
// consecutive fragments sharing up to overlap runes of trailing context.
// Sizes are measured in runes, not bytes: the corpus is multilingual and
// byte offsets would cut multi-byte characters.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker with the given fragment size and overlap.
// Overlap is clamped below size so every fragment makes forward progress.
func New(size, overlap int) *Chunker {
	if size < 1 {
		size = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split normalizes rawText and cuts it into fragments attributed to sourceID.
// Fragments are numbered in document order and every fragment carries the
// total count for its source. Returns nil when the text is blank after
// normalization. Pure function: no side effects, deterministic.
func (c *Chunker) Split(rawText, sourceID string) []models.Fragment {
	text := Normalize(rawText)
	if text == "" {
		return nil
	}
	contents := c.pack(splitUnits(text, c.size))
	fragments := make([]models.Fragment, 0, len(contents))
	for i, content := range contents {
		fragments = append(fragments, models.Fragment{
			Content:    content,
			SourceID:   sourceID,
			ChunkIndex: i,
			ChunkCount: len(contents),
		})
	}
	return fragments
}

// Normalize strips control characters and collapses whitespace. A whitespace
// run containing two or more newlines becomes a single blank line, so
// paragraph boundaries survive for splitting; every other run becomes one
// space. Leading and trailing whitespace is dropped.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	pendingNewlines := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			pendingSpace = true
			if r == '\n' {
				pendingNewlines++
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if pendingSpace && b.Len() > 0 {
			if pendingNewlines >= 2 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte(' ')
			}
		}
		pendingSpace = false
		pendingNewlines = 0
		b.WriteRune(r)
	}
	return b.String()
}

// splitUnits cuts text into units of at most size runes, preferring paragraph
// breaks, then sentence breaks, then word breaks, then plain rune windows.
// Separators stay attached to the unit they close, so the units concatenate
// back to the input exactly.
func splitUnits(text string, size int) []string {
	var units []string
	for _, para := range splitAfter(text, "\n\n") {
		if utf8.RuneCountInString(para) <= size {
			units = append(units, para)
			continue
		}
		for _, sent := range splitAfter(para, ". ") {
			if utf8.RuneCountInString(sent) <= size {
				units = append(units, sent)
				continue
			}
			for _, word := range splitAfter(sent, " ") {
				if utf8.RuneCountInString(word) <= size {
					units = append(units, word)
					continue
				}
				units = append(units, splitRunes(word, size)...)
			}
		}
	}
	return units
}

// splitAfter is strings.SplitAfter with empty pieces removed (a trailing
// separator produces one).
func splitAfter(s, sep string) []string {
	pieces := strings.SplitAfter(s, sep)
	out := pieces[:0]
	for _, p := range pieces {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitRunes cuts s into windows of exactly size runes (the last may be shorter).
func splitRunes(s string, size int) []string {
	runes := []rune(s)
	out := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// pack joins units into fragment contents of at most size runes. When a
// fragment closes, the next one starts with the whole trailing units of the
// closed fragment totaling at most overlap runes. A fragment is never made
// of carried units alone, and a carried tail that leaves no room for the
// next unit is dropped rather than stalling.
func (c *Chunker) pack(units []string) []string {
	var contents []string
	var cur []string
	curLen := 0  // rune length of cur
	seedLen := 0 // rune length of the carried-overlap prefix of cur

	for _, u := range units {
		ulen := utf8.RuneCountInString(u)
		if curLen+ulen > c.size && curLen > seedLen {
			contents = appendFragment(contents, cur)
			cur, curLen = c.carry(cur)
			seedLen = curLen
		}
		if curLen+ulen > c.size && curLen > 0 {
			cur, curLen, seedLen = nil, 0, 0
		}
		cur = append(cur, u)
		curLen += ulen
	}
	if curLen > seedLen {
		contents = appendFragment(contents, cur)
	}
	return contents
}

// carry returns a copy of the trailing units of cur totaling at most
// overlap runes, with their combined rune length.
func (c *Chunker) carry(cur []string) ([]string, int) {
	if c.overlap == 0 {
		return nil, 0
	}
	total := 0
	i := len(cur)
	for i > 0 {
		l := utf8.RuneCountInString(cur[i-1])
		if total+l > c.overlap {
			break
		}
		total += l
		i--
	}
	if i == len(cur) {
		return nil, 0
	}
	return append([]string(nil), cur[i:]...), total
}

func appendFragment(contents []string, units []string) []string {
	content := strings.TrimSpace(strings.Join(units, ""))
	if content == "" {
		return contents
	}
	return append(contents, content)
}
