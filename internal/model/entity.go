package model

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Text entity types.
const (
	EntityPlain     = 1
	EntityBold      = 2
	EntityItalic    = 3
	EntityUnderline = 4
	EntityEmail     = 9
	EntityURL       = 10
	EntityTextURL   = 11
	EntitySearchHit = 64
)

// TextEntity marks a styled or semantic span of a message's text. Offsets are
// byte offsets into the UTF-8 text; the wire format uses rune offsets and
// gets converted on ingest.
type TextEntity struct {
	Type  int
	Start int
	Len   int
	Value string
}

func (e TextEntity) End() int { return e.Start + e.Len }

// runeToByteOffset converts a rune offset into a byte offset of s, clamping
// past-the-end offsets to len(s).
func runeToByteOffset(s string, runes int) int {
	if runes <= 0 {
		return 0
	}
	i := 0
	for b := range s {
		if i == runes {
			return b
		}
		i++
	}
	return len(s)
}

// runeRangeByteLen returns the byte length of the rune range [start, start+n)
// of s.
func runeRangeByteLen(s string, start, n int) int {
	a := runeToByteOffset(s, start)
	b := runeToByteOffset(s, start+n)
	return b - a
}

// byteToRuneOffset is the inverse of runeToByteOffset.
func byteToRuneOffset(s string, bytes int) int {
	if bytes <= 0 {
		return 0
	}
	if bytes > len(s) {
		bytes = len(s)
	}
	return utf8.RuneCountInString(s[:bytes])
}

// MergeEntities overlays extra spans onto base, splitting at span boundaries
// so the result is a flat, sorted, non-overlapping list. Where spans overlap,
// types combine bitwise, so styles stack.
func MergeEntities(base, extra []TextEntity) []TextEntity {
	if len(extra) == 0 {
		return base
	}
	all := make([]TextEntity, 0, len(base)+len(extra))
	all = append(all, base...)
	all = append(all, extra...)

	// Collect every boundary point, then rebuild runs between them.
	points := make([]int, 0, len(all)*2)
	for _, e := range all {
		points = append(points, e.Start, e.End())
	}
	sort.Ints(points)
	points = dedupInts(points)

	var out []TextEntity
	for i := 0; i+1 < len(points); i++ {
		a, b := points[i], points[i+1]
		typ := 0
		value := ""
		for _, e := range all {
			if e.Start <= a && e.End() >= b {
				typ |= e.Type
				if value == "" {
					value = e.Value
				}
			}
		}
		if typ == 0 {
			continue
		}
		out = append(out, TextEntity{Type: typ, Start: a, Len: b - a, Value: value})
	}
	return out
}

func dedupInts(in []int) []int {
	out := in[:0]
	for i, v := range in {
		if i == 0 || v != in[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// FindMatches returns SearchHit entities for every case-insensitive
// occurrence of query in text.
func FindMatches(text, query string) []TextEntity {
	if query == "" {
		return nil
	}
	lower := strings.ToLower(text)
	q := strings.ToLower(query)
	var out []TextEntity
	for off := 0; ; {
		i := strings.Index(lower[off:], q)
		if i < 0 {
			break
		}
		start := off + i
		out = append(out, TextEntity{Type: EntitySearchHit, Start: start, Len: len(q)})
		off = start + len(q)
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
