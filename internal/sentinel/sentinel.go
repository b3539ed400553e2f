// Package sentinel packs many comments into one model input using explicit
// begin/end markers, and unpacks the model's array-of-strings reply.
//
// Wire format (shared with the model, not negotiable):
//
//	<<<ITEM 1>>>
//	first comment
//	<<<END 1>>>
//
//	<<<ITEM 2>>>
//	...
//
// Replies are a JSON array of N strings, each starting with "<<<ITEM k>>> ".
package sentinel

import (
	"fmt"
	"strconv"
	"strings"
)

// Header returns the output-format instructions for a batch of n items.
func Header(n int) string {
	return fmt.Sprintf(`You will receive %d items. Each item is delimited by sentinel markers: it starts with <<<ITEM k>>> and ends with <<<END k>>>.

Rules:
1. Everything between <<<ITEM k>>> and <<<END k>>> is exactly ONE item, even if it contains line breaks, bullet points or numbered lists.
2. Never split one item into several outputs and never merge several items into one output.
3. Respond with a JSON array of exactly %d strings, one per item, in item order.
4. Each string MUST begin with the literal prefix "<<<ITEM k>>> " (k = the item number) and MUST NOT contain an <<<END k>>> marker.
5. Output only the JSON array. No prose, explanations or code fences before or after it.`, n, n)
}

// Body wraps each item (1-based) in sentinel markers, separated by blank lines.
func Body(items []string) string {
	blocks := make([]string, len(items))
	for i, item := range items {
		blocks[i] = fmt.Sprintf("<<<ITEM %d>>>\n%s\n<<<END %d>>>", i+1, item, i+1)
	}
	return strings.Join(blocks, "\n\n")
}

// Encode returns the instruction header followed by the wrapped items.
func Encode(items []string) string {
	return Header(len(items)) + "\n\n" + Body(items)
}

// markerKind classifies a sentinel marker.
type markerKind int

const (
	markerItem markerKind = iota // <<<ITEM k>>> or <<<ID k>>>
	markerEnd                    // <<<END k>>>
)

// marker is one sentinel token located in a string.
type marker struct {
	kind       markerKind
	num        int
	start, end int // byte offsets of the full "<<<...>>>" token
}

// parseMarkerAt parses a marker starting at s[i:], which must begin with "<<<".
// The grammar is "<<<" WORD SPACE+ DIGITS ">>>" with WORD one of ITEM, ID, END.
func parseMarkerAt(s string, i int) (marker, bool) {
	j := i + 3
	w := j
	for w < len(s) && isLetter(s[w]) {
		w++
	}
	var kind markerKind
	switch word := s[j:w]; {
	case strings.EqualFold(word, "ITEM"), strings.EqualFold(word, "ID"):
		kind = markerItem
	case strings.EqualFold(word, "END"):
		kind = markerEnd
	default:
		return marker{}, false
	}

	d := w
	for d < len(s) && (s[d] == ' ' || s[d] == '\t') {
		d++
	}
	if d == w {
		return marker{}, false
	}
	n := d
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n == d || !strings.HasPrefix(s[n:], ">>>") {
		return marker{}, false
	}
	num, err := strconv.Atoi(s[d:n])
	if err != nil {
		return marker{}, false
	}
	return marker{kind: kind, num: num, start: i, end: n + 3}, true
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// tokenize returns every well-formed marker in s in order of appearance.
func tokenize(s string) []marker {
	var out []marker
	for i := 0; i < len(s); {
		k := strings.Index(s[i:], "<<<")
		if k < 0 {
			break
		}
		pos := i + k
		if m, ok := parseMarkerAt(s, pos); ok {
			out = append(out, m)
			i = m.end
			continue
		}
		i = pos + 3
	}
	return out
}

// leadingTag returns the item number of a leading <<<ITEM k>>>/<<<ID k>>>
// prefix and the text after it.
func leadingTag(s string) (int, string, bool) {
	trimmed := strings.TrimLeft(s, " \t\r\n")
	if !strings.HasPrefix(trimmed, "<<<") {
		return 0, s, false
	}
	m, ok := parseMarkerAt(trimmed, 0)
	if !ok || m.kind != markerItem {
		return 0, s, false
	}
	return m.num, trimmed[m.end:], true
}

// stripTrailingEnd removes <<<END k>>> markers left at the end of s.
func stripTrailingEnd(s string) string {
	for {
		s = strings.TrimRight(s, " \t\r\n")
		if !strings.HasSuffix(s, ">>>") {
			return s
		}
		idx := strings.LastIndex(s, "<<<")
		if idx < 0 {
			return s
		}
		m, ok := parseMarkerAt(s, idx)
		if !ok || m.kind != markerEnd || m.end != len(s) {
			return s
		}
		s = s[:idx]
	}
}
