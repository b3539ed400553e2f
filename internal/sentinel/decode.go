package sentinel

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Result is a decoded batch reply.
//
// When Tagged is true, Items has exactly the requested length and each
// item sits at its declared position; missing items are empty strings.
// Otherwise Items are in the order the model produced them.
type Result struct {
	Items  []string
	Tagged bool
}

// Empty returns true if nothing usable was decoded.
func (r Result) Empty() bool {
	for _, it := range r.Items {
		if it != "" {
			return false
		}
	}
	return true
}

var preamblePattern = regexp.MustCompile(`(?i)^here (?:is|are)\b[^\n]*:$`)

// entry is one candidate output string before alignment.
type entry struct {
	text   string
	tagged bool
	num    int
}

// Decode parses a model reply for a batch of n items. It never fails:
// unparseable input yields an empty Result.
func Decode(raw string, n int) Result {
	var entries []entry
	for _, s := range extract(raw) {
		if e, ok := clean(s); ok {
			entries = append(entries, e)
		}
	}

	tagged := false
	for _, e := range entries {
		if e.tagged {
			tagged = true
			break
		}
	}

	if !tagged {
		items := make([]string, len(entries))
		for i, e := range entries {
			items[i] = e.text
		}
		return Result{Items: items}
	}

	size := n
	if size <= 0 {
		for _, e := range entries {
			if e.tagged && e.num > size {
				size = e.num
			}
		}
	}
	items := make([]string, size)
	for _, e := range entries {
		if !e.tagged || e.num < 1 || e.num > size {
			continue
		}
		if items[e.num-1] == "" {
			items[e.num-1] = e.text
		}
	}
	return Result{Items: items, Tagged: true}
}

// extract pulls raw candidate strings out of the reply: a JSON array,
// then the outermost bracket span, then a marker scan of the raw text.
func extract(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	if out, ok := jsonStrings(trimmed); ok {
		return out
	}

	if open := strings.Index(trimmed, "["); open >= 0 {
		if end := strings.LastIndex(trimmed, "]"); end > open {
			if out, ok := jsonStrings(trimmed[open : end+1]); ok {
				return out
			}
		}
	}

	return scanSpans(trimmed)
}

// jsonStrings decodes a JSON array into strings. Nulls are dropped;
// objects contribute their "text" field, tagged with "id"/"index" if present.
func jsonStrings(s string) ([]string, bool) {
	var arr []any
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		switch val := v.(type) {
		case nil:
		case string:
			out = append(out, val)
		case float64, bool:
			out = append(out, fmt.Sprint(val))
		case map[string]any:
			text, _ := val["text"].(string)
			if text == "" {
				continue
			}
			if k, ok := numberField(val, "id", "index"); ok {
				text = fmt.Sprintf("<<<ITEM %d>>> %s", k, text)
			}
			out = append(out, text)
		}
	}
	return out, true
}

func numberField(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int(v), true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// scanSpans walks the marker tokens of free text. Each ITEM/ID marker
// opens a span that runs to the next ITEM/ID marker, an END marker, or
// the end of input.
func scanSpans(s string) []string {
	markers := tokenize(s)
	var out []string
	for i, m := range markers {
		if m.kind != markerItem {
			continue
		}
		stop := len(s)
		if i+1 < len(markers) {
			stop = markers[i+1].start
		}
		body := trimArrayDebris(s[m.end:stop])
		out = append(out, s[m.start:m.end]+" "+body)
	}
	return out
}

// trimArrayDebris removes stray JSON array tokens around a span cut out of
// a malformed array literal and undoes string escaping when possible.
func trimArrayDebris(s string) string {
	s = strings.TrimSpace(s)
	for {
		s = strings.TrimRight(s, " \t\r\n,]")
		if !strings.HasSuffix(s, `"`) || escaped(s, len(s)-1) {
			break
		}
		s = s[:len(s)-1]
	}
	if strings.Contains(s, `\`) {
		if unq, err := strconv.Unquote(`"` + s + `"`); err == nil {
			s = unq
		}
	}
	return strings.TrimSpace(s)
}

// escaped reports whether s[i] is preceded by an odd run of backslashes.
func escaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// clean normalises one candidate: tags, END remnants, preambles, whitespace.
func clean(s string) (entry, bool) {
	e := entry{}
	if num, rest, ok := leadingTag(s); ok {
		e.tagged, e.num, s = true, num, rest
	}
	s = strings.TrimSpace(stripTrailingEnd(s))
	if s == "" || strings.EqualFold(s, "null") {
		return entry{}, false
	}
	if !e.tagged && preamblePattern.MatchString(s) {
		return entry{}, false
	}
	e.text = s
	return e, true
}
