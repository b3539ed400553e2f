// Package verdict parses the JSON classification arrays returned by the
// scanners and the adjudicator.
package verdict

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoArray means the reply contained no JSON array.
var ErrNoArray = errors.New("no JSON array in response")

// Verdict is one classified item.
// Index is the 1-based item number when the model supplied one, else 0.
type Verdict struct {
	Index           int
	Concerning      bool
	Identifiable    bool
	HasConcerning   bool
	HasIdentifiable bool
	Reasoning       string
}

// Complete returns true if both dimensions were present and readable.
func (v Verdict) Complete() bool {
	return v.HasConcerning && v.HasIdentifiable
}

// Span returns the first '[' through the last ']' of raw.
func Span(raw string) (string, bool) {
	open := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if open < 0 || end <= open {
		return "", false
	}
	return raw[open : end+1], true
}

// Parse decodes the classification array in raw. Entries that are not
// objects are kept as empty verdicts so positions stay aligned.
func Parse(raw string) ([]Verdict, error) {
	span, ok := Span(raw)
	if !ok {
		return nil, ErrNoArray
	}
	var arr []any
	if err := json.Unmarshal([]byte(span), &arr); err != nil {
		return nil, fmt.Errorf("failed to parse verdict array: %w", err)
	}

	out := make([]Verdict, len(arr))
	for i, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		v := Verdict{}
		if n, ok := intField(obj, "index", "id", "item"); ok {
			v.Index = n
		}
		v.Concerning, v.HasConcerning = Bool(obj["concerning"])
		v.Identifiable, v.HasIdentifiable = Bool(obj["identifiable"])
		if r, ok := obj["reasoning"].(string); ok {
			v.Reasoning = strings.TrimSpace(r)
		}
		out[i] = v
	}
	return out, nil
}

// Bool coerces a loosely typed JSON value into a bool.
// The second result is false when v carries no boolean meaning.
func Bool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case float64:
		return val != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
	}
	return false, false
}

func intField(m map[string]any, keys ...string) (int, bool) {
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
