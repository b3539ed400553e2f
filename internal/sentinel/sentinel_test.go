package sentinel

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// taggedReply builds a well-formed model reply for items.
func taggedReply(t *testing.T, items []string) string {
	t.Helper()
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = fmt.Sprintf("<<<ITEM %d>>> %s", i+1, it)
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	return string(data)
}

func TestBody(t *testing.T) {
	got := Body([]string{"first", "second\nline"})
	assert.Equal(t, "<<<ITEM 1>>>\nfirst\n<<<END 1>>>\n\n<<<ITEM 2>>>\nsecond\nline\n<<<END 2>>>", got)
}

func TestEncode_IncludesHeaderRules(t *testing.T) {
	got := Encode([]string{"a", "b", "c"})
	assert.Contains(t, got, "exactly 3 strings")
	assert.Contains(t, got, `"<<<ITEM k>>> "`)
	assert.Contains(t, got, "MUST NOT contain an <<<END k>>> marker")
	assert.True(t, strings.HasSuffix(got, "<<<ITEM 3>>>\nc\n<<<END 3>>>"))
}

func TestDecode_RoundTrip(t *testing.T) {
	items := []string{
		"plain comment",
		"multi\nline\ncomment",
		"has [brackets] and {braces}",
		"mentions ITEM 3 and <<<ITEM in passing",
		`quotes "inside" and a \ backslash`,
		"- bullet one\n- bullet two",
	}

	res := Decode(taggedReply(t, items), len(items))

	assert.True(t, res.Tagged)
	assert.Equal(t, items, res.Items)
}

func TestDecode_MissingItemLeavesGap(t *testing.T) {
	reply := `["<<<ITEM 1>>> one", "<<<ITEM 2>>> two", "<<<ITEM 4>>> four", "<<<ITEM 5>>> five"]`

	res := Decode(reply, 5)

	require.Len(t, res.Items, 5)
	assert.True(t, res.Tagged)
	assert.Equal(t, []string{"one", "two", "", "four", "five"}, res.Items)
}

func TestDecode_OutOfOrderAndOutOfRange(t *testing.T) {
	reply := `["<<<ITEM 3>>> c", "<<<ID 1>>> a", "<<<ITEM 9>>> nope", "<<<ITEM 2>>> b"]`

	res := Decode(reply, 3)

	assert.Equal(t, []string{"a", "b", "c"}, res.Items)
}

func TestDecode_Untagged(t *testing.T) {
	res := Decode(`["one", null, "", "two"]`, 2)

	assert.False(t, res.Tagged)
	assert.Equal(t, []string{"one", "two"}, res.Items)
}

func TestDecode_FiltersPreamble(t *testing.T) {
	res := Decode(`["Here are the rewritten comments:", "one", "two"]`, 2)

	assert.Equal(t, []string{"one", "two"}, res.Items)
}

func TestDecode_StripsEndRemnants(t *testing.T) {
	res := Decode(`["<<<ITEM 1>>> one <<<END 1>>>", "<<<ITEM 2>>> two\n<<<END 2>>>"]`, 2)

	assert.Equal(t, []string{"one", "two"}, res.Items)
}

func TestDecode_ProseAroundArray(t *testing.T) {
	reply := "Sure! Here is the output:\n```json\n[\"<<<ITEM 1>>> one\", \"<<<ITEM 2>>> two\"]\n```\nLet me know."

	res := Decode(reply, 2)

	assert.Equal(t, []string{"one", "two"}, res.Items)
}

func TestDecode_TruncatedArrayFallsBackToMarkerScan(t *testing.T) {
	reply := `["<<<ITEM 1>>> one", "<<<ITEM 2>>> two has \"quotes\"", "<<<ITEM 3>>> thr`

	res := Decode(reply, 3)

	assert.True(t, res.Tagged)
	assert.Equal(t, []string{"one", `two has "quotes"`, "thr"}, res.Items)
}

func TestDecode_RawMarkerText(t *testing.T) {
	reply := "<<<ITEM 1>>>\nfirst\n<<<END 1>>>\n\n<<<ITEM 2>>>\nsecond\n<<<END 2>>>"

	res := Decode(reply, 2)

	assert.Equal(t, []string{"first", "second"}, res.Items)
}

func TestDecode_ObjectsWithIDs(t *testing.T) {
	res := Decode(`[{"id": 2, "text": "b"}, {"index": "1", "text": "a"}]`, 2)

	assert.True(t, res.Tagged)
	assert.Equal(t, []string{"a", "b"}, res.Items)
}

func TestDecode_NeverPanics(t *testing.T) {
	inputs := []string{"", "   ", "null", "[", "]", "<<<", "<<<ITEM>>>", "<<<ITEM x>>>", "<<<ITEM 1", "[1, true, {}]", "<<<END 1>>>"}
	for _, in := range inputs {
		assert.NotPanics(t, func() { Decode(in, 3) }, "input %q", in)
	}
}

func TestResult_Empty(t *testing.T) {
	assert.True(t, Result{}.Empty())
	assert.True(t, Result{Items: []string{"", ""}, Tagged: true}.Empty())
	assert.False(t, Result{Items: []string{"", "x"}}.Empty())
}

func TestTokenize(t *testing.T) {
	s := "x <<<ITEM 12>>> y <<<END 12>>> <<<BOGUS 1>>> <<<id 3>>>"
	markers := tokenize(s)

	require.Len(t, markers, 3)
	assert.Equal(t, markerItem, markers[0].kind)
	assert.Equal(t, 12, markers[0].num)
	assert.Equal(t, markerEnd, markers[1].kind)
	assert.Equal(t, 3, markers[2].num)
}
