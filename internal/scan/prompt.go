package scan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kamilpajak/commentguard/internal/sentinel"
	"github.com/kamilpajak/commentguard/internal/verdict"
	"github.com/kamilpajak/commentguard/pkg/models"
)

// outputInstruction is appended to every scanner prompt.
const outputInstruction = `Each item below is delimited by <<<ITEM k>>> and <<<END k>>> markers. Everything between the markers of one item is a single comment, even if it spans several lines or contains lists.

Classify every item. Respond with a JSON array containing exactly %d objects, one per item, in item order:
[{"index": k, "concerning": true|false, "identifiable": true|false, "reasoning": "one short sentence"}]

"index" is the item number k. Output only the JSON array.`

// buildInput renders the batch body the scanner model receives.
func buildInput(texts []string) string {
	return fmt.Sprintf(outputInstruction, len(texts)) + "\n\n" + sentinel.Body(texts)
}

var refusalPattern = regexp.MustCompile(`(?i)\b(?:I(?:'m| am) (?:unable|not able) to|I can(?:no|')t (?:help|assist|comply|process|classify)|I won't be able to|cannot (?:assist|comply) with)\b`)

// looksLikeRefusal returns true for a reply that declines instead of classifying.
func looksLikeRefusal(text string) bool {
	if _, ok := verdict.Span(text); ok {
		return false
	}
	return refusalPattern.MatchString(text)
}

// alignVerdicts maps parsed verdicts onto n items. Indexed verdicts land at
// their item number; unindexed ones fall back to array position. Incomplete
// or out-of-range verdicts leave the item missing.
func alignVerdicts(vs []verdict.Verdict, n int, model string) []*models.ScanResult {
	out := make([]*models.ScanResult, n)
	for i, v := range vs {
		if !v.Complete() {
			continue
		}
		pos := i
		if v.Index > 0 {
			pos = v.Index - 1
		}
		if pos < 0 || pos >= n || out[pos] != nil {
			continue
		}
		out[pos] = &models.ScanResult{
			Concerning:   v.Concerning,
			Identifiable: v.Identifiable,
			Reasoning:    strings.TrimSpace(v.Reasoning),
			Model:        model,
		}
	}
	return out
}
