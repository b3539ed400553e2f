package postprocess

import "regexp"

// Mask replaces anything the redaction policy matches.
const Mask = "XXXX"

// policyPatterns match details that can identify staff even after the model
// has redacted names. None of them can match Mask, so one pass is final.
var policyPatterns = []*regexp.Regexp{
	// Level / grade / band indicators: "HEW 6", "Level B", "grade 7", "band 3.2"
	regexp.MustCompile(`(?i)\bHEW\s*(?:level\s*)?\d+\b`),
	regexp.MustCompile(`\b(?i:level|grade|band)(?:\s+[A-E]|\s*\d+(?:\.\d+)?)\b`),
	// Tenure and experience phrasing
	regexp.MustCompile(`(?i)\b\d+\+?\s*(?:years?|yrs?)(?:\s+of)?\s+(?:experience|service|teaching)\b`),
	regexp.MustCompile(`(?i)\b(?:over|more than|nearly|almost|about)\s+(?:a|one|two|three|\d+)\s+(?:decades?|years?)\s+(?:here|in (?:the|this) (?:role|job|position|department|school|faculty))\b`),
	regexp.MustCompile(`(?i)\b(?:newly|recently)\s+(?:appointed|hired|employed)\b`),
	regexp.MustCompile(`(?i)\b(?:first|second)[- ]year\s+(?:lecturer|tutor|academic)s?\b`),
	regexp.MustCompile(`(?i)\btenured?\b`),
	// Role markers
	regexp.MustCompile(`\bHDRs?\b`),
	regexp.MustCompile(`(?i)\bhigher\s+degree\s+research(?:ers?)?\b`),
	regexp.MustCompile(`(?i)\bacademic\s+staff\b`),
	regexp.MustCompile(`(?i)\bstaff\s+members?\b`),
}

// EnforceRedactionPolicy masks level, tenure and role details in redacted
// text. It is idempotent.
func EnforceRedactionPolicy(text string) string {
	for _, pat := range policyPatterns {
		text = pat.ReplaceAllString(text, Mask)
	}
	return text
}
