package models

// AdjudicatorConfig configures the third-pass resolver
type AdjudicatorConfig struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// AdjudicationSummary counts adjudication outcomes
type AdjudicationSummary struct {
	Total    int `json:"total"`
	Resolved int `json:"resolved"`
	Errors   int `json:"errors"`
}

// AdjudicationResponse is the envelope returned by the adjudicator
type AdjudicationResponse struct {
	Success             bool                `json:"success"`
	AdjudicatedComments []Comment           `json:"adjudicatedComments"`
	Summary             AdjudicationSummary `json:"summary"`
	Error               string              `json:"error,omitempty"`
}

// PostProcessConfig configures the redact/rephrase transforms
type PostProcessConfig struct {
	Provider           string `json:"provider"`
	Model              string `json:"model"`
	RedactPrompt       string `json:"redact_prompt"`
	RephrasePrompt     string `json:"rephrase_prompt"`
	MaxTokens          int    `json:"max_tokens,omitempty"`
	PreferredBatchSize int    `json:"preferredBatchSize,omitempty"`
}

// PostProcessSummary counts which transform each comment ended up with.
// Redacted + Rephrased + Original always equals Total.
type PostProcessSummary struct {
	Total     int `json:"total"`
	Redacted  int `json:"redacted"`
	Rephrased int `json:"rephrased"`
	Original  int `json:"original"`
}

// PostProcessResponse is the envelope returned by the post-processor
type PostProcessResponse struct {
	Success           bool               `json:"success"`
	ProcessedComments []Comment          `json:"processedComments"`
	Summary           PostProcessSummary `json:"summary"`
	FallbackUsed      bool               `json:"fallbackUsed,omitempty"`
	Error             string             `json:"error,omitempty"`
}
