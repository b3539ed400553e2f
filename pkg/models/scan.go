package models

// ScanResult is one scanner's verdict for one comment
type ScanResult struct {
	Concerning   bool   `json:"concerning"`
	Identifiable bool   `json:"identifiable"`
	Reasoning    string `json:"reasoning"`
	Model        string `json:"model"`
}

// Agreements records, per dimension, whether Scan A and Scan B agreed.
// A nil field means the scanners disagreed and the comment needs adjudication.
type Agreements struct {
	Concerning   *bool `json:"concerning"`
	Identifiable *bool `json:"identifiable"`
}

// ComputeAgreements compares two verdicts dimension by dimension.
// If either verdict is missing, nothing is agreed.
func ComputeAgreements(a, b *ScanResult) Agreements {
	var ag Agreements
	if a == nil || b == nil {
		return ag
	}
	if a.Concerning == b.Concerning {
		ag.Concerning = Bool(a.Concerning)
	}
	if a.Identifiable == b.Identifiable {
		ag.Identifiable = Bool(a.Identifiable)
	}
	return ag
}

// NeedsAdjudication returns true if either dimension lacks agreement
func (a *Agreements) NeedsAdjudication() bool {
	return a == nil || a.Concerning == nil || a.Identifiable == nil
}

// BatchInfo locates a scan call within the caller's comment array
type BatchInfo struct {
	Start int `json:"start"`
	Size  int `json:"size"`
}

// ScannerDiagnostics describes how completely one scanner covered a batch.
// MissingIndices are positions into ItemIDsUsed; ItemIDsUsed are global
// positions into the comment array sent with the scan request.
type ScannerDiagnostics struct {
	HarmfulRefusalDetected bool    `json:"harmfulRefusalDetected"`
	PartialCoverage        bool    `json:"partialCoverage"`
	CoverageRatio          float64 `json:"coverageRatio"`
	MissingIndices         []int   `json:"missingIndices"`
	ItemIDsUsed            []int   `json:"itemIdsUsed"`

	Provider             string `json:"provider,omitempty"`
	Model                string `json:"model,omitempty"`
	EstimatedInputTokens int    `json:"estimatedInputTokens"`
	RateLimitWaitMS      int64  `json:"rateLimitWaitMs"`
	TPMLimit             *int   `json:"tpmLimit"`
	RPMLimit             *int   `json:"rpmLimit"`
	Error                string `json:"error,omitempty"`
}

// NeedsSplit returns true if the scanner refused or left items uncovered
func (d *ScannerDiagnostics) NeedsSplit() bool {
	return d.HarmfulRefusalDetected || d.CoverageRatio < 1
}

// MissingItemIDs maps MissingIndices back to global item positions.
// Indices outside ItemIDsUsed are ignored.
func (d *ScannerDiagnostics) MissingItemIDs() []int {
	ids := make([]int, 0, len(d.MissingIndices))
	for _, idx := range d.MissingIndices {
		if idx >= 0 && idx < len(d.ItemIDsUsed) {
			ids = append(ids, d.ItemIDsUsed[idx])
		}
	}
	return ids
}

// ScanDiagnostics is returned by a client-managed scan call
type ScanDiagnostics struct {
	Batch BatchInfo          `json:"batch"`
	ScanA ScannerDiagnostics `json:"scanA"`
	ScanB ScannerDiagnostics `json:"scanB"`
}

// NeedsSplit returns true if either scanner needs a retry
func (d *ScanDiagnostics) NeedsSplit() bool {
	return d.ScanA.NeedsSplit() || d.ScanB.NeedsSplit()
}

// ScannerConfig configures one of the two scanners
type ScannerConfig struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// ScanPayload is the request body of a scan call
type ScanPayload struct {
	Comments              []Comment     `json:"comments"`
	ScanA                 ScannerConfig `json:"scanA"`
	ScanB                 ScannerConfig `json:"scanB"`
	ClientManagedBatching bool          `json:"clientManagedBatching"`
	RestrictIndices       []int         `json:"restrictIndices,omitempty"`
	ScanRunID             string        `json:"scanRunId,omitempty"`
}

// ScanSummary counts scan outcomes
type ScanSummary struct {
	Total      int `json:"total"`
	Scanned    int `json:"scanned"`
	Concerning int `json:"concerning"`
	Flagged    int `json:"flagged"`
	Disagreed  int `json:"disagreed"`
}

// ScanResponse is the response body of a scan call
type ScanResponse struct {
	Success         bool             `json:"success"`
	Comments        []Comment        `json:"comments"`
	ScanDiagnostics *ScanDiagnostics `json:"scanDiagnostics,omitempty"`
	Summary         ScanSummary      `json:"summary"`
	ScanRunID       string           `json:"scanRunId,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// Summarize counts outcomes across comments
func Summarize(comments []Comment) ScanSummary {
	s := ScanSummary{Total: len(comments)}
	for i := range comments {
		c := &comments[i]
		if c.ScanAResult != nil || c.ScanBResult != nil {
			s.Scanned++
		}
		if c.IsConcerning() {
			s.Concerning++
		}
		if c.Flagged() {
			s.Flagged++
		}
		if c.Agreements != nil && c.Agreements.NeedsAdjudication() {
			s.Disagreed++
		}
	}
	return s
}
