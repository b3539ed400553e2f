package models

// Mode selects which transform (if any) is applied to a flagged comment
type Mode string

const (
	ModeRedact   Mode = "redact"
	ModeRephrase Mode = "rephrase"
	ModeOriginal Mode = "original"
)

// Valid reports whether m is one of the known modes
func (m Mode) Valid() bool {
	switch m {
	case ModeRedact, ModeRephrase, ModeOriginal:
		return true
	}
	return false
}

// Comment is one survey response moving through the screening pipeline.
// OriginalText never changes; Text holds the current (possibly transformed) text.
type Comment struct {
	ID           string      `json:"id"`
	OriginalText string      `json:"originalText"`
	Text         string      `json:"text"`
	Concerning   *bool       `json:"concerning"`
	Identifiable *bool       `json:"identifiable"`
	Mode         Mode        `json:"mode,omitempty"`
	ScanAResult  *ScanResult `json:"scanAResult,omitempty"`
	ScanBResult  *ScanResult `json:"scanBResult,omitempty"`
	Agreements   *Agreements `json:"agreements,omitempty"`
	Adjudicated  bool        `json:"adjudicated,omitempty"`
	Reasoning    string      `json:"reasoning,omitempty"`
	Model        string      `json:"model,omitempty"`

	RedactedText  string `json:"redactedText,omitempty"`
	RephrasedText string `json:"rephrasedText,omitempty"`
}

// SourceText returns the text scanners and transforms should read.
func (c *Comment) SourceText() string {
	if c.OriginalText != "" {
		return c.OriginalText
	}
	return c.Text
}

// IsConcerning returns the concerning flag, treating unscanned as false
func (c *Comment) IsConcerning() bool {
	return c.Concerning != nil && *c.Concerning
}

// IsIdentifiable returns the identifiable flag, treating unscanned as false
func (c *Comment) IsIdentifiable() bool {
	return c.Identifiable != nil && *c.Identifiable
}

// Flagged returns true if either scan dimension marked the comment
func (c *Comment) Flagged() bool {
	return c.IsConcerning() || c.IsIdentifiable()
}

// Bool returns a pointer to v. Handy for nullable flags.
func Bool(v bool) *bool {
	return &v
}
