package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeAgreements(t *testing.T) {
	a := &ScanResult{Concerning: true, Identifiable: false}

	t.Run("both agree", func(t *testing.T) {
		ag := ComputeAgreements(a, &ScanResult{Concerning: true, Identifiable: false})
		assert.Equal(t, Bool(true), ag.Concerning)
		assert.Equal(t, Bool(false), ag.Identifiable)
		assert.False(t, ag.NeedsAdjudication())
	})

	t.Run("identifiable disagrees", func(t *testing.T) {
		ag := ComputeAgreements(a, &ScanResult{Concerning: true, Identifiable: true})
		assert.Equal(t, Bool(true), ag.Concerning)
		assert.Nil(t, ag.Identifiable)
		assert.True(t, ag.NeedsAdjudication())
	})

	t.Run("missing verdict", func(t *testing.T) {
		ag := ComputeAgreements(a, nil)
		assert.Nil(t, ag.Concerning)
		assert.Nil(t, ag.Identifiable)
	})
}

func TestScannerDiagnostics_MissingItemIDs(t *testing.T) {
	d := ScannerDiagnostics{
		CoverageRatio:  0.75,
		ItemIDsUsed:    []int{8, 9, 10, 11},
		MissingIndices: []int{1, 3, 7},
	}

	assert.Equal(t, []int{9, 11}, d.MissingItemIDs())
	assert.True(t, d.NeedsSplit())
}

func TestScanDiagnostics_NeedsSplit(t *testing.T) {
	full := ScannerDiagnostics{CoverageRatio: 1}

	assert.False(t, (&ScanDiagnostics{ScanA: full, ScanB: full}).NeedsSplit())
	assert.True(t, (&ScanDiagnostics{ScanA: full, ScanB: ScannerDiagnostics{CoverageRatio: 1, HarmfulRefusalDetected: true}}).NeedsSplit())
}

func TestSummarize(t *testing.T) {
	comments := []Comment{
		{ID: "1", Concerning: Bool(true), Identifiable: Bool(false), ScanAResult: &ScanResult{}, Agreements: &Agreements{Concerning: Bool(true), Identifiable: Bool(false)}},
		{ID: "2", Concerning: Bool(false), Identifiable: Bool(true), ScanBResult: &ScanResult{}, Agreements: &Agreements{Concerning: Bool(false)}},
		{ID: "3"},
	}

	s := Summarize(comments)

	assert.Equal(t, ScanSummary{Total: 3, Scanned: 2, Concerning: 1, Flagged: 2, Disagreed: 1}, s)
}

func TestComment_SourceText(t *testing.T) {
	assert.Equal(t, "orig", (&Comment{OriginalText: "orig", Text: "now"}).SourceText())
	assert.Equal(t, "now", (&Comment{Text: "now"}).SourceText())
}

func TestMode_Valid(t *testing.T) {
	assert.True(t, ModeRedact.Valid())
	assert.True(t, ModeOriginal.Valid())
	assert.False(t, Mode("shred").Valid())
}
