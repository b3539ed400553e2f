package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/kamilpajak/commentguard/internal/pipeline"
	"github.com/kamilpajak/commentguard/pkg/models"
)

func printScanSummary(w io.Writer, s models.ScanSummary) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintln(w)
	_, _ = dim.Fprintln(w, "  "+strings.Repeat("━", 50))
	_, _ = bold.Fprintf(w, "  Scanned %d of %d comments\n", s.Scanned, s.Total)
	printCount(w, "Flagged", s.Flagged, color.FgYellow)
	printCount(w, "Concerning", s.Concerning, color.FgRed)
	printCount(w, "Disagreements", s.Disagreed, color.FgCyan)
	if missing := s.Total - s.Scanned; missing > 0 {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintf(w, "  Tip: %d comments were not scanned. Try a higher --max-splits.\n", missing)
	}
}

func printResult(w io.Writer, r *pipeline.Result) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	printScanSummary(w, r.Scan)
	if r.Adjudication.Resolved > 0 {
		printCount(w, "Adjudicated", r.Adjudication.Resolved, color.FgCyan)
	}

	fmt.Fprintln(w)
	_, _ = bold.Fprintln(w, "  OUTPUT")
	printCount(w, "Redacted", r.PostProcess.Redacted, color.FgRed)
	printCount(w, "Rephrased", r.PostProcess.Rephrased, color.FgGreen)
	printCount(w, "Original", r.PostProcess.Original, color.FgHiBlack)

	if r.FallbackUsed {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintln(w, "  Some comments use placeholder text because a transform call failed.")
	}
	_, _ = dim.Fprintf(w, "  Finished in %.1fs\n", r.Duration.Seconds())
}

func printCount(w io.Writer, label string, n int, attr color.Attribute) {
	c := color.New(attr)
	fmt.Fprintf(w, "  %-14s", label)
	_, _ = c.Fprintf(w, "%d\n", n)
}
