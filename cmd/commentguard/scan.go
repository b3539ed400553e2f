package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/commentguard/internal/scan"
	"github.com/kamilpajak/commentguard/pkg/models"
)

var (
	serverURL    string
	serverToken  string
	scanSettings string
	maxSplits    int
)

var scanCmd = &cobra.Command{
	Use:   "scan <file>",
	Short: "Scan comments against a commentguard server",
	Long: `Send comments to a commentguard server in client-managed batches, retrying
anything a scanner missed or refused in smaller pieces.

Without --settings the server's active AI configuration is used.

Examples:
  commentguard scan comments.json --server https://api.example.com
  commentguard scan responses.txt --settings settings.json -o scanned.json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&serverURL, "server", envOr("COMMENTGUARD_SERVER", "http://localhost:8080"), "Server base URL")
	scanCmd.Flags().StringVar(&serverToken, "token", os.Getenv("COMMENTGUARD_TOKEN"), "Bearer token")
	scanCmd.Flags().StringVar(&scanSettings, "settings", "", "JSON file with scanA/scanB settings")
	scanCmd.Flags().IntVar(&maxSplits, "max-splits", scan.DefaultMaxSplits, "Retry budget for missed items")
}

func runScan(cmd *cobra.Command, args []string) error {
	comments, err := loadComments(args[0])
	if err != nil {
		return err
	}

	payload := models.ScanPayload{Comments: comments}
	if scanSettings != "" {
		s, err := loadSettings(scanSettings)
		if err != nil {
			return err
		}
		payload.ScanA, payload.ScanB = s.ScanA, s.ScanB
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	var emitter scan.ProgressEmitter = scan.NopEmitter{}
	if verbose {
		emitter = &scan.TextEmitter{W: os.Stderr}
	}
	orch := &scan.Orchestrator{
		Fetcher:   scan.NewHTTPFetcher(serverURL, serverToken),
		MaxSplits: maxSplits,
		Emitter:   emitter,
		Logger:    logger,
	}

	resp, err := orch.Run(cmd.Context(), payload)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	printScanSummary(os.Stderr, resp.Summary)
	return writeOutput(os.Stdout, resp)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
