package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kamilpajak/commentguard/internal/config"
	"github.com/kamilpajak/commentguard/internal/llm"
	"github.com/kamilpajak/commentguard/internal/pipeline"
	"github.com/kamilpajak/commentguard/internal/scan"
)

var (
	processConfig   string
	processSettings string
)

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Run the full screening pipeline locally",
	Long: `Scan, adjudicate and post-process comments in-process, calling the AI
providers directly with keys from the environment.

--settings is a JSON file with scanA, scanB, adjudicator, postProcess and
defaultMode. --config tunes provider limits and batching.

Examples:
  commentguard process comments.json --settings settings.json
  commentguard process responses.txt --settings settings.json --config commentguard.yaml -o screened.json`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processConfig, "config", os.Getenv("COMMENTGUARD_CONFIG"), "YAML config file")
	processCmd.Flags().StringVar(&processSettings, "settings", "", "JSON file with provider, model and prompt settings (required)")
	_ = processCmd.MarkFlagRequired("settings")
}

func runProcess(cmd *cobra.Command, args []string) error {
	comments, err := loadComments(args[0])
	if err != nil {
		return err
	}
	settings, err := loadSettings(processSettings)
	if err != nil {
		return err
	}

	cfg, err := config.Load(processConfig)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	keys := cfg.APIKeys()
	if len(keys) == 0 {
		return errors.New("no provider API keys set (OPENAI_API_KEY, ANTHROPIC_API_KEY or GOOGLE_API_KEY)")
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	var emitter scan.ProgressEmitter = scan.NopEmitter{}
	var spin *spinner.Spinner
	switch {
	case verbose:
		emitter = &scan.TextEmitter{W: os.Stderr}
	case isatty.IsTerminal(os.Stderr.Fd()):
		spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		spin.Suffix = fmt.Sprintf(" screening %d comments", len(comments))
		spin.Start()
		emitter = &spinnerEmitter{spin: spin}
	}

	runner := pipeline.NewComponents(&cfg, llm.NewRegistry(keys), logger).Runner(emitter)
	res, err := runner.Run(cmd.Context(), comments, pipelineConfig(settings, cfg.Pipeline.DefaultMode))
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return err
	}

	printResult(os.Stderr, res)
	return writeOutput(os.Stdout, res.Comments)
}

// spinnerEmitter shows the latest orchestration step next to the spinner.
type spinnerEmitter struct {
	spin *spinner.Spinner
}

func (e *spinnerEmitter) Emit(ev scan.ProgressEvent) {
	if ev.Message == "" {
		return
	}
	e.spin.Lock()
	e.spin.Suffix = " " + ev.Message
	e.spin.Unlock()
}
