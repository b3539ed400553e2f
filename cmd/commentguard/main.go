// Command commentguard screens survey comments from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kamilpajak/commentguard/internal/logging"
)

// Version info set by goreleaser
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	verbose    bool
	outputPath string
)

var rootCmd = &cobra.Command{
	Use:   "commentguard",
	Short: "AI screening for anonymous survey comments",
	Long: `commentguard flags survey comments that are concerning or identify a person,
resolves disagreements between its two scanners, and redacts or rephrases
what was flagged.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("commentguard %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show progress and debug logs")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "Write results to a file instead of stdout")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(level, true)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
