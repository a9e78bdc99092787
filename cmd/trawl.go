package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/simmonsip/trawler/internal/app"
	"github.com/simmonsip/trawler/internal/trawl"
)

type trawlFlags struct {
	includeImages  bool
	skipRender     bool
	dryRun         bool
	selfTest       bool
	siteIndex      int
	maxSites       int
	limitKeywords  int
	concurrency    int
	fetchTimeoutMs int
	deadlineMs     int
}

func newTrawlCmd() *cobra.Command {
	flags := &trawlFlags{}
	cmd := &cobra.Command{
		Use:   "trawl",
		Short: "Run one scan and print the results as JSON",
		Long: `Runs a single scan over the configured competitor list and writes
the match results and run metadata to stdout as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrawlCommand(cmd, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.includeImages, "include-images", false, "also match reference-image fingerprints")
	cmd.Flags().BoolVar(&flags.skipRender, "skip-render", false, "skip the headless render fallback")
	cmd.Flags().BoolVar(&flags.dryRun, "dry", false, "validate wiring without scanning")
	cmd.Flags().BoolVar(&flags.selfTest, "selftest", false, "run the built-in matcher check and exit")
	cmd.Flags().IntVar(&flags.siteIndex, "idx", -1, "scan a single competitor by index")
	cmd.Flags().IntVar(&flags.maxSites, "max-sites", 0, "cap the number of competitors scanned")
	cmd.Flags().IntVar(&flags.limitKeywords, "limit-keywords", 0, "cap the number of phrases compiled")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "sites scanned in parallel")
	cmd.Flags().IntVar(&flags.fetchTimeoutMs, "fetch-timeout-ms", 0, "static fetch budget per attempt")
	cmd.Flags().IntVar(&flags.deadlineMs, "deadline-ms", 0, "soft deadline for the whole run")

	return cmd
}

func runTrawlCommand(cmd *cobra.Command, flags *trawlFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("initialize service: %w", err)
	}
	defer a.Close()

	if flags.selfTest {
		return printJSON(map[string]any{"selftest": a.Engine.SelfTest()})
	}

	params := trawl.RunParams{
		IncludeImages: flags.includeImages,
		SkipRender:    flags.skipRender,
		DryRun:        flags.dryRun,
		SiteIndex:     flags.siteIndex,
		MaxSites:      flags.maxSites,
		LimitKeywords: flags.limitKeywords,
		Concurrency:   flags.concurrency,
		FetchTimeout:  time.Duration(flags.fetchTimeoutMs) * time.Millisecond,
		Deadline:      time.Duration(flags.deadlineMs) * time.Millisecond,
	}

	report, err := a.Engine.Run(cmd.Context(), params)
	if err != nil {
		return fmt.Errorf("run trawl: %w", err)
	}
	return printJSON(report)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
