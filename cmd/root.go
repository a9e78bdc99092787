// Package cmd defines the CLI commands for the trawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/simmonsip/trawler/internal/config"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trawler",
		Short: "Compliance trawl engine for patent-sensitive content",
		Long: `trawler scans configured competitor pages for patent-sensitive
keyword phrases and known reference imagery. It runs either as an HTTP
service (serve) or as a one-shot scan from the command line (trawl).`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment and built-in defaults)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTrawlCmd())

	return cmd
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
