// Package cmd implements the archivist command-line interface: the worker
// process entry point, the schema migrator, and a one-shot orphan sweep.
// Grounded on the teacher's cmd/root.go (cobra root command, persistent
// --config flag, viper-backed config load deferred to each
// subcommand's RunE).
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "archivist",
	Short: "Crawl and archive websites into compressed, self-contained snapshots",
	Long: `archivist runs the crawl/archive engine described in the core spec: it
consumes crawl jobs from a durable queue, fetches and rewrites every reachable
page of a configured site, mirrors same-origin assets locally, packages the
result into a ZIP, and uploads it to object storage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file (optional; env vars and defaults otherwise)")

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("archivist version dev")
		},
	})
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
