package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/jobmanager"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run a single orphan-reconciliation sweep and exit",
	Long: `reconcile finds crawls stuck in pending/running/uploading whose queue job
has vanished or reached a terminal state and either re-enqueues or fails them
(spec §4.5 "Orphan reconciliation"). The worker command already runs this on
a timer; this subcommand is for cron-driven or manual invocation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		d, cleanup, err := buildDeps(cfg, false)
		if err != nil {
			return err
		}
		defer cleanup()

		reconciler := jobmanager.NewReconciler(d.crawls, d.queue,
			time.Duration(cfg.Worker.OrphanGraceMS)*time.Millisecond, d.log, d.metrics)

		if err := reconciler.Sweep(cmd.Context()); err != nil {
			return fmt.Errorf("orphan sweep: %w", err)
		}
		logMetricsSnapshot(d.log, d.metrics)
		fmt.Println("orphan sweep complete")
		return nil
	},
}
