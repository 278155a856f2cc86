package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down]",
	Short: "Apply or revert the relational store's schema",
	Long: `migrate runs golang-migrate against the sites/crawls/crawl_logs/settings
schema embedded in the binary (spec §3). Defaults to "up".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := "up"
		if len(args) == 1 {
			direction = args[0]
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := database.Connect(database.Config{
			DSN:             cfg.Database.DSN(),
			MaxOpenConns:    cfg.Database.MaxConnections,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		if err := database.Migrate(db, direction); err != nil {
			return fmt.Errorf("migrate %s: %w", direction, err)
		}
		fmt.Printf("migration %s applied\n", direction)
		return nil
	},
}
