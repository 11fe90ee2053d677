package main

import (
	"fmt"

	"github.com/andrewpillar/sponsorpay"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the organizers and sponsorships tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)

			if err != nil {
				return err
			}

			db, err := openDB(cfg.Database)

			if err != nil {
				return err
			}
			defer db.Close()

			if err := (sponsorpay.PSQL{DB: db}).Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "schema migrated (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}
