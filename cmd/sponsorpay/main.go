package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/andrewpillar/sponsorpay/internal/config"
	"github.com/andrewpillar/sponsorpay/internal/telemetry"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sponsorpay",
		Short:         "Sponsorship payments through organizer connected Stripe and Square accounts",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to the YAML config file")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(feesCmd())
	root.AddCommand(verifyCmd())

	return root
}

// loadConfig loads the configuration named by the --config flag, and
// installs the logger it configures as the default.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)

	if err != nil {
		return nil, err
	}

	slog.SetDefault(telemetry.Logger(os.Stderr, cfg.Log.Level))
	return cfg, nil
}

func openDB(cfg config.Database) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)

	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.Driver, err)
	}
	return db, nil
}
