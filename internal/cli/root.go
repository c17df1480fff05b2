package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/config"
)

var (
	cfg    *config.Config
	dbPath string
)

var rootCmd = &cobra.Command{
	Use:   "pagesplit",
	Short: "pagesplit - self-hosted A/B testing for your landing page",
	Long: `pagesplit is a self-hosted A/B testing service for a landing page.
Single Go binary, embedded SQLite, no external dependencies.

Running without a subcommand starts the server (same as 'pagesplit serve').`,
	RunE: runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// .env first so config sees it
	_ = godotenv.Load()
	cfg = config.Load()

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", cfg.DBPath, "database path")
}
