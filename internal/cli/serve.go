package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagesplit/pagesplit/internal/experiment"
	"github.com/pagesplit/pagesplit/internal/server"
	"github.com/pagesplit/pagesplit/internal/store"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the pagesplit HTTP server.

The server provides:
  - Client script at /ps.js
  - Assignment API and event beacon endpoint
  - Dashboard for viewing results
  - Health check and prometheus metrics

Example:
  pagesplit serve --listen :8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (default from PS_LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	cfg.DBPath = dbPath

	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	svc := experiment.NewService(s)
	srv := server.New(s, svc, cfg)
	return srv.Start()
}
