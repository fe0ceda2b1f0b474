package cli

import (
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/axstore/axstore/internal/api"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the back office HTTP server",
	Long:  `Start the HTTP API server for the bon ledger, accounts, and admin endpoints.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ledger, accounts, store, cfg, err := openServices()
	if err != nil {
		return err
	}
	defer store.Close()

	server := api.NewServer(ledger, accounts, api.NewSessionCodec(cfg.Session.Secret), cfg.Admin.Password)
	if cfg.Server.Metrics {
		server.EnableMetrics()
	}

	log.Printf("axstore listening on %s (store %s)", cfg.Addr(), cfg.Store.Path)
	return http.ListenAndServe(cfg.Addr(), server.Handler())
}
