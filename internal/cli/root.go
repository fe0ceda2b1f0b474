// Package cli implements the axstore command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/axstore/axstore/internal/app/auth"
	"github.com/axstore/axstore/internal/app/bon"
	"github.com/axstore/axstore/internal/daemon"
	"github.com/axstore/axstore/internal/infra/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "axstore",
	Short: "AxStore back office — customer bon ledger and accounts",
	Long: `AxStore is the storefront back office: customer accounts plus the
bon ledger that records give/receive transactions between the store and
its customers and keeps a sign-correct running balance per customer.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default ~/.axstore/config.toml)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openServices loads config and wires the application services for
// commands that talk to the store directly.
func openServices() (*bon.Service, *auth.Service, *sqlite.Store, daemon.Config, error) {
	cfg, err := daemon.Load(configPath)
	if err != nil {
		return nil, nil, nil, cfg, err
	}
	store, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, nil, cfg, err
	}
	ledger := bon.NewService(bon.NewStore(store), cfg.PhoneOptions())
	accounts := auth.NewService(store, cfg.PhoneOptions())
	return ledger, accounts, store, cfg, nil
}
