// Package cli provides the command-line interface of the trade sync tool.
package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"cryptoTradeSync/config"
	syncapp "cryptoTradeSync/internal/app"
	"cryptoTradeSync/internal/ports"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   ports.Logger
	Exchange ports.ExchangeClient
	Trades   ports.TradeRepository
	Sync     *syncapp.SyncService
	Registry *prometheus.Registry
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tradesync",
		Short: "Sync futures fills and ledger entries into normalized trades",
		Long: `tradesync reads your futures fills, orders and income ledger from the exchange,
groups them into position lifecycles and stores one validated trade per closed position.

Interrupted syncs are checkpointed per symbol; use 'tradesync resume' to continue one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")

	addSyncCommands(rootCmd, app)
	addReportCommands(rootCmd, app)
	addWatchCommand(rootCmd, app)
	addExportCommand(rootCmd, app)

	return rootCmd
}
