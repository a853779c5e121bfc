package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	syncapp "cryptoTradeSync/internal/app"
	"cryptoTradeSync/internal/ports"
)

func addWatchCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync periodically and serve metrics",
		Long: `Run a sync every interval until interrupted. A stored checkpoint is resumed first;
otherwise a fresh sync of the configured range runs, subject to the daily quota.
Prometheus metrics are served on /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			addr, _ := cmd.Flags().GetString("metrics-addr")
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}
			return runWatch(cmd.Context(), app, interval, addr)
		},
	}

	cmd.Flags().Duration("interval", app.Config.WatchInterval, "Time between syncs")
	cmd.Flags().String("metrics-addr", app.Config.MetricsAddr, "Listen address for /metrics (empty disables)")
	rootCmd.AddCommand(cmd)
}

func runWatch(ctx context.Context, app *App, interval time.Duration, addr string) error {
	if err := app.Exchange.Ping(ctx); err != nil {
		return err
	}

	var srv *http.Server
	if addr != "" && app.Registry != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.Logger.Error(ctx, err, "Metrics server stopped", map[string]interface{}{"addr": addr})
			}
		}()
		app.Logger.Info(ctx, "Serving metrics", map[string]interface{}{"addr": addr})
	}
	defer func() {
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}
	}()

	app.Logger.Info(ctx, "Watching account", map[string]interface{}{
		"accountId": app.Config.AccountID,
		"interval":  interval.String(),
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		watchCycle(ctx, app)
		select {
		case <-ctx.Done():
			app.Logger.Info(context.Background(), "Watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// watchCycle resumes a pending checkpoint or starts a fresh sync. Errors are logged,
// never returned: the next tick retries.
func watchCycle(ctx context.Context, app *App) {
	res, err := app.Sync.Resume(ctx, nil)
	if errors.Is(err, ports.ErrNoCheckpoint) {
		opts := syncapp.SyncOptions{
			RangeDays:    app.Config.SyncRangeDays,
			AllTime:      app.Config.SyncRangeDays == 0,
			ForceRefetch: app.Config.ForceRefetch,
		}
		res, err = app.Sync.StartFreshSync(ctx, opts, nil)
	}

	switch {
	case errors.Is(err, ports.ErrQuotaExceeded):
		app.Logger.Info(ctx, "Daily sync quota used up, skipping cycle")
	case errors.Is(err, ports.ErrSyncInProgress):
		app.Logger.Debug(ctx, "Previous sync still running, skipping cycle")
	case err != nil:
		fields := map[string]interface{}{}
		if res != nil {
			fields["state"] = res.State
			fields["runId"] = res.RunID
		}
		app.Logger.Error(ctx, err, "Watch cycle failed", fields)
	default:
		app.Logger.Info(ctx, "Watch cycle finished", map[string]interface{}{
			"runId":           res.RunID,
			"tradesPersisted": res.TradesPersisted,
			"partialFailures": len(res.PartialFailures),
		})
	}
}
