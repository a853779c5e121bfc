package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	syncapp "cryptoTradeSync/internal/app"
	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/ports"
)

func addSyncCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newSyncCmd(app))
	rootCmd.AddCommand(newResumeCmd(app))
	rootCmd.AddCommand(newDiscardCmd(app))
}

func newSyncCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a fresh sync",
		Long: `Start a fresh sync of the requested window. Any existing checkpoint is discarded.
Fresh syncs count against the daily quota.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			allTime, _ := cmd.Flags().GetBool("all-time")
			force, _ := cmd.Flags().GetBool("force")
			if days < 0 {
				return fmt.Errorf("%w: --days cannot be negative", ports.ErrInvalidRequest)
			}

			opts := syncapp.SyncOptions{
				RangeDays:    days,
				AllTime:      allTime || days == 0,
				ForceRefetch: force || app.Config.ForceRefetch,
			}
			output := NewOutput(cmd)
			res, err := app.Sync.StartFreshSync(cmd.Context(), opts, progressFor(cmd, output))
			return reportRun(output, res, err)
		},
	}

	cmd.Flags().Int("days", app.Config.SyncRangeDays, "Days of history to sync (0 = all time)")
	cmd.Flags().Bool("all-time", false, "Sync the full account history")
	cmd.Flags().Bool("force", false, "Replace stored trades of the window")
	return cmd
}

func newResumeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume an interrupted sync",
		Long:  "Continue the stored checkpoint, fetching only the symbols that were not processed yet.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			res, err := app.Sync.Resume(cmd.Context(), progressFor(cmd, output))
			if errors.Is(err, ports.ErrNoCheckpoint) {
				output.Printf("No checkpoint to resume. Run 'tradesync sync' to start a fresh sync.\n")
				return nil
			}
			return reportRun(output, res, err)
		},
	}
}

func newDiscardCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "discard",
		Short: "Discard the stored checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Sync.DiscardCheckpoint(cmd.Context()); err != nil {
				return err
			}
			NewOutput(cmd).Printf("Checkpoint discarded.\n")
			return nil
		},
	}
}

func progressFor(cmd *cobra.Command, output *Output) domain.ProgressFunc {
	if output.IsJSON() {
		return nil
	}
	return output.Progress(cmd.ErrOrStderr())
}

// reportRun prints the result of a run, if any, and passes err through.
func reportRun(output *Output, res *domain.AggregationResult, err error) error {
	if res != nil {
		if output.IsJSON() {
			if jErr := output.JSON(res); jErr != nil {
				return jErr
			}
			return err
		}
		output.Result(res)
		if res.State == domain.StateCheckpointed {
			output.Printf("Progress was checkpointed. Run 'tradesync resume' to continue.\n")
		}
	}
	return err
}
