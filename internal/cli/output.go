package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"cryptoTradeSync/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Output handles formatted output for the CLI.
type Output struct {
	writer   io.Writer
	jsonMode bool
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{writer: cmd.OutOrStdout(), jsonMode: jsonMode}
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as indented JSON.
func (o *Output) JSON(data interface{}) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(o.writer, string(b))
	return err
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Table returns a tabwriter over the output. Callers must Flush it.
func (o *Output) Table() *tabwriter.Writer {
	return tabwriter.NewWriter(o.writer, 0, 0, 2, ' ', 0)
}

// Result prints the summary of a sync run.
func (o *Output) Result(res *domain.AggregationResult) {
	resumed := ""
	if res.Resumed {
		resumed = " (resumed)"
	}
	o.Printf("Run %s: %s%s\n", res.RunID, res.State, resumed)
	o.Printf("Window:          %s to %s\n", formatTime(res.WindowStart), formatTime(res.WindowEnd))
	o.Printf("Symbols:         %d/%d processed, %d fetched this run\n", res.SymbolsProcessed, res.SymbolsTotal, res.SymbolsFetchedNow)
	o.Printf("Lifecycles:      %d (%d complete, %d open, %d flipped), %d orphan fills\n",
		res.LifecyclesTotal, res.CompleteLifecycles, res.IncompleteLifecycles, res.FlippedLifecycles, res.OrphanFills)
	o.Printf("Trades:          %d aggregated, %d admitted, %d rejected, %d persisted\n",
		res.TradesAggregated, res.TradesAdmitted, res.TradesRejected, res.TradesPersisted)
	if res.TradesDeleted > 0 {
		o.Printf("Replaced:        %d previously stored trades\n", res.TradesDeleted)
	}
	if res.Stats.Trades > 0 {
		o.Printf("Net P&L:         %.4f (win rate %.1f%%, fees %.4f)\n", res.Stats.NetPnL, res.Stats.WinRate*100, res.Stats.TotalFees)
	}

	rec := res.Reconciliation
	status := "OK"
	if !rec.Reconciled {
		status = "MISMATCH"
	}
	o.Printf("Reconciliation:  %s, aggregated %.4f vs ledger %.4f (%.2f%%), unmatched open %.4f\n",
		status, rec.AggregatedTotal, rec.MatchedTotal, rec.DifferencePct, rec.UnmatchedOpenPnL)

	if len(res.PartialFailures) > 0 {
		o.Printf("Partial failures:\n")
		for _, f := range res.PartialFailures {
			o.Printf("  [%s] %s during %s: %s\n", f.Scope, f.Key, f.Phase, f.Error)
		}
	}
	if res.Error != "" {
		o.Printf("Error:           %s\n", res.Error)
	}
}

// Progress returns a progress callback printing one line per event.
func (o *Output) Progress(w io.Writer) domain.ProgressFunc {
	return func(p domain.Progress) {
		if p.Total > 0 {
			fmt.Fprintf(w, "[%-15s] %3.0f%% %s\n", p.Phase, p.Percent(), p.Message)
			return
		}
		fmt.Fprintf(w, "[%-15s] %s\n", p.Phase, p.Message)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
