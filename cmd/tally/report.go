package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/tally/internal/config"
	"github.com/hyperengineering/tally/internal/ledger"
	"github.com/hyperengineering/tally/internal/report"
)

var (
	reportDBOverride string
	reportJSONOutput bool
	reportLimit      int
)

func init() {
	for _, cmd := range []*cobra.Command{topCmd, weekCmd, verifyCmd} {
		cmd.Flags().StringVar(&reportDBOverride, "db", "",
			"Database path (overrides config and TALLY_DB_PATH)")
		cmd.Flags().BoolVar(&reportJSONOutput, "json", false,
			"Output in JSON format")
	}
	topCmd.Flags().IntVar(&reportLimit, "limit", 0,
		"Number of rows (defaults to the configured top_limit)")
}

// openReportStore opens the ledger read side for offline reporting. No
// bot token is required for these commands.
func openReportStore() (*ledger.SQLiteStore, *config.Config, error) {
	os.Setenv("TALLY_OFFLINE", "true")
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	dbPath := reportDBOverride
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}

	store, err := ledger.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Print the all-time leaderboard",
	Args:  cobra.NoArgs,
	RunE:  runTop,
}

func runTop(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, cfg, err := openReportStore()
	if err != nil {
		return err
	}
	defer store.Close()

	limit := reportLimit
	if limit <= 0 {
		limit = cfg.Report.TopLimit
	}
	entries, err := store.TopBalances(ctx, limit)
	if err != nil {
		return fmt.Errorf("top balances: %w", err)
	}

	if reportJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"entries": entries,
			"total":   len(entries),
		})
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No scores yet.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "RANK\tSUBJECT\tBALANCE")
	for i, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\n", i+1, subjectLabel(e.Label, e.SubjectID), e.Balance)
	}
	w.Flush()

	return nil
}

var weekCmd = &cobra.Command{
	Use:   "week",
	Short: "Print this week's leaderboard",
	Args:  cobra.NoArgs,
	RunE:  runWeek,
}

func runWeek(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, cfg, err := openReportStore()
	if err != nil {
		return err
	}
	defer store.Close()

	loc, err := cfg.Report.Location()
	if err != nil {
		return err
	}
	engine := report.NewEngine(store, clockwork.NewRealClock(), loc, cfg.Report.TopLimit)

	rep, err := engine.Weekly(ctx)
	if err != nil {
		return fmt.Errorf("weekly report: %w", err)
	}

	if reportJSONOutput {
		return printJSON(cmd.OutOrStdout(), rep)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Week of %s\n", rep.WeekStart.Format("02 Jan 2006"))
	if len(rep.Entries) == 0 {
		fmt.Fprintln(out, "No scores yet.")
		return nil
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "RANK\tSUBJECT\tTOTAL\tBREAKDOWN")
	for i, e := range rep.Entries {
		breakdown := "-"
		if len(e.Breakdown) > 0 {
			parts := make([]string, len(e.Breakdown))
			for j, kt := range e.Breakdown {
				parts[j] = fmt.Sprintf("%s:%d", kt.Kind, kt.Total)
			}
			sort.Strings(parts)
			breakdown = strings.Join(parts, " ")
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i+1, subjectLabel(e.Label, e.SubjectID), e.Total, breakdown)
	}
	w.Flush()

	return nil
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Replay all facts and check cached balances",
	Long: "Recomputes every balance from the fact log and reports any " +
		"divergence from the cached projection. A clean ledger prints nothing " +
		"and exits zero.",
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, _, err := openReportStore()
	if err != nil {
		return err
	}
	defer store.Close()

	divergences, err := store.VerifyBalances(ctx)
	if err != nil {
		return fmt.Errorf("verify balances: %w", err)
	}

	if reportJSONOutput {
		if divergences == nil {
			divergences = []ledger.Divergence{}
		}
		if err := printJSON(cmd.OutOrStdout(), map[string]any{
			"divergences": divergences,
			"clean":       len(divergences) == 0,
		}); err != nil {
			return err
		}
	} else if len(divergences) > 0 {
		w := newTabWriter(cmd.OutOrStdout())
		fmt.Fprintln(w, "SUBJECT\tCACHED\tREPLAYED")
		for _, d := range divergences {
			fmt.Fprintf(w, "%d\t%d\t%d\n", d.SubjectID, d.Cached, d.Replayed)
		}
		w.Flush()
	}

	if len(divergences) > 0 {
		return fmt.Errorf("%d balance(s) diverge from the fact log", len(divergences))
	}
	return nil
}

func subjectLabel(label string, subjectID int64) string {
	if label != "" {
		return "@" + label
	}
	return fmt.Sprintf("%d", subjectID)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
