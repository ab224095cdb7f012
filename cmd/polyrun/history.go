package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/history"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List, search or show recorded runs",
	Long: `Show the run history kept at POLYRUN_HISTORY (or history_path in the
config file).

  polyrun history                      recent runs
  polyrun history -q ZeroDivisionError full-text search over code and reports
  polyrun history -q 'language:python' field search
  polyrun history <run-id>             one run with its code and report`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runHistory,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list")
	historyCmd.Flags().StringP("query", "q", "", "Search query")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := os.Getenv("POLYRUN_HISTORY")
	if path == "" {
		return errors.New("run history is disabled: set POLYRUN_HISTORY or run `polyrun config --history <path>`")
	}

	ctx := cmd.Context()
	store, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		run, err := store.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}
		printRun(out, run)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	query, _ := cmd.Flags().GetString("query")

	var runs []history.Run
	if query != "" {
		runs, err = store.Search(ctx, query, limit)
	} else {
		runs, err = store.Recent(ctx, limit)
	}
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	printRunTable(out, runs)
	return nil
}

func printRunTable(out io.Writer, runs []history.Run) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tLANGUAGE\tOUTCOME\tEXIT\tDURATION\tFIRST LINE")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			run.Language,
			run.Outcome,
			exitText(run.ExitCode),
			run.Duration.Round(time.Millisecond),
			truncate(firstLine(run.Code), 40),
		)
	}
	tw.Flush()
}

func printRun(out io.Writer, run *history.Run) {
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "When:     %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Language: %s\n", run.Language)
	fmt.Fprintf(out, "Outcome:  %s (exit %s, %s)\n", run.Outcome, exitText(run.ExitCode), run.Duration)
	fmt.Fprintf(out, "\n--- code ---\n%s\n", strings.TrimRight(run.Code, "\n"))
	fmt.Fprintf(out, "\n--- report ---\n%s", run.Report)
}

func exitText(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprint(*code)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
