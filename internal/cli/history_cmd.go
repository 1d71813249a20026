package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hassrename/hren/internal/history"
	"github.com/hassrename/hren/internal/mappingfile"
	"github.com/hassrename/hren/internal/plan"
	"github.com/hassrename/hren/internal/ui"
)

var (
	historyListLimit  int
	historyExportOut  string
	historyExportUndo bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect previously applied rename runs",
	Long: `Inspect previously applied rename runs.

Every confirmed apply is recorded with its per-entity outcomes. A run can be
exported as a mapping file; with --reverse the mapping undoes the entity ID
renames that succeeded, and can be applied with 'hren rename -i'.`,
}

// openHistoryForRead opens the ledger or reports why it cannot.
func openHistoryForRead() (*history.Store, error) {
	conf := getConfig()
	if !conf.HistoryEnabled() {
		return nil, handleErrorMsg(ErrConfigInvalid, "history is disabled in config", "Run 'hren config set history true'")
	}
	path := conf.HistoryPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, handleErrorMsg(ErrRunNotFound, "no runs recorded yet", "")
	}
	store, err := history.Open(path)
	if err != nil {
		return nil, handleError(ErrDatabaseError, err, "")
	}
	return store, nil
}

func parseRunID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run id %q", arg)
	}
	return id, nil
}

func runStatus(run history.Run) string {
	switch {
	case run.ChannelError != "":
		return "interrupted"
	case run.Failed > 0:
		return "partial"
	default:
		return "ok"
	}
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistoryForRead()
		if store == nil {
			return err
		}
		defer store.Close()

		runs, err := store.Runs(cmd.Context(), historyListLimit)
		if err != nil {
			return handleError(ErrDatabaseError, err, "")
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{"runs": runs}, &Meta{Count: len(runs)})
			return nil
		}
		if len(runs) == 0 {
			fmt.Println(ui.Hint("No runs recorded yet."))
			return nil
		}

		rows := make([][]string, 0, len(runs))
		for _, run := range runs {
			rows = append(rows, []string{
				strconv.FormatInt(run.ID, 10),
				run.StartedAt.Local().Format(time.DateTime),
				run.Host,
				string(run.Source),
				fmt.Sprintf("%d/%d", run.Succeeded, run.Planned),
				runStatus(run),
			})
		}
		fmt.Println(ui.Table([]string{"Run", "Started", "Host", "Source", "Renamed", "Status"}, rows))
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the outcomes of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		store, err := openHistoryForRead()
		if store == nil {
			return err
		}
		defer store.Close()

		run, err := store.Run(cmd.Context(), id)
		if err != nil {
			return handleError(errorCode(err), err, "Run 'hren history list' to see recorded runs")
		}

		if isJSONOutput() {
			outputSuccess(run, &Meta{Count: len(run.Outcomes)})
			return nil
		}

		report := ui.Report{
			RunID:        run.ID,
			Host:         run.Host,
			Source:       run.Source,
			Planned:      run.Planned,
			Outcomes:     run.Outcomes,
			ChannelError: run.ChannelError,
			Duration:     run.FinishedAt.Sub(run.StartedAt),
		}
		rendered, err := ui.RenderMarkdown(report.Markdown(), ui.NewDisplayContext().ReportWidth())
		if err != nil {
			return handleError(ErrInternal, err, "")
		}
		fmt.Print(rendered)
		return nil
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run as a mapping file",
	Long: `Export a run as a mapping file.

Without --reverse the mapping repeats the renames of the run. With --reverse
it maps every successfully renamed entity back to its previous entity ID,
last rename first. Friendly names are not restored.`,
	Example: `  hren history export 12 --reverse -o undo.csv
  hren rename -i undo.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return handleError(ErrInvalidInput, err, "")
		}
		store, err := openHistoryForRead()
		if store == nil {
			return err
		}
		defer store.Close()

		run, err := store.Run(cmd.Context(), id)
		if err != nil {
			return handleError(errorCode(err), err, "Run 'hren history list' to see recorded runs")
		}

		var rows []plan.MappingRow
		if historyExportUndo {
			rows = history.ReverseMapping(run)
		} else {
			for _, o := range run.Outcomes {
				rows = append(rows, plan.MappingRow{Label: o.Label, ID: o.ID, NewID: o.NewID})
			}
		}
		if len(rows) == 0 {
			return handleErrorMsg(ErrEmptyPlan, fmt.Sprintf("run %d has nothing to export", id), "")
		}

		if historyExportOut == "" {
			if isJSONOutput() {
				outputSuccess(map[string]interface{}{"run_id": id, "reverse": historyExportUndo, "rows": rows}, &Meta{Count: len(rows)})
				return nil
			}
			if err := mappingfile.Encode(os.Stdout, mappingfile.FormatCSV, rows); err != nil {
				return handleError(ErrFileWriteError, err, "")
			}
			return nil
		}

		if err := mappingfile.Write(historyExportOut, rows); err != nil {
			return handleError(ErrFileWriteError, err, "")
		}
		if isJSONOutput() {
			outputSuccess(map[string]interface{}{"run_id": id, "reverse": historyExportUndo, "output_file": historyExportOut}, &Meta{Count: len(rows)})
			return nil
		}
		fmt.Println(ui.Successf("Wrote %d %s to %s", len(rows), ui.Pluralize("row", len(rows)), historyExportOut))
		if msg := mappingfile.VolumeWarning(historyExportOut); msg != "" {
			fmt.Println(ui.Warning(msg))
		}
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntVarP(&historyListLimit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	historyExportCmd.Flags().StringVarP(&historyExportOut, "output-file", "o", "", "Write the mapping to a file instead of stdout")
	historyExportCmd.Flags().BoolVar(&historyExportUndo, "reverse", false, "Export the mapping that undoes the run")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)
	rootCmd.AddCommand(historyCmd)
}
