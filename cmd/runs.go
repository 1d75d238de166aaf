package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/menu-ingredients/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect extraction run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent extraction runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		output, _ := cmd.Flags().GetString("output")
		if output != outputTable {
			return writeOutput(os.Stdout, output, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one extraction run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid run id %q", args[0])
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return eris.Wrapf(err, "runs show %d", runID)
		}

		output, _ := cmd.Flags().GetString("output")
		return writeOutput(os.Stdout, output, run)
	},
}

func formatRunsList(w io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tMODEL\tPROMPT\tPIPELINE\tITEMS\tOBSERVATIONS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\n",
			r.RunID,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.ModelName,
			optString(r.PromptVersion),
			optString(r.PipelineVersion),
			r.ItemCount,
			r.ObservationCount,
		)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list")
	runsListCmd.Flags().StringP("output", "o", outputTable, "table, json or yaml")
	runsShowCmd.Flags().StringP("output", "o", outputJSON, "json or yaml")

	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
