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

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Inspect menu item ingredients",
}

var itemsShowCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Show an item's current ingredients, or every observation with --history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid item id %q", args[0])
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		output, _ := cmd.Flags().GetString("output")
		history, _ := cmd.Flags().GetBool("history")

		if history {
			obs, err := st.ObservationHistory(ctx, itemID)
			if err != nil {
				return eris.Wrapf(err, "items show %d", itemID)
			}
			if output == outputTable {
				formatObservations(os.Stdout, obs)
				return nil
			}
			return writeOutput(os.Stdout, output, obs)
		}

		current, err := st.CurrentIngredients(ctx, itemID)
		if err != nil {
			return eris.Wrapf(err, "items show %d", itemID)
		}
		if output == outputTable {
			formatCurrent(os.Stdout, current)
			return nil
		}
		return writeOutput(os.Stdout, output, current)
	},
}

func formatCurrent(w io.Writer, rows []model.CurrentIngredient) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INGREDIENT\tCANONICAL\tCONFIDENCE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\n", r.DisplayName, r.CanonicalName, r.Confidence)
	}
	tw.Flush() //nolint:errcheck
}

func formatObservations(w io.Writer, rows []model.Observation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tCANONICAL\tCONFIDENCE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.3f\n", r.RunID, r.CreatedAt.Format("2006-01-02 15:04"), r.CanonicalName, r.Confidence)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	itemsShowCmd.Flags().Bool("history", false, "show every observation instead of the current snapshot")
	itemsShowCmd.Flags().StringP("output", "o", outputTable, "table, json or yaml")

	itemsCmd.AddCommand(itemsShowCmd)
	rootCmd.AddCommand(itemsCmd)
}
