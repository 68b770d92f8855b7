/*
Copyright © 2020 A. Jensen <jensen.aaro@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajjensen13/crsppanel/internal/runlog"
)

var historyFlags struct {
	limit   int
	outputs bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the run ledger",
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		cfg, err := settings(cmd)
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("failed to load configuration: %w", err)))
		}

		ctx, cancel := commandContext(lg)
		defer cancel()

		ledger, closeLedger, err := openLedger(ctx, lg, cfg)
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("failed to open run ledger: %w", err)))
		}
		defer closeLedger()

		runs, err := ledger.Runs(ctx, historyFlags.limit)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		if err := printRuns(cmd.OutOrStdout(), runs, historyFlags.outputs); err != nil {
			panic(lg.ErrorErr(err))
		}
	},
}

func printRuns(w io.Writer, runs []runlog.Run, outputs bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tROWS\tSTARTED\tDURATION\tERROR")
	for _, r := range runs {
		duration := "-"
		if !r.Finished.IsZero() {
			duration = r.Finished.Sub(r.Started).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n", r.ID, r.Kind, r.Status, r.Rows, r.Started.Format(time.RFC3339), duration, r.Error)
		if !outputs {
			continue
		}
		for _, o := range r.Outputs {
			status := fmt.Sprintf("%s (%d, %d)", o.Type, o.Rows, o.Cols)
			if o.Skipped != "" {
				status = "skipped: " + o.Skipped
			}
			fmt.Fprintf(tw, "\t  %s\t%s\t\t\t\t%s\n", o.Variable, status, o.Path)
		}
	}
	return tw.Flush()
}

func init() {
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "number of runs to list")
	historyCmd.Flags().BoolVar(&historyFlags.outputs, "outputs", false, "also list the files each run wrote")
	rootCmd.AddCommand(historyCmd)
}
