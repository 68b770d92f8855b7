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
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajjensen13/crsppanel/internal/mirror"
	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/table"
)

// monthlyMirror names the file the monthly download is mirrored to.
var monthlyMirror = model.TableID{Schema: "crsp", Name: "monthly"}

var mirrorFlags struct {
	table   string
	monthly bool
	start   string
	end     string
	format  string
	out     string
}

type mirrorRun struct {
	Table  string `json:"table"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
	Format string `json:"format"`
	Path   string `json:"path"`
}

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Copy a WRDS table, or the monthly common stock download, to a local parquet or csv file",
	Long: `mirror copies crsp tables to <dir>/data/<schema>/<schema>_<table>.<format> so that
later panel and derive runs can use --source parquet without a network connection.`,
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		cfg, err := settings(cmd)
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("failed to load configuration: %w", err)))
		}
		format, err := mirror.ParseFormat(mirrorFlags.format)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		if (mirrorFlags.table == "") == !mirrorFlags.monthly {
			panic(lg.ErrorErr(errors.New("exactly one of --table or --monthly is required")))
		}

		ctx, cancel := commandContext(lg)
		defer cancel()

		ledger, closeLedger, err := openLedger(ctx, lg, cfg)
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("failed to open run ledger: %w", err)))
		}
		defer closeLedger()

		remote, closeRemote, err := openRemote(ctx, lg, cfg)
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("failed to connect to WRDS: %w", err)))
		}
		defer closeRemote()

		run := mirrorRun{Format: string(format)}
		var fetch func(context.Context) (*table.Table, error)
		if mirrorFlags.monthly {
			if cmd.Flags().Changed("start") {
				cfg.SampleStart = mirrorFlags.start
			}
			if cmd.Flags().Changed("end") {
				cfg.SampleEnd = mirrorFlags.end
			}
			start, end, err := sampleRange(cfg)
			if err != nil {
				panic(lg.ErrorErr(err))
			}
			run.Table, run.Start, run.End = monthlyMirror.String(), start.Format(dateLayout), end.Format(dateLayout)
			fetch = func(ctx context.Context) (*table.Table, error) {
				return fetchMonthly(ctx, remote, start, end)
			}
		} else {
			id, err := model.ParseTableID(mirrorFlags.table)
			if err != nil {
				panic(lg.ErrorErr(err))
			}
			run.Table = id.String()
			fetch = func(ctx context.Context) (*table.Table, error) {
				return remote.Fetch(ctx, id)
			}
		}

		id, _ := model.ParseTableID(run.Table)
		run.Path = mirrorFlags.out
		if run.Path == "" {
			run.Path = mirror.Path(cfg.Directory, id, format)
		}

		runID, err := ledger.Start(ctx, "mirror", run)
		if err != nil {
			panic(lg.ErrorErr(err))
		}

		rows := 0
		t, err := fetch(ctx)
		if err == nil {
			rows = t.NumRows()
			err = mirror.Write(run.Path, t, format)
		}
		if ferr := ledger.Finish(ctx, runID, rows, err); ferr != nil {
			lg.Warningf("failed to finish run %d: %v", runID, ferr)
		}
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("mirror run %d failed: %w", runID, err)))
		}
		lg.Defaultf("mirrored %d rows of %s to %s", rows, run.Table, run.Path)
	},
}

func init() {
	flags := mirrorCmd.Flags()
	flags.StringVar(&mirrorFlags.table, "table", "", "table to mirror as schema.table, e.g. crsp.msf")
	flags.BoolVar(&mirrorFlags.monthly, "monthly", false, "mirror the monthly US common stock download with market cap and industry")
	flags.StringVar(&mirrorFlags.start, "start", "", "first month of the monthly download (YYYY-MM-DD)")
	flags.StringVar(&mirrorFlags.end, "end", "", "last month of the monthly download (YYYY-MM-DD, default today)")
	flags.StringVar(&mirrorFlags.format, "format", string(mirror.FormatParquet), "output format: parquet or csv")
	flags.StringVar(&mirrorFlags.out, "out", "", "output path (default <dir>/data/<schema>/<schema>_<table>.<format>)")
	rootCmd.AddCommand(mirrorCmd)
}
