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
	"fmt"
	"github.com/ajjensen13/gke"

	"github.com/spf13/cobra"

	"github.com/ajjensen13/crsppanel/internal/axis"
	"github.com/ajjensen13/crsppanel/internal/delist"
	"github.com/ajjensen13/crsppanel/internal/extract"
	"github.com/ajjensen13/crsppanel/internal/load"
	"github.com/ajjensen13/crsppanel/internal/model"
)

const (
	baseReturn    = "ret_x_dl"
	derivedReturn = "ret"
)

var deriveFlags struct {
	policy      string
	granularity string
	source      string
}

type deriveRun struct {
	Directory   string `json:"directory"`
	Policy      string `json:"policy"`
	Granularity string `json:"granularity"`
	Source      string `json:"source"`
}

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Adjust monthly returns for delisting and write ret.json",
	Long: `derive reads ret_x_dl.json and the axes written by the panel command, fetches
delisting events from crsp.msedelist and writes the adjusted return matrix as ret.json.`,
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		cfg, err := settings(cmd)
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("failed to load configuration: %w", err)))
		}
		if cmd.Flags().Changed("source") {
			cfg.Source = deriveFlags.source
		}
		if cmd.Flags().Changed("granularity") {
			cfg.Granularity = deriveFlags.granularity
		}
		policy, err := delist.ParsePolicy(deriveFlags.policy)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		g, err := axis.ParseGranularity(cfg.Granularity)
		if err != nil {
			panic(lg.ErrorErr(err))
		}

		ctx, cancel := commandContext(lg)
		defer cancel()

		ledger, closeLedger, err := openLedger(ctx, lg, cfg)
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("failed to open run ledger: %w", err)))
		}
		defer closeLedger()

		src, closeSource, err := openSource(ctx, lg, cfg)
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("failed to open %s source: %w", cfg.Source, err)))
		}
		defer closeSource()

		id, err := ledger.Start(ctx, "derive", deriveRun{Directory: cfg.Directory, Policy: deriveFlags.policy, Granularity: g.String(), Source: cfg.Source})
		if err != nil {
			panic(lg.ErrorErr(err))
		}

		events, out, err := deriveReturns(ctx, lg, src, load.Dir(cfg.Directory), g, policy)
		if err == nil {
			if rerr := ledger.RecordOutputs(ctx, id, []load.Output{out}); rerr != nil {
				lg.Warningf("failed to record outputs of run %d: %v", id, rerr)
			}
		}
		if ferr := ledger.Finish(ctx, id, events, err); ferr != nil {
			lg.Warningf("failed to finish run %d: %v", id, ferr)
		}
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("derive run %d failed: %w", id, err)))
		}
		lg.Defaultf("derive run %d applied %d delisting events to %s", id, events, out.Path)
	},
}

// deriveReturns applies policy to every delisting event on the saved axes. It returns the
// number of events applied.
func deriveReturns(ctx context.Context, lg gke.Logger, src extract.Source, dir string, g axis.Granularity, policy delist.Policy) (int, load.Output, error) {
	a, err := load.ReadAxes(dir, g)
	if err != nil {
		return 0, load.Output{}, fmt.Errorf("failed to read axes: %w", err)
	}
	base, err := load.ReadVariable(dir, baseReturn)
	if err != nil {
		return 0, load.Output{}, fmt.Errorf("failed to read %s: %w", baseReturn, err)
	}

	t, err := src.Fetch(ctx, model.DelistingEvents, "permno", "dlstdt", "dlret")
	if err != nil {
		return 0, load.Output{}, err
	}
	events, err := delist.EventsFromTable(t)
	if err != nil {
		return 0, load.Output{}, err
	}
	kept, dropped := delist.Filter(events, a)
	lg.Defaultf("kept %d of %d delisting events (%d off the axes or after the last period)", len(kept), len(events), dropped)

	adjusted, err := delist.Adjust(base, a, kept, policy)
	if err != nil {
		return len(kept), load.Output{}, err
	}
	out, err := load.SaveVariable(dir, derivedReturn, adjusted)
	if err != nil {
		return len(kept), load.Output{}, err
	}
	return len(kept), out, nil
}

func init() {
	flags := deriveCmd.Flags()
	flags.StringVar(&deriveFlags.policy, "policy", "compound", "how delisting returns combine with the base return: compound or replace")
	flags.StringVar(&deriveFlags.granularity, "granularity", "month", "period granularity the axes were written with: month or day")
	flags.StringVar(&deriveFlags.source, "source", sourceRemote, "table source: remote or parquet")
	rootCmd.AddCommand(deriveCmd)
}
