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
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajjensen13/crsppanel/internal/axis"
	"github.com/ajjensen13/crsppanel/internal/extract"
	"github.com/ajjensen13/crsppanel/internal/load"
	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/panel"
	"github.com/ajjensen13/crsppanel/internal/pivot"
)

var panelFlags struct {
	start       string
	end         string
	domComEq    bool
	granularity string
	vars        []string
	workers     int
	source      string
}

type panelRun struct {
	Directory   string   `json:"directory"`
	SampleStart string   `json:"sample_start"`
	SampleEnd   string   `json:"sample_end"`
	DomComEq    bool     `json:"dom_com_eq"`
	Granularity string   `json:"granularity"`
	Variables   []string `json:"variables"`
	Workers     int      `json:"workers"`
	Source      string   `json:"source"`
}

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Assemble the monthly panel and write one permno by period matrix per variable",
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		cfg, err := panelSettings(cmd)
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("failed to load configuration: %w", err)))
		}
		start, end, err := sampleRange(cfg)
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

		run := panelRun{
			Directory:   cfg.Directory,
			SampleStart: start.Format(dateLayout),
			SampleEnd:   end.Format(dateLayout),
			DomComEq:    *cfg.DomComEq,
			Granularity: g.String(),
			Variables:   cfg.Variables,
			Workers:     cfg.Workers,
			Source:      cfg.Source,
		}
		id, err := ledger.Start(ctx, "panel", run)
		if err != nil {
			panic(lg.ErrorErr(err))
		}
		lg.Defaultf("started panel run %d (%s to %s)", id, run.SampleStart, run.SampleEnd)

		params := panel.NewParams(start, end, *cfg.DomComEq)
		rows, outputs, err := buildPanel(ctx, lg, src, load.Dir(cfg.Directory), params, g, cfg.Variables, cfg.Workers)
		if len(outputs) > 0 {
			if rerr := ledger.RecordOutputs(ctx, id, outputs); rerr != nil {
				lg.Warningf("failed to record outputs of run %d: %v", id, rerr)
			}
		}
		if ferr := ledger.Finish(ctx, id, rows, err); ferr != nil {
			lg.Warningf("failed to finish run %d: %v", id, ferr)
		}
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("panel run %d failed: %w", id, err)))
		}

		skipped := 0
		for _, o := range outputs {
			if o.Skipped() {
				skipped++
			}
		}
		lg.Defaultf("panel run %d wrote %d variables (%d skipped) from %d rows to %s", id, len(outputs)-skipped, skipped, rows, load.Dir(cfg.Directory))
	},
}

func panelSettings(cmd *cobra.Command) (*appConfig, error) {
	cfg, err := settings(cmd)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("start") {
		cfg.SampleStart = panelFlags.start
	}
	if flags.Changed("end") {
		cfg.SampleEnd = panelFlags.end
	}
	if flags.Changed("dom-com-eq") {
		cfg.DomComEq = &panelFlags.domComEq
	}
	if flags.Changed("granularity") {
		cfg.Granularity = panelFlags.granularity
	}
	if flags.Changed("vars") {
		cfg.Variables = panelFlags.vars
	}
	if flags.Changed("workers") {
		cfg.Workers = panelFlags.workers
	}
	if flags.Changed("source") {
		cfg.Source = panelFlags.source
	}
	return cfg, nil
}

// buildPanel runs fetch, assemble, axes, pivot and save. It returns the number of panel rows
// and the per-variable outputs.
func buildPanel(ctx context.Context, lg gke.Logger, src extract.Source, dir string, params panel.Params, g axis.Granularity, vars []string, workers int) (int, []load.Output, error) {
	obs, err := src.Fetch(ctx, model.MonthlyStockFile)
	if err != nil {
		return 0, nil, err
	}
	lg.Defaultf("fetched %d observations from %s", obs.NumRows(), model.MonthlyStockFile)

	mem, err := src.Fetch(ctx, model.ExchangeDates)
	if err != nil {
		return 0, nil, err
	}
	lg.Defaultf("fetched %d membership records from %s", mem.NumRows(), model.ExchangeDates)

	p, rep, err := panel.Assemble(obs, mem, params)
	lg.Info(gke.NewMsgData(fmt.Sprintf("assembled panel: %d of %d observations kept (%d unmatched, %d outside sample, %d filtered by category)",
		rep.Rows, rep.Observations, rep.Unmatched, rep.OutsideSample, rep.CategoryFiltered), rep))
	if err != nil {
		return 0, nil, err
	}

	renamed, err := p.Rename(panel.DefaultRenames)
	if err != nil {
		return p.Len(), nil, err
	}
	p = renamed

	a, err := axis.Extract(p, g)
	if err != nil {
		return p.Len(), nil, err
	}
	if err := load.SaveAxes(dir, a); err != nil {
		return p.Len(), nil, err
	}
	rows, cols := a.Shape()
	lg.Defaultf("froze axes: %d entities by %d %s periods", rows, cols, g)

	x, err := pivot.NewIndex(p, a)
	if err != nil {
		return p.Len(), nil, err
	}
	if d := x.Duplicates(); d > 0 {
		lg.Warningf("%d rows share an (entity, period) cell with an earlier row; the last row wins", d)
	}

	link, err := pivot.Link(x, a)
	if err != nil {
		return p.Len(), nil, err
	}
	if err := load.SaveLink(dir, link); err != nil {
		return p.Len(), nil, err
	}

	lg.Defaultf("pivoting %d variables: %s", len(vars), strings.Join(vars, ", "))
	outputs, err := load.Variables(ctx, lg, dir, x, p.Table, vars, workers)
	if err != nil {
		return p.Len(), nil, err
	}
	return p.Len(), outputs, nil
}

func init() {
	flags := panelCmd.Flags()
	flags.StringVar(&panelFlags.start, "start", "", "first date of the sample, inclusive (YYYY-MM-DD)")
	flags.StringVar(&panelFlags.end, "end", "", "last date of the sample, inclusive (YYYY-MM-DD, default today)")
	flags.BoolVar(&panelFlags.domComEq, "dom-com-eq", true, "keep only domestic common equity (share codes 10 and 11)")
	flags.StringVar(&panelFlags.granularity, "granularity", "month", "period granularity: month or day")
	flags.StringSliceVar(&panelFlags.vars, "vars", nil, "variables to pivot (default: the standard CRSP monthly set)")
	flags.IntVar(&panelFlags.workers, "workers", 0, "parallel pivot workers (default GOMAXPROCS)")
	flags.StringVar(&panelFlags.source, "source", sourceRemote, "table source: remote or parquet")
	rootCmd.AddCommand(panelCmd)
}
