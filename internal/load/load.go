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

package load

import (
	"context"
	"fmt"
	"github.com/ajjensen13/gke"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"path/filepath"
	"runtime"

	"github.com/ajjensen13/crsppanel/internal/axis"
	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/pivot"
	"github.com/ajjensen13/crsppanel/internal/store"
	"github.com/ajjensen13/crsppanel/internal/table"
)

const (
	EntityFile = "permno.json"
	PeriodFile = "dates.json"
	LinkFile   = "crsp_link.json"
)

// Dir is where panel outputs are written under the working directory root.
func Dir(root string) string {
	return filepath.Join(root, "data", "crsp")
}

func VariablePath(dir, name string) string {
	return filepath.Join(dir, name+".json")
}

// SaveAxes writes the entity and period axes as (n, 1) arrays.
func SaveAxes(dir string, a *axis.Axes) error {
	entities := a.Entities()
	em := store.NewMatrix[int64](len(entities), 1)
	copy(em.Data, entities)
	if err := store.Save(filepath.Join(dir, EntityFile), em); err != nil {
		return fmt.Errorf("failed to save entity axis: %w", err)
	}

	periods := a.Periods()
	pm := store.NewMatrix[int32](len(periods), 1)
	copy(pm.Data, periods)
	if err := store.Save(filepath.Join(dir, PeriodFile), pm); err != nil {
		return fmt.Errorf("failed to save period axis: %w", err)
	}
	return nil
}

// ReadAxes reads axes saved by SaveAxes.
func ReadAxes(dir string, g axis.Granularity) (*axis.Axes, error) {
	em, err := store.Load[int64](filepath.Join(dir, EntityFile))
	if err != nil {
		return nil, err
	}
	pm, err := store.Load[int32](filepath.Join(dir, PeriodFile))
	if err != nil {
		return nil, err
	}
	if em.Cols != 1 || pm.Cols != 1 {
		return nil, fmt.Errorf("axes in %s must be (n, 1) arrays, got (%d, %d) and (%d, %d)", dir, em.Rows, em.Cols, pm.Rows, pm.Cols)
	}
	return axis.New(em.Data, pm.Data, g)
}

func SaveLink(dir string, link *store.Matrix[int32]) error {
	if err := store.Save(filepath.Join(dir, LinkFile), link); err != nil {
		return fmt.Errorf("failed to save link table: %w", err)
	}
	return nil
}

// ReadVariable reads a pivoted variable as float64 whatever element type it was saved with.
func ReadVariable(dir, name string) (*store.Matrix[float64], error) {
	return store.Load[float64](VariablePath(dir, name))
}

// SaveVariable writes a derived matrix next to the pivoted ones.
func SaveVariable(dir, name string, m *store.Matrix[float64]) (Output, error) {
	out := Output{Variable: name, Path: VariablePath(dir, name), Type: table.Float64, Rows: m.Rows, Cols: m.Cols}
	if err := store.Save(out.Path, m); err != nil {
		return out, fmt.Errorf("failed to save %q: %w", name, err)
	}
	return out, nil
}

// Output describes one variable of a run. Err is set when the variable was skipped.
type Output struct {
	Variable string
	Path     string
	Type     table.Type
	Rows     int
	Cols     int
	Err      error
}

func (o Output) Skipped() bool {
	return o.Err != nil
}

// Variables pivots and saves names from t concurrently, using at most workers goroutines.
// A variable whose column is missing or has no pivot rule is logged and skipped. Any other
// failure cancels the remaining work. Outputs are returned in the order of names.
func Variables(ctx context.Context, lg gke.Logger, dir string, x *pivot.Index, t *table.Table, names []string, workers int) ([]Output, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	outputs := make([]Output, len(names))
	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			out := Output{Variable: name, Path: VariablePath(dir, name)}
			a, typ, err := pivot.Variable(x, t, name)
			out.Type = typ
			if err != nil {
				if model.Skippable(err) {
					lg.Warningf("skipping variable %q: %v", name, err)
					out.Path = ""
					out.Err = err
					outputs[i] = out
					return nil
				}
				return err
			}
			out.Rows, out.Cols = a.Dim()

			if err := gctx.Err(); err != nil {
				return err
			}
			if err := store.Save(out.Path, a); err != nil {
				return &model.StageError{Stage: "save", Name: name, Rows: x.Len(), Err: err}
			}
			lg.Defaultf("saved %s (%d, %d) to %s", name, out.Rows, out.Cols, out.Path)
			outputs[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outputs, nil
}
