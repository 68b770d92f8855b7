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

// Package pivot reshapes panel columns into dense entity by period matrices aligned to the
// frozen axes.
package pivot

import (
	"fmt"
	"math"
	"sort"

	"github.com/ajjensen13/crsppanel/internal/axis"
	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/panel"
	"github.com/ajjensen13/crsppanel/internal/store"
	"github.com/ajjensen13/crsppanel/internal/table"
)

// Index maps every panel row to its flat matrix cell. It is read-only once built and may be
// shared between goroutines.
type Index struct {
	rows, cols int
	cells      []int
	duplicates int
}

// NewIndex resolves each row of p against a. Every row must land on the axes.
func NewIndex(p *panel.Panel, a *axis.Axes) (*Index, error) {
	rows, cols := a.Shape()
	x := &Index{rows: rows, cols: cols, cells: make([]int, p.Len())}

	g := a.Granularity()
	seen := make(map[int]struct{}, p.Len())
	for r, e := range p.Entities {
		i, ok := a.EntityIndex(e)
		if !ok {
			return nil, &model.StageError{Stage: "pivot", Name: p.Table.Name, Rows: p.Len(), Err: fmt.Errorf("%w: entity %d", model.ErrAxisMismatch, e)}
		}
		period := g.Period(p.Dates[r])
		j, ok := a.PeriodIndex(period)
		if !ok {
			return nil, &model.StageError{Stage: "pivot", Name: p.Table.Name, Rows: p.Len(), Err: fmt.Errorf("%w: period %d", model.ErrAxisMismatch, period)}
		}

		cell := i*cols + j
		if _, dup := seen[cell]; dup {
			x.duplicates++
		}
		seen[cell] = struct{}{}
		x.cells[r] = cell
	}
	return x, nil
}

// Duplicates returns the number of rows that overwrite an earlier row's cell.
func (x *Index) Duplicates() int { return x.duplicates }

func (x *Index) Len() int { return len(x.cells) }

// Variable pivots column name of t, whose rows must correspond to the indexed panel.
// The matrix has the column's element type. Cells without an observation and null values
// are zero. When rows collide on a cell the last row wins.
func Variable(x *Index, t *table.Table, name string) (store.Array, table.Type, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, table.Unknown, &model.StageError{Stage: "pivot", Name: name, Rows: t.NumRows(), Err: model.ErrMissingColumn}
	}
	if c.Len() != x.Len() {
		return nil, c.Type, &model.StageError{Stage: "pivot", Name: name, Rows: c.Len(), Err: fmt.Errorf("%w: column has %d rows, index has %d", model.ErrAxisMismatch, c.Len(), x.Len())}
	}

	switch c.Type {
	case table.Int16:
		return fill(x, c, table.Values[int16](c)), c.Type, nil
	case table.Int32:
		return fill(x, c, table.Values[int32](c)), c.Type, nil
	case table.Int64:
		return fill(x, c, table.Values[int64](c)), c.Type, nil
	case table.Float32:
		return fill(x, c, table.Values[float32](c)), c.Type, nil
	case table.Float64:
		return fill(x, c, table.Values[float64](c)), c.Type, nil
	default:
		return nil, c.Type, &model.StageError{Stage: "pivot", Name: name, Rows: c.Len(), Err: fmt.Errorf("%w: %s", model.ErrUnsupportedType, c.Type)}
	}
}

func fill[T store.Number](x *Index, c *table.Column, values []T) *store.Matrix[T] {
	m := store.NewMatrix[T](x.rows, x.cols)
	for r, cell := range x.cells {
		if c.Valid(r) {
			m.Data[cell] = values[r]
		} else {
			m.Data[cell] = 0
		}
	}
	return m
}

// Link returns the populated (entity, period) pairs as an (n, 2) matrix, sorted by entity
// and then period.
func Link(x *Index, a *axis.Axes) (*store.Matrix[int32], error) {
	cells := make([]int, 0, len(x.cells))
	seen := make(map[int]struct{}, len(x.cells))
	for _, cell := range x.cells {
		if _, ok := seen[cell]; ok {
			continue
		}
		seen[cell] = struct{}{}
		cells = append(cells, cell)
	}
	sort.Ints(cells)

	entities, periods := a.Entities(), a.Periods()
	m := store.NewMatrix[int32](len(cells), 2)
	for n, cell := range cells {
		e := entities[cell/x.cols]
		if e < math.MinInt32 || e > math.MaxInt32 {
			return nil, fmt.Errorf("entity %d does not fit the link table", e)
		}
		m.Set(n, 0, int32(e))
		m.Set(n, 1, periods[cell%x.cols])
	}
	return m, nil
}
