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

// Package delist folds delisting returns into a persisted return matrix.
package delist

import (
	"fmt"
	"math"
	"time"

	"github.com/ajjensen13/crsppanel/internal/axis"
	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/store"
	"github.com/ajjensen13/crsppanel/internal/table"
)

// NoDelistingDate is the date the source uses for securities that never delisted.
var NoDelistingDate = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

type Event struct {
	Entity int64
	Date   time.Time
	// Return is NaN when the source has no delisting return.
	Return float64
}

// Policy combines the base return of a cell with a delisting return.
type Policy func(base, delisting float64) float64

// Compound returns (1+base)(1+delisting)-1, or base when the delisting return is missing.
func Compound(base, delisting float64) float64 {
	if math.IsNaN(delisting) {
		return base
	}
	return (1+base)*(1+delisting) - 1
}

// Replace returns the delisting return, or base when it is missing.
func Replace(base, delisting float64) float64 {
	if math.IsNaN(delisting) {
		return base
	}
	return delisting
}

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "compound":
		return Compound, nil
	case "replace":
		return Replace, nil
	default:
		return nil, fmt.Errorf("unknown delisting policy %q", s)
	}
}

// EventsFromTable reads permno, dlstdt and dlret from t. Rows with a missing entity or date
// are skipped.
func EventsFromTable(t *table.Table) ([]Event, error) {
	names := []string{"permno", "dlstdt", "dlret"}
	cols := make([]*table.Column, len(names))
	for i, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, &model.StageError{Stage: "delist", Name: t.Name, Rows: t.NumRows(), Err: fmt.Errorf("%w: %q", model.ErrMissingColumn, n)}
		}
		cols[i] = c
	}

	entities, entityOk, err := table.Ints(cols[0])
	if err != nil {
		return nil, err
	}
	dates, dateOk, err := table.Dates(cols[1])
	if err != nil {
		return nil, err
	}
	returns, returnOk, err := table.Floats(cols[2])
	if err != nil {
		return nil, err
	}

	result := make([]Event, 0, len(entities))
	for i := range entities {
		if !entityOk[i] || !dateOk[i] {
			continue
		}
		r := returns[i]
		if !returnOk[i] {
			r = math.NaN()
		}
		result = append(result, Event{Entity: entities[i], Date: dates[i], Return: r})
	}
	return result, nil
}

// Filter keeps events whose entity is on the axis and whose date is on or before the last
// period, dropping the no-delisting sentinel.
func Filter(events []Event, a *axis.Axes) (kept []Event, dropped int) {
	g := a.Granularity()
	last := a.MaxPeriod()
	for _, ev := range events {
		if _, ok := a.EntityIndex(ev.Entity); !ok {
			dropped++
			continue
		}
		if ev.Date.Equal(NoDelistingDate) || g.Period(ev.Date) > last {
			dropped++
			continue
		}
		kept = append(kept, ev)
	}
	return kept, dropped
}

// Adjust returns a copy of base with policy applied to the cell of every event. base is
// not modified.
func Adjust(base *store.Matrix[float64], a *axis.Axes, events []Event, policy Policy) (*store.Matrix[float64], error) {
	rows, cols := a.Shape()
	if base.Rows != rows || base.Cols != cols {
		return nil, &model.StageError{Stage: "delist", Name: "ret_x_dl", Rows: len(events), Err: fmt.Errorf("%w: matrix is %d x %d, axes are %d x %d", model.ErrAxisMismatch, base.Rows, base.Cols, rows, cols)}
	}

	g := a.Granularity()
	result := base.Clone()
	for _, ev := range events {
		i, ok := a.EntityIndex(ev.Entity)
		if !ok {
			return nil, &model.StageError{Stage: "delist", Name: "ret_x_dl", Rows: len(events), Err: fmt.Errorf("%w: entity %d", model.ErrAxisMismatch, ev.Entity)}
		}
		period := g.Period(ev.Date)
		j, ok := a.PeriodIndex(period)
		if !ok {
			return nil, &model.StageError{Stage: "delist", Name: "ret_x_dl", Rows: len(events), Err: fmt.Errorf("%w: entity %d has no column for period %d", model.ErrAxisMismatch, ev.Entity, period)}
		}
		result.Set(i, j, policy(result.At(i, j), ev.Return))
	}
	return result, nil
}
