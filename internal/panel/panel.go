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

// Package panel joins observations to point-in-time membership windows and applies the
// sample and category filters.
package panel

import (
	"fmt"
	"sort"
	"time"

	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/table"
)

// DomesticCommonEquity is the share code allow-list for domestic common stock.
var DomesticCommonEquity = []int64{10, 11}

// DefaultRenames marks returns as lacking the delisting adjustment and volume as lacking the
// NASDAQ adjustment.
var DefaultRenames = map[string]string{
	"ret": "ret_x_dl",
	"vol": "vol_x_adj",
}

// DefaultVariables is the set of variables pivoted when none are requested.
var DefaultVariables = []string{
	"shrcd", "exchcd", "siccd", "prc", "bid", "ask", "bidlo", "askhi",
	"vol_x_adj", "ret_x_dl", "shrout", "cfacpr", "cfacshr", "spread", "retx",
}

type Params struct {
	SampleStart time.Time
	SampleEnd   time.Time
	// Categories restricts rows to these category codes. Empty disables the filter.
	Categories []int64

	EntityColumn   string
	DateColumn     string
	StartColumn    string
	EndColumn      string
	CategoryColumn string
}

func NewParams(start, end time.Time, domComEq bool) Params {
	p := Params{
		SampleStart:    start,
		SampleEnd:      end,
		EntityColumn:   "permno",
		DateColumn:     "date",
		StartColumn:    "namedt",
		EndColumn:      "nameendt",
		CategoryColumn: "shrcd",
	}
	if domComEq {
		p.Categories = DomesticCommonEquity
	}
	return p
}

// Report counts the rows seen and dropped by each step of Assemble.
type Report struct {
	Observations     int
	Memberships      int
	Unmatched        int
	OutsideSample    int
	CategoryFiltered int
	Rows             int
}

// Panel is the assembled long table. Entities and Dates mirror the key columns row by row.
type Panel struct {
	Table    *table.Table
	Entities []int64
	Dates    []time.Time
}

func (p *Panel) Len() int {
	return len(p.Entities)
}

// Rename returns a panel whose table has renamed columns. The key slices are shared.
func (p *Panel) Rename(renames map[string]string) (*Panel, error) {
	t, err := p.Table.Rename(renames)
	if err != nil {
		return nil, err
	}
	return &Panel{Table: t, Entities: p.Entities, Dates: p.Dates}, nil
}

type window struct {
	start, end time.Time
	row        int
}

// Assemble joins observations to memberships on entity where start < date < end, then keeps
// rows with SampleStart <= date <= SampleEnd and, if configured, an allowed category.
// When windows of one entity overlap, the latest-starting window containing the date wins.
func Assemble(observations, memberships *table.Table, p Params) (*Panel, Report, error) {
	rep := Report{Observations: observations.NumRows(), Memberships: memberships.NumRows()}

	obsEntities, obsEntityOk, err := intColumn(observations, p.EntityColumn)
	if err != nil {
		return nil, rep, err
	}
	obsDates, obsDateOk, err := dateColumn(observations, p.DateColumn)
	if err != nil {
		return nil, rep, err
	}
	windows, err := indexWindows(memberships, p)
	if err != nil {
		return nil, rep, err
	}

	obsRows := make([]int, 0, observations.NumRows())
	memRows := make([]int, 0, observations.NumRows())
	for i := range obsEntities {
		if !obsEntityOk[i] || !obsDateOk[i] {
			rep.Unmatched++
			continue
		}
		w, ok := containing(windows[obsEntities[i]], obsDates[i])
		if !ok {
			rep.Unmatched++
			continue
		}
		obsRows = append(obsRows, i)
		memRows = append(memRows, w.row)
	}

	matched := len(obsRows)
	k := 0
	for n := range obsRows {
		d := obsDates[obsRows[n]]
		if d.Before(p.SampleStart) || d.After(p.SampleEnd) {
			rep.OutsideSample++
			continue
		}
		obsRows[k], memRows[k] = obsRows[n], memRows[n]
		k++
	}
	obsRows, memRows = obsRows[:k], memRows[:k]

	inSample := len(obsRows)
	if len(p.Categories) > 0 {
		obsRows, memRows, err = filterCategories(observations, memberships, p, obsRows, memRows)
		if err != nil {
			return nil, rep, err
		}
		rep.CategoryFiltered = inSample - len(obsRows)
	}

	rep.Rows = len(obsRows)
	if rep.Rows == 0 {
		before := inSample
		if len(p.Categories) == 0 {
			before = matched
		}
		return nil, rep, &model.StageError{Stage: "assemble", Name: observations.Name, Rows: before, Err: model.ErrEmptyResult}
	}

	joined, err := join(observations, memberships, p.EntityColumn, obsRows, memRows)
	if err != nil {
		return nil, rep, &model.StageError{Stage: "assemble", Name: observations.Name, Rows: rep.Rows, Err: err}
	}

	result := &Panel{
		Table:    joined,
		Entities: make([]int64, len(obsRows)),
		Dates:    make([]time.Time, len(obsRows)),
	}
	for n, i := range obsRows {
		result.Entities[n] = obsEntities[i]
		result.Dates[n] = obsDates[i]
	}

	return result, rep, nil
}

func indexWindows(memberships *table.Table, p Params) (map[int64][]window, error) {
	entities, entityOk, err := intColumn(memberships, p.EntityColumn)
	if err != nil {
		return nil, err
	}
	starts, startOk, err := dateColumn(memberships, p.StartColumn)
	if err != nil {
		return nil, err
	}
	ends, endOk, err := dateColumn(memberships, p.EndColumn)
	if err != nil {
		return nil, err
	}

	result := make(map[int64][]window)
	for i, e := range entities {
		if !entityOk[i] || !startOk[i] || !endOk[i] {
			continue
		}
		result[e] = append(result[e], window{start: starts[i], end: ends[i], row: i})
	}
	for _, ws := range result {
		sort.SliceStable(ws, func(a, b int) bool { return ws[a].start.Before(ws[b].start) })
	}
	return result, nil
}

// containing returns the latest-starting window with start < d < end.
func containing(ws []window, d time.Time) (window, bool) {
	k := sort.Search(len(ws), func(j int) bool { return !ws[j].start.Before(d) })
	for k--; k >= 0; k-- {
		if d.Before(ws[k].end) {
			return ws[k], true
		}
	}
	return window{}, false
}

func filterCategories(observations, memberships *table.Table, p Params, obsRows, memRows []int) ([]int, []int, error) {
	src, rows := memberships, memRows
	if _, ok := memberships.Column(p.CategoryColumn); !ok {
		src, rows = observations, obsRows
	}
	codes, codeOk, err := intColumn(src, p.CategoryColumn)
	if err != nil {
		return nil, nil, err
	}

	allowed := make(map[int64]bool, len(p.Categories))
	for _, c := range p.Categories {
		allowed[c] = true
	}

	k := 0
	for n, r := range rows {
		if !codeOk[r] || !allowed[codes[r]] {
			continue
		}
		obsRows[k], memRows[k] = obsRows[n], memRows[n]
		k++
	}
	return obsRows[:k], memRows[:k], nil
}

func join(observations, memberships *table.Table, key string, obsRows, memRows []int) (*table.Table, error) {
	left := observations.Take(obsRows)
	right := memberships.Take(memRows)

	cols := left.Columns()
	for _, c := range right.Columns() {
		if c.Name == key {
			continue
		}
		if _, clash := left.Column(c.Name); clash {
			c = c.Renamed(c.Name + "_right")
		}
		cols = append(cols, c)
	}
	return table.NewTable(observations.Name, cols...)
}

func intColumn(t *table.Table, name string) ([]int64, []bool, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, nil, &model.StageError{Stage: "assemble", Name: t.Name, Rows: t.NumRows(), Err: fmt.Errorf("%w: %q", model.ErrMissingColumn, name)}
	}
	values, valid, err := table.Ints(c)
	if err != nil {
		return nil, nil, &model.StageError{Stage: "assemble", Name: t.Name, Rows: t.NumRows(), Err: err}
	}
	return values, valid, nil
}

func dateColumn(t *table.Table, name string) ([]time.Time, []bool, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, nil, &model.StageError{Stage: "assemble", Name: t.Name, Rows: t.NumRows(), Err: fmt.Errorf("%w: %q", model.ErrMissingColumn, name)}
	}
	values, valid, err := table.Dates(c)
	if err != nil {
		return nil, nil, &model.StageError{Stage: "assemble", Name: t.Name, Rows: t.NumRows(), Err: err}
	}
	return values, valid, nil
}
