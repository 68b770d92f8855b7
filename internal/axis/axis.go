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

// Package axis derives the canonical entity and period axes shared by every matrix of a run.
package axis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/panel"
)

type Granularity int

const (
	Month Granularity = iota
	Day
)

func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(s) {
	case "", "month", "monthly":
		return Month, nil
	case "day", "daily":
		return Day, nil
	default:
		return Month, fmt.Errorf("unknown granularity %q", s)
	}
}

func (g Granularity) String() string {
	if g == Day {
		return "day"
	}
	return "month"
}

// Period encodes t as YYYYMM or YYYYMMDD.
func (g Granularity) Period(t time.Time) int32 {
	p := int32(t.Year())*100 + int32(t.Month())
	if g == Day {
		p = p*100 + int32(t.Day())
	}
	return p
}

// Axes is immutable once built.
type Axes struct {
	granularity Granularity
	entities    []int64
	periods     []int32
	entityIndex map[int64]int
	periodIndex map[int32]int
}

// New builds axes from strictly ascending entity and period values.
func New(entities []int64, periods []int32, g Granularity) (*Axes, error) {
	for i := 1; i < len(entities); i++ {
		if entities[i] <= entities[i-1] {
			return nil, fmt.Errorf("entity axis is not strictly ascending at position %d", i)
		}
	}
	for i := 1; i < len(periods); i++ {
		if periods[i] <= periods[i-1] {
			return nil, fmt.Errorf("period axis is not strictly ascending at position %d", i)
		}
	}

	a := &Axes{
		granularity: g,
		entities:    append([]int64(nil), entities...),
		periods:     append([]int32(nil), periods...),
		entityIndex: make(map[int64]int, len(entities)),
		periodIndex: make(map[int32]int, len(periods)),
	}
	for i, e := range a.entities {
		a.entityIndex[e] = i
	}
	for j, p := range a.periods {
		a.periodIndex[p] = j
	}
	return a, nil
}

// Extract returns the distinct entities and truncated periods of p, both ascending.
func Extract(p *panel.Panel, g Granularity) (*Axes, error) {
	if p.Len() == 0 {
		return nil, &model.StageError{Stage: "axes", Name: p.Table.Name, Err: model.ErrEmptyResult}
	}

	entitySet := make(map[int64]struct{})
	periodSet := make(map[int32]struct{})
	for i, e := range p.Entities {
		entitySet[e] = struct{}{}
		periodSet[g.Period(p.Dates[i])] = struct{}{}
	}

	entities := make([]int64, 0, len(entitySet))
	for e := range entitySet {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(a, b int) bool { return entities[a] < entities[b] })

	periods := make([]int32, 0, len(periodSet))
	for q := range periodSet {
		periods = append(periods, q)
	}
	sort.Slice(periods, func(a, b int) bool { return periods[a] < periods[b] })

	return New(entities, periods, g)
}

func (a *Axes) Granularity() Granularity { return a.granularity }

// Entities returns a copy of the entity axis.
func (a *Axes) Entities() []int64 { return append([]int64(nil), a.entities...) }

// Periods returns a copy of the period axis.
func (a *Axes) Periods() []int32 { return append([]int32(nil), a.periods...) }

// Shape returns the matrix shape implied by the axes.
func (a *Axes) Shape() (rows, cols int) { return len(a.entities), len(a.periods) }

func (a *Axes) EntityIndex(e int64) (int, bool) {
	i, ok := a.entityIndex[e]
	return i, ok
}

func (a *Axes) PeriodIndex(p int32) (int, bool) {
	j, ok := a.periodIndex[p]
	return j, ok
}

// MaxPeriod returns the last period, or zero for an empty axis.
func (a *Axes) MaxPeriod() int32 {
	if len(a.periods) == 0 {
		return 0
	}
	return a.periods[len(a.periods)-1]
}
