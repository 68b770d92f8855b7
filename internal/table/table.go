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

// Package table holds the in-memory columnar tables that flow between pipeline stages.
package table

import (
	"fmt"
)

// Table is an ordered set of equal-length columns with unique names.
type Table struct {
	Name    string
	columns []*Column
	index   map[string]int
}

func NewTable(name string, columns ...*Column) (*Table, error) {
	t := &Table{Name: name, index: make(map[string]int, len(columns))}
	for _, c := range columns {
		if err := t.add(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) add(c *Column) error {
	if _, ok := t.index[c.Name]; ok {
		return fmt.Errorf("table %q: duplicate column %q", t.Name, c.Name)
	}
	if len(t.columns) > 0 && c.Len() != t.NumRows() {
		return fmt.Errorf("table %q: column %q has %d rows, expected %d", t.Name, c.Name, c.Len(), t.NumRows())
	}
	t.index[c.Name] = len(t.columns)
	t.columns = append(t.columns, c)
	return nil
}

// With returns a new table holding the columns of t followed by c.
func (t *Table) With(c *Column) (*Table, error) {
	return NewTable(t.Name, append(t.Columns(), c)...)
}

func (t *Table) NumRows() int {
	if len(t.columns) == 0 {
		return 0
	}
	return t.columns[0].Len()
}

// Columns returns the columns of t in order. The slice is a copy.
func (t *Table) Columns() []*Column {
	return append([]*Column(nil), t.columns...)
}

func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

func (t *Table) Names() []string {
	result := make([]string, len(t.columns))
	for i, c := range t.columns {
		result[i] = c.Name
	}
	return result
}

// Rename returns a table with columns renamed according to renames. Names absent from t
// are ignored.
func (t *Table) Rename(renames map[string]string) (*Table, error) {
	cols := make([]*Column, len(t.columns))
	for i, c := range t.columns {
		if n, ok := renames[c.Name]; ok {
			c = c.Renamed(n)
		}
		cols[i] = c
	}
	return NewTable(t.Name, cols...)
}

// Select returns a table holding only the named columns, in the order given.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("table %q: no column %q", t.Name, n)
		}
		cols = append(cols, c)
	}
	return NewTable(t.Name, cols...)
}

// Take returns a table holding rows idx of t.
func (t *Table) Take(idx []int) *Table {
	result := &Table{Name: t.Name, index: make(map[string]int, len(t.columns)), columns: make([]*Column, len(t.columns))}
	for i, c := range t.columns {
		result.columns[i] = c.Take(idx)
		result.index[c.Name] = i
	}
	return result
}
