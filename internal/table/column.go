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

package table

import (
	"fmt"
	"math"
	"time"
)

type Type int

const (
	Unknown Type = iota
	Int16
	Int32
	Int64
	Float32
	Float64
	Date
	Text
)

func (t Type) String() string {
	switch t {
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Date:
		return "date"
	case Text:
		return "text"
	default:
		return "unknown"
	}
}

// Numeric reports whether values of t can be placed in a matrix.
func (t Type) Numeric() bool {
	switch t {
	case Int16, Int32, Int64, Float32, Float64:
		return true
	default:
		return false
	}
}

// Value is the set of Go types a column may hold.
type Value interface {
	int16 | int32 | int64 | float32 | float64 | time.Time | string
}

// Column is a named, typed vector with an optional validity mask.
// A nil mask means every value is present.
type Column struct {
	Name  string
	Type  Type
	data  interface{}
	valid []bool
}

// New returns a column holding values. valid must be nil or have the same length as values.
func New[T Value](name string, values []T, valid []bool) *Column {
	if valid != nil && len(valid) != len(values) {
		panic(fmt.Sprintf("column %q: len(valid) = %d, len(values) = %d", name, len(valid), len(values)))
	}
	return &Column{Name: name, Type: typeOf(values), data: values, valid: valid}
}

func typeOf(v interface{}) Type {
	switch v.(type) {
	case []int16:
		return Int16
	case []int32:
		return Int32
	case []int64:
		return Int64
	case []float32:
		return Float32
	case []float64:
		return Float64
	case []time.Time:
		return Date
	case []string:
		return Text
	default:
		return Unknown
	}
}

// Values returns the backing slice of c, or nil if c does not hold T.
func Values[T Value](c *Column) []T {
	v, _ := c.data.([]T)
	return v
}

func (c *Column) Len() int {
	switch v := c.data.(type) {
	case []int16:
		return len(v)
	case []int32:
		return len(v)
	case []int64:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	case []time.Time:
		return len(v)
	case []string:
		return len(v)
	default:
		return 0
	}
}

// Valid reports whether row i holds a value.
func (c *Column) Valid(i int) bool {
	return c.valid == nil || c.valid[i]
}

// NullCount returns the number of missing values.
func (c *Column) NullCount() int {
	n := 0
	for _, ok := range c.valid {
		if !ok {
			n++
		}
	}
	return n
}

// Renamed returns a copy of c under a new name. The data is shared.
func (c *Column) Renamed(name string) *Column {
	cp := *c
	cp.Name = name
	return &cp
}

// Take returns a new column holding rows idx of c, in the order given.
func (c *Column) Take(idx []int) *Column {
	var valid []bool
	if c.valid != nil {
		valid = make([]bool, len(idx))
		for k, i := range idx {
			valid[k] = c.valid[i]
		}
	}

	var data interface{}
	switch v := c.data.(type) {
	case []int16:
		data = take(v, idx)
	case []int32:
		data = take(v, idx)
	case []int64:
		data = take(v, idx)
	case []float32:
		data = take(v, idx)
	case []float64:
		data = take(v, idx)
	case []time.Time:
		data = take(v, idx)
	case []string:
		data = take(v, idx)
	}
	return &Column{Name: c.Name, Type: c.Type, data: data, valid: valid}
}

func take[T any](v []T, idx []int) []T {
	out := make([]T, len(idx))
	for k, i := range idx {
		out[k] = v[i]
	}
	return out
}

// Ints widens an integer column to int64. Floating point columns are accepted when every
// present value is a whole number. Missing values are reported through ok.
func Ints(c *Column) (values []int64, ok []bool, err error) {
	values = make([]int64, c.Len())
	ok = c.mask()
	switch v := c.data.(type) {
	case []int16:
		for i, x := range v {
			values[i] = int64(x)
		}
	case []int32:
		for i, x := range v {
			values[i] = int64(x)
		}
	case []int64:
		copy(values, v)
	case []float32:
		for i, x := range v {
			if values[i], err = wholeNumber(c.Name, float64(x), ok[i]); err != nil {
				return nil, nil, err
			}
		}
	case []float64:
		for i, x := range v {
			if values[i], err = wholeNumber(c.Name, x, ok[i]); err != nil {
				return nil, nil, err
			}
		}
	default:
		return nil, nil, fmt.Errorf("column %q has type %s, expected an integer type", c.Name, c.Type)
	}
	return values, ok, nil
}

func wholeNumber(name string, x float64, present bool) (int64, error) {
	if !present {
		return 0, nil
	}
	if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
		return 0, fmt.Errorf("column %q holds %v, expected a whole number", name, x)
	}
	return int64(x), nil
}

// Dates returns the values of a date column. Missing values are reported through ok.
func Dates(c *Column) (values []time.Time, ok []bool, err error) {
	v, isDate := c.data.([]time.Time)
	if !isDate {
		return nil, nil, fmt.Errorf("column %q has type %s, expected %s", c.Name, c.Type, Date)
	}
	return v, c.mask(), nil
}

// Floats widens a numeric column to float64. Missing values are reported through ok.
func Floats(c *Column) (values []float64, ok []bool, err error) {
	values = make([]float64, c.Len())
	switch v := c.data.(type) {
	case []int16:
		for i, x := range v {
			values[i] = float64(x)
		}
	case []int32:
		for i, x := range v {
			values[i] = float64(x)
		}
	case []int64:
		for i, x := range v {
			values[i] = float64(x)
		}
	case []float32:
		for i, x := range v {
			values[i] = float64(x)
		}
	case []float64:
		copy(values, v)
	default:
		return nil, nil, fmt.Errorf("column %q has type %s, expected a numeric type", c.Name, c.Type)
	}
	return values, c.mask(), nil
}

func (c *Column) mask() []bool {
	ok := make([]bool, c.Len())
	for i := range ok {
		ok[i] = c.Valid(i)
	}
	return ok
}
