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

// Builder accumulates the values of one column row by row.
type Builder struct {
	name  string
	typ   Type
	data  interface{}
	valid []bool
	nulls int
}

func NewBuilder(name string, typ Type, capacity int) *Builder {
	b := &Builder{name: name, typ: typ, valid: make([]bool, 0, capacity)}
	switch typ {
	case Int16:
		b.data = make([]int16, 0, capacity)
	case Int32:
		b.data = make([]int32, 0, capacity)
	case Int64:
		b.data = make([]int64, 0, capacity)
	case Float32:
		b.data = make([]float32, 0, capacity)
	case Float64:
		b.data = make([]float64, 0, capacity)
	case Date:
		b.data = make([]time.Time, 0, capacity)
	default:
		b.typ = Text
		b.data = make([]string, 0, capacity)
	}
	return b
}

func (b *Builder) Name() string { return b.name }

func (b *Builder) Type() Type { return b.typ }

// AppendNull appends a missing value.
func (b *Builder) AppendNull() {
	b.nulls++
	b.valid = append(b.valid, false)
	switch d := b.data.(type) {
	case []int16:
		b.data = append(d, 0)
	case []int32:
		b.data = append(d, 0)
	case []int64:
		b.data = append(d, 0)
	case []float32:
		b.data = append(d, 0)
	case []float64:
		b.data = append(d, 0)
	case []time.Time:
		b.data = append(d, time.Time{})
	case []string:
		b.data = append(d, "")
	}
}

// Append appends v, converting between Go numeric kinds where the value fits the column.
// A nil v appends a missing value.
func (b *Builder) Append(v interface{}) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch d := b.data.(type) {
	case []int16:
		i, err := asInt(v)
		if err != nil {
			return b.convErr(v, err)
		}
		if i < math.MinInt16 || i > math.MaxInt16 {
			return b.convErr(v, fmt.Errorf("%d overflows int16", i))
		}
		b.data = append(d, int16(i))
	case []int32:
		i, err := asInt(v)
		if err != nil {
			return b.convErr(v, err)
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return b.convErr(v, fmt.Errorf("%d overflows int32", i))
		}
		b.data = append(d, int32(i))
	case []int64:
		i, err := asInt(v)
		if err != nil {
			return b.convErr(v, err)
		}
		b.data = append(d, i)
	case []float32:
		f, err := asFloat(v)
		if err != nil {
			return b.convErr(v, err)
		}
		b.data = append(d, float32(f))
	case []float64:
		f, err := asFloat(v)
		if err != nil {
			return b.convErr(v, err)
		}
		b.data = append(d, f)
	case []time.Time:
		t, ok := v.(time.Time)
		if !ok {
			return b.convErr(v, fmt.Errorf("not a time"))
		}
		b.data = append(d, t)
	case []string:
		switch s := v.(type) {
		case string:
			b.data = append(d, s)
		case []byte:
			b.data = append(d, string(s))
		default:
			b.data = append(d, fmt.Sprint(v))
		}
	}
	b.valid = append(b.valid, true)
	return nil
}

func (b *Builder) convErr(v interface{}, err error) error {
	return fmt.Errorf("failed to append %T to %s column %q: %w", v, b.typ, b.name, err)
}

// Column returns the built column. The builder must not be used afterwards.
func (b *Builder) Column() *Column {
	valid := b.valid
	if b.nulls == 0 {
		valid = nil
	}
	return &Column{Name: b.name, Type: b.typ, data: b.data, valid: valid}
}

func asInt(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not integral", x)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("not an integer")
	}
}

func asFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("not a number")
	}
}
