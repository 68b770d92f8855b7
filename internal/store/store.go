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

// Package store reads and writes dense two-dimensional arrays as self-describing JSON:
//
//	{"v":1,"dim":[rows,cols],"data":[...]}
//
// Data is row-major. Non-finite floating point values are written as null and read back as NaN.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

const version = 1

type Number interface {
	int16 | int32 | int64 | float32 | float64
}

// Array is a matrix of any element type that can be persisted.
type Array interface {
	Dim() (rows, cols int)
	Encode(w io.Writer) error
}

type Matrix[T Number] struct {
	Rows, Cols int
	Data       []T
}

func NewMatrix[T Number](rows, cols int) *Matrix[T] {
	return &Matrix[T]{Rows: rows, Cols: cols, Data: make([]T, rows*cols)}
}

func (m *Matrix[T]) Dim() (int, int) { return m.Rows, m.Cols }

func (m *Matrix[T]) At(i, j int) T { return m.Data[i*m.Cols+j] }

func (m *Matrix[T]) Set(i, j int, v T) { m.Data[i*m.Cols+j] = v }

// Row returns row i. The slice aliases m.
func (m *Matrix[T]) Row(i int) []T { return m.Data[i*m.Cols : (i+1)*m.Cols] }

// Clone returns a deep copy of m.
func (m *Matrix[T]) Clone() *Matrix[T] {
	return &Matrix[T]{Rows: m.Rows, Cols: m.Cols, Data: append([]T(nil), m.Data...)}
}

func (m *Matrix[T]) Encode(w io.Writer) error {
	if len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("matrix has %d values, expected %d x %d", len(m.Data), m.Rows, m.Cols)
	}

	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)
	buf = append(buf, `{"v":`...)
	buf = strconv.AppendInt(buf, version, 10)
	buf = append(buf, `,"dim":[`...)
	buf = strconv.AppendInt(buf, int64(m.Rows), 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(m.Cols), 10)
	buf = append(buf, `],"data":[`...)
	if _, err := bw.Write(buf); err != nil {
		return err
	}

	for i, v := range m.Data {
		buf = buf[:0]
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendValue(buf, v)
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}

	if _, err := bw.WriteString("]}"); err != nil {
		return err
	}
	return bw.Flush()
}

func appendValue[T Number](buf []byte, v T) []byte {
	switch x := any(v).(type) {
	case int16:
		return strconv.AppendInt(buf, int64(x), 10)
	case int32:
		return strconv.AppendInt(buf, int64(x), 10)
	case int64:
		return strconv.AppendInt(buf, x, 10)
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return append(buf, "null"...)
		}
		return strconv.AppendFloat(buf, float64(x), 'g', -1, 32)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return append(buf, "null"...)
		}
		return strconv.AppendFloat(buf, x, 'g', -1, 64)
	}
	return buf
}

type document struct {
	V    int               `json:"v"`
	Dim  []int             `json:"dim"`
	Data []json.RawMessage `json:"data"`
}

func Decode[T Number](r io.Reader) (*Matrix[T], error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode array: %w", err)
	}
	if doc.V != version {
		return nil, fmt.Errorf("unsupported array version %d", doc.V)
	}
	if len(doc.Dim) != 2 {
		return nil, fmt.Errorf("expected a 2-dimensional array, got %d dimensions", len(doc.Dim))
	}
	rows, cols := doc.Dim[0], doc.Dim[1]
	if rows < 0 || cols < 0 || len(doc.Data) != rows*cols {
		return nil, fmt.Errorf("array has %d values, expected %d x %d", len(doc.Data), rows, cols)
	}

	m := NewMatrix[T](rows, cols)
	for i, raw := range doc.Data {
		v, err := parseValue[T](raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse value %d: %w", i, err)
		}
		m.Data[i] = v
	}
	return m, nil
}

func parseValue[T Number](raw json.RawMessage) (T, error) {
	var zero T
	s := string(raw)
	switch any(zero).(type) {
	case float32:
		if s == "null" {
			return T(math.NaN()), nil
		}
		f, err := strconv.ParseFloat(s, 32)
		return T(f), err
	case float64:
		if s == "null" {
			return T(math.NaN()), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		return T(f), err
	case int16:
		i, err := strconv.ParseInt(s, 10, 16)
		return T(i), err
	case int32:
		i, err := strconv.ParseInt(s, 10, 32)
		return T(i), err
	default:
		i, err := strconv.ParseInt(s, 10, 64)
		return T(i), err
	}
}

// Save writes a to path, creating parent directories as needed.
func Save(path string, a Array) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = a.Encode(tmp); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

func Load[T Number](path string) (*Matrix[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	m, err := Decode[T](f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return m, nil
}
