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

// Package mirror writes fetched tables to local files so later runs can read them without a
// network connection.
package mirror

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/table"
)

// Format is an on-disk table encoding.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatParquet, FormatCSV:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown mirror format %q: expected parquet or csv", s)
	}
}

// Path returns where table id is mirrored under root: <root>/data/<schema>/<schema>_<table>.<ext>.
func Path(root string, id model.TableID, f Format) string {
	return filepath.Join(root, "data", id.Schema, fmt.Sprintf("%s_%s.%s", id.Schema, id.Name, f))
}

// Write mirrors t to path in format f, replacing any existing file.
func Write(path string, t *table.Table, f Format) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	switch f {
	case FormatParquet:
		err = WriteParquet(tmp, t)
	case FormatCSV:
		err = WriteCSV(tmp, t)
	default:
		err = fmt.Errorf("unknown mirror format %q", f)
	}
	if err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

func node(typ table.Type) parquet.Node {
	switch typ {
	case table.Int16:
		return parquet.Int(16)
	case table.Int32:
		return parquet.Int(32)
	case table.Int64:
		return parquet.Int(64)
	case table.Float32:
		return parquet.Leaf(parquet.FloatType)
	case table.Float64:
		return parquet.Leaf(parquet.DoubleType)
	case table.Date:
		return parquet.Date()
	default:
		return parquet.String()
	}
}

// Schema returns the parquet schema for t. Every column is optional.
func Schema(t *table.Table) *parquet.Schema {
	group := make(parquet.Group, len(t.Columns()))
	for _, c := range t.Columns() {
		group[c.Name] = parquet.Optional(node(c.Type))
	}
	return parquet.NewSchema(t.Name, group)
}

const batchSize = 1024

// WriteParquet writes t as a single parquet file.
func WriteParquet(w io.Writer, t *table.Table) error {
	schema := Schema(t)
	columns := t.Columns()

	index := make([]int, len(columns))
	for i, c := range columns {
		leaf, ok := schema.Lookup(c.Name)
		if !ok {
			return fmt.Errorf("column %q missing from parquet schema", c.Name)
		}
		index[i] = leaf.ColumnIndex
	}

	pw := parquet.NewWriter(w, schema)
	n := t.NumRows()
	batch := make([]parquet.Row, 0, batchSize)
	for r := 0; r < n; r++ {
		row := make(parquet.Row, len(columns))
		for i, c := range columns {
			row[index[i]] = value(c, r).Level(0, definitionLevel(c, r), index[i])
		}
		batch = append(batch, row)
		if len(batch) == batchSize {
			if _, err := pw.WriteRows(batch); err != nil {
				return fmt.Errorf("failed to write rows of %q: %w", t.Name, err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if _, err := pw.WriteRows(batch); err != nil {
			return fmt.Errorf("failed to write rows of %q: %w", t.Name, err)
		}
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file for %q: %w", t.Name, err)
	}
	return nil
}

func definitionLevel(c *table.Column, r int) int {
	if c.Valid(r) {
		return 1
	}
	return 0
}

func value(c *table.Column, r int) parquet.Value {
	if !c.Valid(r) {
		return parquet.NullValue()
	}
	switch c.Type {
	case table.Int16:
		return parquet.Int32Value(int32(table.Values[int16](c)[r]))
	case table.Int32:
		return parquet.Int32Value(table.Values[int32](c)[r])
	case table.Int64:
		return parquet.Int64Value(table.Values[int64](c)[r])
	case table.Float32:
		return parquet.FloatValue(table.Values[float32](c)[r])
	case table.Float64:
		return parquet.DoubleValue(table.Values[float64](c)[r])
	case table.Date:
		return parquet.Int32Value(EpochDays(table.Values[time.Time](c)[r]))
	default:
		return parquet.ByteArrayValue([]byte(table.Values[string](c)[r]))
	}
}

const secondsPerDay = 24 * 60 * 60

// EpochDays returns the number of whole days between the unix epoch and t, rounding down.
func EpochDays(t time.Time) int32 {
	s := t.Unix()
	d := s / secondsPerDay
	if s%secondsPerDay < 0 {
		d--
	}
	return int32(d)
}

// DateLayout is how dates are rendered in CSV mirrors.
const DateLayout = "2006-01-02"

// WriteCSV writes t with a header row. Missing values are empty fields.
func WriteCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	columns := t.Columns()
	if err := cw.Write(t.Names()); err != nil {
		return fmt.Errorf("failed to write csv header for %q: %w", t.Name, err)
	}

	record := make([]string, len(columns))
	for r := 0; r < t.NumRows(); r++ {
		for i, c := range columns {
			record[i] = format(c, r)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d of %q: %w", r, t.Name, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv for %q: %w", t.Name, err)
	}
	return nil
}

func format(c *table.Column, r int) string {
	if !c.Valid(r) {
		return ""
	}
	switch c.Type {
	case table.Int16:
		return strconv.FormatInt(int64(table.Values[int16](c)[r]), 10)
	case table.Int32:
		return strconv.FormatInt(int64(table.Values[int32](c)[r]), 10)
	case table.Int64:
		return strconv.FormatInt(table.Values[int64](c)[r], 10)
	case table.Float32:
		return formatFloat(float64(table.Values[float32](c)[r]), 32)
	case table.Float64:
		return formatFloat(table.Values[float64](c)[r], 64)
	case table.Date:
		return table.Values[time.Time](c)[r].Format(DateLayout)
	default:
		return table.Values[string](c)[r]
	}
}

func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}
