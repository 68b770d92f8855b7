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

package extract

import (
	"cloud.google.com/go/logging"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/ajjensen13/crsppanel/internal/mirror"
	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/table"
	"github.com/ajjensen13/crsppanel/internal/util"
)

// Parquet reads tables previously mirrored under Root.
type Parquet struct {
	Root string
}

const readBatch = 1024

type leafReader struct {
	builder *table.Builder
	convert func(parquet.Value) interface{}
}

func (p Parquet) Fetch(ctx context.Context, id model.TableID, columns ...string) (*table.Table, error) {
	path := mirror.Path(p.Root, id, mirror.FormatParquet)
	util.Logf(ctx, logging.Debug, "reading %s from %s", id, path)

	f, err := os.Open(path)
	if err != nil {
		return nil, unavailable(id, 0, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, unavailable(id, 0, err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, unavailable(id, 0, fmt.Errorf("failed to open %s: %w", path, err))
	}

	schema := pf.Schema()
	if len(columns) == 0 {
		for _, fld := range schema.Fields() {
			if fld.Leaf() {
				columns = append(columns, fld.Name())
			}
		}
	}

	n := int(pf.NumRows())
	leaves := make(map[int]leafReader, len(columns))
	builders := make([]*table.Builder, len(columns))
	for i, name := range columns {
		leaf, ok := schema.Lookup(name)
		if !ok {
			return nil, &model.StageError{Stage: "fetch", Name: id.String(), Err: fmt.Errorf("%w: %q", model.ErrMissingColumn, name)}
		}
		if leaf.MaxRepetitionLevel > 0 {
			return nil, &model.StageError{Stage: "fetch", Name: id.String(), Err: fmt.Errorf("%w: %q is repeated", model.ErrUnsupportedType, name)}
		}
		typ, convert := leafType(leaf.Node)
		builders[i] = table.NewBuilder(name, typ, n)
		leaves[leaf.ColumnIndex] = leafReader{builder: builders[i], convert: convert}
	}

	r := parquet.NewReader(pf)
	defer r.Close()

	rows := make([]parquet.Row, readBatch)
	read := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, unavailable(id, read, err)
		}
		k, err := r.ReadRows(rows)
		for _, row := range rows[:k] {
			for _, v := range row {
				lr, ok := leaves[v.Column()]
				if !ok {
					continue
				}
				if err := lr.builder.Append(lr.convert(v)); err != nil {
					return nil, &model.StageError{Stage: "fetch", Name: id.String(), Rows: read, Err: err}
				}
			}
			read++
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, unavailable(id, read, fmt.Errorf("failed to read %s: %w", path, err))
		}
	}
	if read == 0 {
		return nil, noRows(id)
	}

	cols := make([]*table.Column, len(builders))
	for i, b := range builders {
		cols[i] = b.Column()
	}
	result, err := table.NewTable(id.String(), cols...)
	if err != nil {
		return nil, &model.StageError{Stage: "fetch", Name: id.String(), Rows: read, Err: err}
	}
	util.Logf(ctx, logging.Info, "read %d rows of %s from %s", read, id, path)
	return result, nil
}

const secondsPerDay = 24 * 60 * 60

// leafType picks the column type for a parquet leaf and how to decode its values.
func leafType(node parquet.Node) (table.Type, func(parquet.Value) interface{}) {
	typ := node.Type()
	lt := typ.LogicalType()

	switch typ.Kind() {
	case parquet.Boolean:
		return table.Int16, nullable(func(v parquet.Value) interface{} {
			if v.Boolean() {
				return int16(1)
			}
			return int16(0)
		})
	case parquet.Int32:
		if lt != nil && lt.Date != nil {
			return table.Date, nullable(func(v parquet.Value) interface{} {
				return time.Unix(int64(v.Int32())*secondsPerDay, 0).UTC()
			})
		}
		if lt != nil && lt.Integer != nil && lt.Integer.BitWidth <= 16 {
			return table.Int16, nullable(func(v parquet.Value) interface{} { return v.Int32() })
		}
		return table.Int32, nullable(func(v parquet.Value) interface{} { return v.Int32() })
	case parquet.Int64:
		if lt != nil && lt.Timestamp != nil {
			unit := time.Millisecond
			switch {
			case lt.Timestamp.Unit.Micros != nil:
				unit = time.Microsecond
			case lt.Timestamp.Unit.Nanos != nil:
				unit = time.Nanosecond
			}
			return table.Date, nullable(func(v parquet.Value) interface{} {
				return epochTime(v.Int64(), unit)
			})
		}
		return table.Int64, nullable(func(v parquet.Value) interface{} { return v.Int64() })
	case parquet.Float:
		return table.Float32, nullable(func(v parquet.Value) interface{} { return v.Float() })
	case parquet.Double:
		return table.Float64, nullable(func(v parquet.Value) interface{} { return v.Double() })
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return table.Text, nullable(func(v parquet.Value) interface{} { return string(v.ByteArray()) })
	default:
		return table.Text, nullable(func(v parquet.Value) interface{} { return v.String() })
	}
}

// epochTime converts n units since the Unix epoch. It splits n into seconds first because a
// time.Duration overflows for dates after 2262.
func epochTime(n int64, unit time.Duration) time.Time {
	per := int64(time.Second / unit)
	return time.Unix(n/per, (n%per)*int64(unit)).UTC()
}

func nullable(f func(parquet.Value) interface{}) func(parquet.Value) interface{} {
	return func(v parquet.Value) interface{} {
		if v.IsNull() {
			return nil
		}
		return f(v)
	}
}
