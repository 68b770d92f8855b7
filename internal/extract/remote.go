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
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/table"
	"github.com/ajjensen13/crsppanel/internal/util"
	"github.com/ajjensen13/crsppanel/internal/wrds"
)

// Remote reads tables from the WRDS Postgres service.
type Remote struct {
	pool *pgxpool.Pool
	bo   backoff.BackOff
	bon  backoff.Notify
}

// Dial opens a connection pool to the service described by cfg.
func Dial(ctx context.Context, cfg wrds.Config, bo backoff.BackOff, bon backoff.Notify) (*Remote, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var pool *pgxpool.Pool
	err := backoff.RetryNotify(func() error {
		ctx, cancel := context.WithTimeout(ctx, util.ShortReqTimeout)
		defer cancel()

		p, err := pgxpool.Connect(ctx, cfg.ConnString())
		if err != nil {
			return util.Permanent(err)
		}
		pool = p
		return nil
	}, backoff.WithContext(bo, ctx), bon)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", model.ErrSourceUnavailable, cfg.Redacted(), err)
	}

	return &Remote{pool: pool, bo: bo, bon: bon}, nil
}

func (r *Remote) Close() {
	r.pool.Close()
}

// Fetch selects columns of id. The query is built from quoted identifiers only.
func (r *Remote) Fetch(ctx context.Context, id model.TableID, columns ...string) (*table.Table, error) {
	sel := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = pgx.Identifier{c}.Sanitize()
		}
		sel = strings.Join(quoted, ", ")
	}
	sql := fmt.Sprintf("SELECT %s FROM %s", sel, pgx.Identifier{id.Schema, id.Name}.Sanitize())
	return r.Query(ctx, id, sql)
}

// Query runs sql and collects the result under the name id.
func (r *Remote) Query(ctx context.Context, id model.TableID, sql string, args ...interface{}) (*table.Table, error) {
	util.Logf(ctx, logging.Debug, "querying %s", id)
	start := time.Now()

	var result *table.Table
	var fetched int
	err := backoff.RetryNotify(func() error {
		ctx, cancel := context.WithTimeout(ctx, util.LongReqTimeout)
		defer cancel()

		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return retryable(err)
		}
		t, n, err := collect(id.String(), fieldsOf(rows.FieldDescriptions()), rows)
		fetched = n
		if err != nil {
			return retryable(err)
		}
		result = t
		return nil
	}, backoff.WithContext(r.bo, ctx), r.bon)
	if err != nil {
		return nil, unavailable(id, fetched, err)
	}
	if result.NumRows() == 0 {
		return nil, noRows(id)
	}

	util.Logf(ctx, logging.Info, "fetched %d rows of %s in %v", result.NumRows(), id, time.Since(start))
	return result, nil
}

// retryable marks server-side errors and cancellations as permanent. Only transport
// failures are worth retrying.
func retryable(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return backoff.Permanent(err)
	}
	return util.Permanent(err)
}

type field struct {
	name string
	oid  uint32
}

func fieldsOf(fds []pgproto3.FieldDescription) []field {
	result := make([]field, len(fds))
	for i, fd := range fds {
		result[i] = field{name: string(fd.Name), oid: fd.DataTypeOID}
	}
	return result
}

type resultSet interface {
	Next() bool
	Values() ([]interface{}, error)
	Err() error
	Close()
}

func columnType(oid uint32) table.Type {
	switch oid {
	case pgtype.BoolOID, pgtype.Int2OID:
		return table.Int16
	case pgtype.Int4OID:
		return table.Int32
	case pgtype.Int8OID:
		return table.Int64
	case pgtype.Float4OID:
		return table.Float32
	case pgtype.Float8OID, pgtype.NumericOID:
		return table.Float64
	case pgtype.DateOID, pgtype.TimestampOID, pgtype.TimestamptzOID:
		return table.Date
	default:
		return table.Text
	}
}

// collect drains rs into a table, returning the number of rows read even on failure.
func collect(name string, fields []field, rs resultSet) (*table.Table, int, error) {
	defer rs.Close()

	builders := make([]*table.Builder, len(fields))
	for i, f := range fields {
		builders[i] = table.NewBuilder(f.name, columnType(f.oid), 0)
	}

	n := 0
	for rs.Next() {
		values, err := rs.Values()
		if err != nil {
			return nil, n, fmt.Errorf("failed to decode row %d of %s: %w", n, name, err)
		}
		for i, v := range values {
			if err := builders[i].Append(normalize(v)); err != nil {
				return nil, n, backoff.Permanent(fmt.Errorf("row %d of %s: %w", n, name, err))
			}
		}
		n++
	}
	if err := rs.Err(); err != nil {
		return nil, n, fmt.Errorf("failed to read %s: %w", name, err)
	}

	cols := make([]*table.Column, len(builders))
	for i, b := range builders {
		cols[i] = b.Column()
	}
	t, err := table.NewTable(name, cols...)
	if err != nil {
		return nil, n, backoff.Permanent(err)
	}
	return t, n, nil
}

// normalize converts decoded values the builder does not understand. Values that cannot be
// represented become missing.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case bool:
		if x {
			return int16(1)
		}
		return int16(0)
	case pgtype.Numeric:
		return numeric(&x)
	case *pgtype.Numeric:
		return numeric(x)
	case pgtype.InfinityModifier:
		return nil
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}

func numeric(n *pgtype.Numeric) interface{} {
	if n.Status != pgtype.Present {
		return nil
	}
	var f float64
	if err := n.AssignTo(&f); err != nil {
		return nil
	}
	return f
}
