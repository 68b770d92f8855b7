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
	"context"
	"fmt"

	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/table"
)

// Source fetches whole tables by identifier. An empty column list means every column.
type Source interface {
	Fetch(ctx context.Context, id model.TableID, columns ...string) (*table.Table, error)
}

func unavailable(id model.TableID, rows int, err error) error {
	return &model.StageError{Stage: "fetch", Name: id.String(), Rows: rows, Err: fmt.Errorf("%w: %w", model.ErrSourceUnavailable, err)}
}

func noRows(id model.TableID) error {
	return &model.StageError{Stage: "fetch", Name: id.String(), Err: model.ErrNoRowsReturned}
}
