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

package cmd

import (
	"context"
	"time"

	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/table"
	"github.com/ajjensen13/crsppanel/internal/wrds"
)

type querier interface {
	Query(ctx context.Context, id model.TableID, sql string, args ...interface{}) (*table.Table, error)
}

// fetchMonthly downloads monthly common stock records and adds market cap and industry.
func fetchMonthly(ctx context.Context, q querier, start, end time.Time) (*table.Table, error) {
	sql, args := wrds.MonthlyQuery(start, end)
	t, err := q.Query(ctx, model.MonthlyStockFileV2, sql, args...)
	if err != nil {
		return nil, err
	}
	if t, err = wrds.MarketCap(t); err != nil {
		return nil, err
	}
	return wrds.AddIndustry(t)
}
