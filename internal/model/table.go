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

package model

import (
	"fmt"
	"strings"
)

// TableID names a remote table as schema.table.
type TableID struct {
	Schema string
	Name   string
}

var (
	MonthlyStockFile    = TableID{"crsp", "msf"}
	ExchangeDates       = TableID{"crsp", "mseexchdates"}
	DelistingEvents     = TableID{"crsp", "msedelist"}
	MonthlyStockFileV2  = TableID{"crsp", "msf_v2"}
	SecurityInfoHistory = TableID{"crsp", "stksecurityinfohist"}
)

func (t TableID) String() string {
	return t.Schema + "." + t.Name
}

// ParseTableID parses an identifier of the form schema.table.
func ParseTableID(s string) (TableID, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return TableID{}, fmt.Errorf("invalid table identifier %q: expected schema.table", s)
	}
	return TableID{Schema: parts[0], Name: parts[1]}, nil
}
