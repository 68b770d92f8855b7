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
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable is returned when a table cannot be fetched, either because the
	// connection failed or because the query itself failed.
	ErrSourceUnavailable = errors.New("error: source unavailable")
	// ErrNoRowsReturned is returned when an explicit single-table fetch yields zero rows.
	ErrNoRowsReturned = errors.New("error: no rows returned")
	// ErrEmptyResult is returned when the join and filters leave nothing to build axes from.
	ErrEmptyResult = errors.New("error: empty result")
	// ErrUnsupportedType is returned when a column type has no pivot rule.
	ErrUnsupportedType = errors.New("error: unsupported type")
	// ErrAxisMismatch is returned when an entity or period is absent from the frozen axes.
	ErrAxisMismatch = errors.New("error: axis mismatch")
	// ErrMissingColumn is returned when a required column is absent from a table.
	ErrMissingColumn = errors.New("error: missing column")
)

// StageError reports which stage failed, on which table or variable, and how many rows
// were in hand immediately before the failing step.
type StageError struct {
	Stage string
	Name  string
	Rows  int
	Err   error
}

func (e *StageError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s failed after %d rows: %v", e.Stage, e.Rows, e.Err)
	}
	return fmt.Sprintf("%s %q failed after %d rows: %v", e.Stage, e.Name, e.Rows, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Skippable reports whether err only invalidates a single variable rather than the run.
func Skippable(err error) bool {
	return errors.Is(err, ErrUnsupportedType) || errors.Is(err, ErrMissingColumn)
}
