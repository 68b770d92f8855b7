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

package wrds

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ajjensen13/crsppanel/internal/table"
)

const monthlyQuery = `SELECT msf.permno,
       date_trunc('month', msf.mthcaldt)::date AS date,
       msf.mthret::double precision AS ret,
       msf.shrout::double precision AS shrout,
       msf.mthprc::double precision AS altprc,
       ssih.primaryexch,
       ssih.siccd
  FROM crsp.msf_v2 AS msf
  INNER JOIN crsp.stksecurityinfohist AS ssih
    ON msf.permno = ssih.permno
   AND ssih.secinfostartdt <= msf.mthcaldt
   AND msf.mthcaldt <= ssih.secinfoenddt
 WHERE msf.mthcaldt BETWEEN $1 AND $2
   AND ssih.sharetype = 'NS'
   AND ssih.securitytype = 'EQTY'
   AND ssih.securitysubtype = 'COM'
   AND ssih.usincflg = 'Y'
   AND ssih.issuertype IN ('ACOR', 'CORP')
   AND ssih.primaryexch IN ('N', 'A', 'Q')
   AND ssih.conditionaltype IN ('RW', 'NW')
   AND ssih.tradingstatusflg = 'A'`

// MonthlyQuery returns the monthly stock file query restricted to US common equity and
// its arguments for the inclusive range [start, end].
func MonthlyQuery(start, end time.Time) (string, []interface{}) {
	return monthlyQuery, []interface{}{start, end}
}

// MarketCap adds mktcap = shrout * altprc / 1e6 in millions. Zero and missing inputs give
// NaN.
func MarketCap(t *table.Table) (*table.Table, error) {
	s, sok, err := floatColumn(t, "shrout")
	if err != nil {
		return nil, err
	}
	p, pok, err := floatColumn(t, "altprc")
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(s))
	for i := range out {
		out[i] = math.NaN()
		if !sok[i] || !pok[i] {
			continue
		}
		if v := s[i] * p[i] / 1e6; v != 0 {
			out[i] = v
		}
	}
	return t.With(table.New("mktcap", out, nil))
}

func floatColumn(t *table.Table, name string) ([]float64, []bool, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, nil, fmt.Errorf("table %q has no column %q", t.Name, name)
	}
	values, valid, err := table.Floats(c)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s of %s: %w", name, t.Name, err)
	}
	return values, valid, nil
}

type industryRange struct {
	lo, hi int64
	name   string
}

var industries = []industryRange{
	{1, 999, "Agriculture"},
	{1000, 1499, "Mining"},
	{1500, 1799, "Construction"},
	{2000, 3999, "Manufacturing"},
	{4000, 4899, "Transportation"},
	{4900, 4999, "Utilities"},
	{5000, 5199, "Wholesale"},
	{5200, 5999, "Retail"},
	{6000, 6799, "Finance"},
	{7000, 8999, "Services"},
	{9000, 9999, "Public"},
}

// Industry maps a standard industrial classification code to its division.
func Industry(sic int64) string {
	for _, r := range industries {
		if r.lo <= sic && sic <= r.hi {
			return r.name
		}
	}
	return "Missing"
}

// AddIndustry adds an industry column derived from siccd. siccd may arrive as text.
func AddIndustry(t *table.Table) (*table.Table, error) {
	c, ok := t.Column("siccd")
	if !ok {
		return nil, fmt.Errorf("table %q has no column %q", t.Name, "siccd")
	}

	out := make([]string, c.Len())
	switch {
	case c.Type == table.Text:
		for i, s := range table.Values[string](c) {
			out[i] = "Missing"
			var sic int64
			if c.Valid(i) {
				if _, err := fmt.Sscan(strings.TrimSpace(s), &sic); err == nil {
					out[i] = Industry(sic)
				}
			}
		}
	case c.Type.Numeric():
		v, vok, err := table.Floats(c)
		if err != nil {
			return nil, err
		}
		for i := range v {
			out[i] = "Missing"
			if vok[i] && !math.IsNaN(v[i]) {
				out[i] = Industry(int64(v[i]))
			}
		}
	default:
		return nil, fmt.Errorf("column %q has type %s, expected a numeric type", "siccd", c.Type)
	}
	return t.With(table.New("industry", out, nil))
}
