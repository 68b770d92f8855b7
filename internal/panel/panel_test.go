package panel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/table"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func observations(t *testing.T, permnos []int32, dates []time.Time, rets []float64) *table.Table {
	t.Helper()
	tbl, err := table.NewTable("crsp.msf",
		table.New("permno", permnos, nil),
		table.New("date", dates, nil),
		table.New("ret", rets, nil),
	)
	require.NoError(t, err)
	return tbl
}

type membership struct {
	permno     int32
	start, end time.Time
	shrcd      int16
	exchcd     int16
}

func memberships(t *testing.T, ms ...membership) *table.Table {
	t.Helper()
	var (
		permnos        []int32
		starts, ends   []time.Time
		shrcds, exchcd []int16
	)
	for _, m := range ms {
		permnos = append(permnos, m.permno)
		starts = append(starts, m.start)
		ends = append(ends, m.end)
		shrcds = append(shrcds, m.shrcd)
		exchcd = append(exchcd, m.exchcd)
	}
	tbl, err := table.NewTable("crsp.mseexchdates",
		table.New("permno", permnos, nil),
		table.New("namedt", starts, nil),
		table.New("nameendt", ends, nil),
		table.New("shrcd", shrcds, nil),
		table.New("exchcd", exchcd, nil),
	)
	require.NoError(t, err)
	return tbl
}

func TestAssembleScenarioA(t *testing.T) {
	obs := observations(t, []int32{1, 1}, []time.Time{day(2000, 1, 31), day(2000, 2, 29)}, []float64{5, 6})
	mem := memberships(t, membership{permno: 1, start: day(1999, 12, 1), end: day(2000, 3, 1), shrcd: 10, exchcd: 1})

	p, rep, err := Assemble(obs, mem, NewParams(day(2000, 1, 1), day(2000, 2, 29), false))
	require.NoError(t, err)

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []int64{1, 1}, p.Entities)
	assert.Equal(t, Report{Observations: 2, Memberships: 1, Rows: 2}, rep)
	assert.Equal(t, []string{"permno", "date", "ret", "namedt", "nameendt", "shrcd", "exchcd"}, p.Table.Names())

	ret, ok := p.Table.Column("ret")
	require.True(t, ok)
	assert.Equal(t, []float64{5, 6}, table.Values[float64](ret))
}

func TestAssembleFloatKeys(t *testing.T) {
	obs, err := table.NewTable("crsp.msf",
		table.New("permno", []float64{1, 1}, nil),
		table.New("date", []time.Time{day(2000, 1, 31), day(2000, 2, 29)}, nil),
		table.New("ret", []float64{5, 6}, nil),
	)
	require.NoError(t, err)
	mem, err := table.NewTable("crsp.mseexchdates",
		table.New("permno", []float64{1}, nil),
		table.New("namedt", []time.Time{day(1999, 12, 1)}, nil),
		table.New("nameendt", []time.Time{day(2000, 3, 1)}, nil),
		table.New("shrcd", []float64{10}, nil),
	)
	require.NoError(t, err)

	p, rep, err := Assemble(obs, mem, NewParams(day(2000, 1, 1), day(2000, 2, 29), true))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Rows)
	assert.Equal(t, []int64{1, 1}, p.Entities)

	mem, err = table.NewTable("crsp.mseexchdates",
		table.New("permno", []float64{1.5}, nil),
		table.New("namedt", []time.Time{day(1999, 12, 1)}, nil),
		table.New("nameendt", []time.Time{day(2000, 3, 1)}, nil),
		table.New("shrcd", []float64{10}, nil),
	)
	require.NoError(t, err)
	_, _, err = Assemble(obs, mem, NewParams(day(2000, 1, 1), day(2000, 2, 29), true))
	assert.Error(t, err)
}

func TestAssembleScenarioB(t *testing.T) {
	obs := observations(t, []int32{1, 1}, []time.Time{day(2000, 1, 31), day(2000, 2, 29)}, []float64{5, 6})
	mem := memberships(t, membership{permno: 1, start: day(1999, 12, 1), end: day(2000, 2, 15), shrcd: 10})

	p, rep, err := Assemble(obs, mem, NewParams(day(2000, 1, 1), day(2000, 2, 29), false))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(2000, 1, 31)}, p.Dates)
	assert.Equal(t, 1, rep.Unmatched)
	assert.Equal(t, 0, rep.OutsideSample)
}

func TestAssembleScenarioC(t *testing.T) {
	obs := observations(t, []int32{1, 2}, []time.Time{day(2000, 1, 31), day(2000, 1, 31)}, []float64{5, 6})
	mem := memberships(t,
		membership{permno: 1, start: day(1999, 1, 1), end: day(2001, 1, 1), shrcd: 20},
		membership{permno: 2, start: day(1999, 1, 1), end: day(2001, 1, 1), shrcd: 11},
	)

	p, rep, err := Assemble(obs, mem, NewParams(day(2000, 1, 1), day(2000, 12, 31), true))
	require.NoError(t, err)

	assert.Equal(t, []int64{2}, p.Entities)
	assert.Equal(t, 1, rep.CategoryFiltered)
}

func TestAssembleWindowIsStrict(t *testing.T) {
	obs := observations(t,
		[]int32{1, 1, 1},
		[]time.Time{day(2000, 1, 1), day(2000, 1, 15), day(2000, 2, 1)},
		[]float64{1, 2, 3})
	mem := memberships(t, membership{permno: 1, start: day(2000, 1, 1), end: day(2000, 2, 1), shrcd: 10})

	p, rep, err := Assemble(obs, mem, NewParams(day(1990, 1, 1), day(2010, 1, 1), false))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(2000, 1, 15)}, p.Dates)
	assert.Equal(t, 2, rep.Unmatched)
}

func TestAssembleSampleIsInclusive(t *testing.T) {
	obs := observations(t,
		[]int32{1, 1, 1, 1},
		[]time.Time{day(1999, 12, 31), day(2000, 1, 31), day(2000, 3, 31), day(2000, 4, 28)},
		[]float64{1, 2, 3, 4})
	mem := memberships(t, membership{permno: 1, start: day(1990, 1, 1), end: day(2010, 1, 1), shrcd: 10})

	p, rep, err := Assemble(obs, mem, NewParams(day(2000, 1, 31), day(2000, 3, 31), false))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(2000, 1, 31), day(2000, 3, 31)}, p.Dates)
	assert.Equal(t, 2, rep.OutsideSample)
}

func TestAssembleIdentifierReuse(t *testing.T) {
	// permno 7 denotes two securities over time; each observation gets the record that was
	// active on its date.
	obs := observations(t,
		[]int32{7, 7, 7},
		[]time.Time{day(2000, 1, 31), day(2000, 6, 30), day(2000, 3, 31)},
		[]float64{1, 2, 3})
	mem := memberships(t,
		membership{permno: 7, start: day(2000, 4, 1), end: day(2001, 1, 1), shrcd: 11, exchcd: 3},
		membership{permno: 7, start: day(1999, 1, 1), end: day(2000, 2, 15), shrcd: 10, exchcd: 1},
	)

	p, rep, err := Assemble(obs, mem, NewParams(day(2000, 1, 1), day(2000, 12, 31), false))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day(2000, 1, 31), day(2000, 6, 30)}, p.Dates)
	assert.Equal(t, 1, rep.Unmatched)
	exch, _ := p.Table.Column("exchcd")
	assert.Equal(t, []int16{1, 3}, table.Values[int16](exch))
}

func TestAssembleOverlappingWindowsPickLatestStart(t *testing.T) {
	obs := observations(t, []int32{1}, []time.Time{day(2000, 6, 30)}, []float64{1})
	mem := memberships(t,
		membership{permno: 1, start: day(1999, 1, 1), end: day(2001, 1, 1), exchcd: 1},
		membership{permno: 1, start: day(2000, 5, 1), end: day(2000, 12, 1), exchcd: 2},
	)

	p, _, err := Assemble(obs, mem, NewParams(day(2000, 1, 1), day(2000, 12, 31), false))
	require.NoError(t, err)

	require.Equal(t, 1, p.Len())
	exch, _ := p.Table.Column("exchcd")
	assert.Equal(t, []int16{2}, table.Values[int16](exch))
}

func TestAssembleProperties(t *testing.T) {
	var (
		permnos []int32
		dates   []time.Time
		rets    []float64
	)
	for e := int32(1); e <= 5; e++ {
		for m := 0; m < 36; m++ {
			permnos = append(permnos, e)
			dates = append(dates, day(1999, time.Month(m+1), 28))
			rets = append(rets, float64(m))
		}
	}
	obs := observations(t, permnos, dates, rets)
	mem := memberships(t,
		membership{permno: 1, start: day(1999, 3, 1), end: day(2000, 3, 1), shrcd: 10},
		membership{permno: 1, start: day(2000, 6, 1), end: day(2003, 1, 1), shrcd: 11},
		membership{permno: 2, start: day(1998, 1, 1), end: day(2002, 1, 1), shrcd: 12},
		membership{permno: 3, start: day(2000, 1, 1), end: day(2000, 12, 31), shrcd: 10},
		membership{permno: 5, start: day(1990, 1, 1), end: day(1999, 1, 1), shrcd: 10},
	)

	params := NewParams(day(1999, 6, 1), day(2001, 6, 30), true)
	p, _, err := Assemble(obs, mem, params)
	require.NoError(t, err)
	require.NotZero(t, p.Len())

	starts, _ := p.Table.Column("namedt")
	ends, _ := p.Table.Column("nameendt")
	codes, _ := p.Table.Column("shrcd")
	for i, d := range p.Dates {
		start := table.Values[time.Time](starts)[i]
		end := table.Values[time.Time](ends)[i]
		assert.True(t, start.Before(d) && d.Before(end), "row %d: %v not in (%v, %v)", i, d, start, end)
		assert.False(t, d.Before(params.SampleStart) || d.After(params.SampleEnd), "row %d: %v outside sample", i, d)
		assert.Contains(t, []int16{10, 11}, table.Values[int16](codes)[i])
		assert.NotEqual(t, int64(2), p.Entities[i])
	}
}

func TestAssembleEmptyResult(t *testing.T) {
	obs := observations(t, []int32{1}, []time.Time{day(2000, 1, 31)}, []float64{1})
	mem := memberships(t, membership{permno: 1, start: day(1990, 1, 1), end: day(2010, 1, 1), shrcd: 10})

	_, rep, err := Assemble(obs, mem, NewParams(day(2005, 1, 1), day(2005, 12, 31), false))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrEmptyResult))
	assert.Equal(t, 1, rep.OutsideSample)

	var se *model.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Rows)
}

func TestAssembleMissingColumn(t *testing.T) {
	obs := observations(t, []int32{1}, []time.Time{day(2000, 1, 31)}, []float64{1})
	mem, err := table.NewTable("crsp.mseexchdates", table.New("permno", []int32{1}, nil))
	require.NoError(t, err)

	_, _, err = Assemble(obs, mem, NewParams(day(2000, 1, 1), day(2000, 12, 31), false))
	assert.True(t, errors.Is(err, model.ErrMissingColumn))
}

func TestAssembleNullKeysNeverMatch(t *testing.T) {
	obs, err := table.NewTable("crsp.msf",
		table.New("permno", []int32{1, 1}, []bool{false, true}),
		table.New("date", []time.Time{day(2000, 1, 31), day(2000, 1, 31)}, nil),
	)
	require.NoError(t, err)
	mem := memberships(t, membership{permno: 1, start: day(1990, 1, 1), end: day(2010, 1, 1), shrcd: 10})

	p, rep, err := Assemble(obs, mem, NewParams(day(2000, 1, 1), day(2000, 12, 31), false))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 1, rep.Unmatched)
}

func TestAssembleSuffixesClashingColumns(t *testing.T) {
	obs, err := table.NewTable("crsp.msf",
		table.New("permno", []int32{1}, nil),
		table.New("date", []time.Time{day(2000, 1, 31)}, nil),
		table.New("exchcd", []int16{9}, nil),
	)
	require.NoError(t, err)
	mem := memberships(t, membership{permno: 1, start: day(1990, 1, 1), end: day(2010, 1, 1), shrcd: 10, exchcd: 3})

	p, _, err := Assemble(obs, mem, NewParams(day(2000, 1, 1), day(2000, 12, 31), false))
	require.NoError(t, err)

	left, _ := p.Table.Column("exchcd")
	right, _ := p.Table.Column("exchcd_right")
	assert.Equal(t, []int16{9}, table.Values[int16](left))
	assert.Equal(t, []int16{3}, table.Values[int16](right))
}

func TestPanelRename(t *testing.T) {
	obs := observations(t, []int32{1}, []time.Time{day(2000, 1, 31)}, []float64{1})
	mem := memberships(t, membership{permno: 1, start: day(1990, 1, 1), end: day(2010, 1, 1), shrcd: 10})

	p, _, err := Assemble(obs, mem, NewParams(day(2000, 1, 1), day(2000, 12, 31), false))
	require.NoError(t, err)

	renamed, err := p.Rename(DefaultRenames)
	require.NoError(t, err)
	_, ok := renamed.Table.Column("ret_x_dl")
	assert.True(t, ok)
	_, ok = p.Table.Column("ret")
	assert.True(t, ok)
}
