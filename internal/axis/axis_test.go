package axis

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/panel"
	"github.com/ajjensen13/crsppanel/internal/table"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testPanel(t *testing.T, entities []int64, dates []time.Time) *panel.Panel {
	t.Helper()
	tbl, err := table.NewTable("crsp.msf", table.New("permno", entities, nil), table.New("date", dates, nil))
	require.NoError(t, err)
	return &panel.Panel{Table: tbl, Entities: entities, Dates: dates}
}

func TestExtractScenarioA(t *testing.T) {
	p := testPanel(t, []int64{1, 1}, []time.Time{day(2000, 1, 31), day(2000, 2, 29)})

	a, err := Extract(p, Month)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, a.Entities())
	assert.Equal(t, []int32{200001, 200002}, a.Periods())
	assert.Equal(t, int32(200002), a.MaxPeriod())
}

func TestExtractSortsAndDeduplicates(t *testing.T) {
	p := testPanel(t,
		[]int64{10005, 10001, 10003, 10001, 10005},
		[]time.Time{day(2001, 3, 30), day(2000, 12, 29), day(2001, 1, 31), day(2001, 3, 1), day(2000, 12, 1)})

	a, err := Extract(p, Month)
	require.NoError(t, err)
	assert.Equal(t, []int64{10001, 10003, 10005}, a.Entities())
	assert.Equal(t, []int32{200012, 200101, 200103}, a.Periods())

	rows, cols := a.Shape()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)

	i, ok := a.EntityIndex(10003)
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = a.PeriodIndex(200102)
	assert.False(t, ok)
}

func TestExtractIsDeterministic(t *testing.T) {
	var (
		entities []int64
		dates    []time.Time
	)
	for i := 0; i < 500; i++ {
		entities = append(entities, int64((i*7919)%97))
		dates = append(dates, day(1990, time.Month(1+(i*31)%240), 15))
	}
	p := testPanel(t, entities, dates)

	first, err := Extract(p, Month)
	require.NoError(t, err)
	for n := 0; n < 5; n++ {
		again, err := Extract(p, Month)
		require.NoError(t, err)
		assert.Equal(t, first.Entities(), again.Entities())
		assert.Equal(t, first.Periods(), again.Periods())
	}
}

func TestExtractDaily(t *testing.T) {
	p := testPanel(t, []int64{1, 1}, []time.Time{day(2000, 1, 31), day(2000, 1, 3)})

	a, err := Extract(p, Day)
	require.NoError(t, err)
	assert.Equal(t, []int32{20000103, 20000131}, a.Periods())
}

func TestExtractEmpty(t *testing.T) {
	p := testPanel(t, []int64{}, []time.Time{})

	_, err := Extract(p, Month)
	assert.True(t, errors.Is(err, model.ErrEmptyResult))
}

func TestAxesAreFrozen(t *testing.T) {
	a, err := New([]int64{1, 2}, []int32{200001}, Month)
	require.NoError(t, err)

	e := a.Entities()
	e[0] = 99
	assert.Equal(t, []int64{1, 2}, a.Entities())
}

func TestNewRejectsUnsortedAxes(t *testing.T) {
	_, err := New([]int64{2, 1}, nil, Month)
	assert.Error(t, err)
	_, err = New(nil, []int32{200001, 200001}, Month)
	assert.Error(t, err)
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("Daily")
	require.NoError(t, err)
	assert.Equal(t, Day, g)
	assert.Equal(t, "day", g.String())

	g, err = ParseGranularity("")
	require.NoError(t, err)
	assert.Equal(t, Month, g)

	_, err = ParseGranularity("weekly")
	assert.Error(t, err)
}
