package pivot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajjensen13/crsppanel/internal/axis"
	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/panel"
	"github.com/ajjensen13/crsppanel/internal/store"
	"github.com/ajjensen13/crsppanel/internal/table"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func build(t *testing.T, entities []int64, dates []time.Time, cols ...*table.Column) (*panel.Panel, *axis.Axes, *Index) {
	t.Helper()
	cols = append([]*table.Column{table.New("permno", entities, nil), table.New("date", dates, nil)}, cols...)
	tbl, err := table.NewTable("crsp.msf", cols...)
	require.NoError(t, err)

	p := &panel.Panel{Table: tbl, Entities: entities, Dates: dates}
	a, err := axis.Extract(p, axis.Month)
	require.NoError(t, err)
	x, err := NewIndex(p, a)
	require.NoError(t, err)
	return p, a, x
}

func TestVariableScenarioA(t *testing.T) {
	p, _, x := build(t,
		[]int64{1, 1},
		[]time.Time{day(2000, 1, 31), day(2000, 2, 29)},
		table.New("ret_x_dl", []float64{5, 6}, nil))

	m, typ, err := Variable(x, p.Table, "ret_x_dl")
	require.NoError(t, err)
	assert.Equal(t, table.Float64, typ)

	got := m.(*store.Matrix[float64])
	assert.Equal(t, 1, got.Rows)
	assert.Equal(t, 2, got.Cols)
	assert.Equal(t, []float64{5, 6}, got.Data)
}

func TestVariableShapeAndFill(t *testing.T) {
	// three entities over four months, only four observations
	p, a, x := build(t,
		[]int64{3, 1, 2, 3},
		[]time.Time{day(2000, 4, 28), day(2000, 1, 31), day(2000, 2, 29), day(2000, 3, 31)},
		table.New("prc", []float32{1.5, 2.5, 3.5, 4.5}, nil))

	m, typ, err := Variable(x, p.Table, "prc")
	require.NoError(t, err)
	assert.Equal(t, table.Float32, typ)

	got := m.(*store.Matrix[float32])
	rows, cols := a.Shape()
	assert.Equal(t, rows, got.Rows)
	assert.Equal(t, cols, got.Cols)
	assert.Equal(t, []float32{
		2.5, 0, 0, 0,
		0, 3.5, 0, 0,
		0, 0, 4.5, 1.5,
	}, got.Data)
}

func TestVariableKeepsIntegerTypes(t *testing.T) {
	p, _, x := build(t,
		[]int64{1, 2},
		[]time.Time{day(2000, 1, 31), day(2000, 1, 31)},
		table.New("shrcd", []int16{10, 11}, nil),
		table.New("siccd", []int32{3571, 6021}, nil),
		table.New("vol_x_adj", []int64{1 << 40, 7}, nil))

	m, typ, err := Variable(x, p.Table, "shrcd")
	require.NoError(t, err)
	assert.Equal(t, table.Int16, typ)
	assert.Equal(t, []int16{10, 11}, m.(*store.Matrix[int16]).Data)

	m, typ, err = Variable(x, p.Table, "siccd")
	require.NoError(t, err)
	assert.Equal(t, table.Int32, typ)
	assert.Equal(t, []int32{3571, 6021}, m.(*store.Matrix[int32]).Data)

	m, typ, err = Variable(x, p.Table, "vol_x_adj")
	require.NoError(t, err)
	assert.Equal(t, table.Int64, typ)
	assert.Equal(t, []int64{1 << 40, 7}, m.(*store.Matrix[int64]).Data)
}

func TestVariableNullsBecomeZero(t *testing.T) {
	p, _, x := build(t,
		[]int64{1, 1},
		[]time.Time{day(2000, 1, 31), day(2000, 2, 29)},
		table.New("bid", []float64{9, 9}, []bool{false, true}))

	m, _, err := Variable(x, p.Table, "bid")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 9}, m.(*store.Matrix[float64]).Data)
}

func TestVariableDuplicatesLastRowWins(t *testing.T) {
	p, _, x := build(t,
		[]int64{1, 1, 1},
		[]time.Time{day(2000, 1, 5), day(2000, 1, 31), day(2000, 2, 29)},
		table.New("ret_x_dl", []float64{0.1, 0.2, 0.3}, nil))

	assert.Equal(t, 1, x.Duplicates())

	m, _, err := Variable(x, p.Table, "ret_x_dl")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, 0.3}, m.(*store.Matrix[float64]).Data)
}

func TestVariableScenarioD(t *testing.T) {
	p, _, x := build(t,
		[]int64{1},
		[]time.Time{day(2000, 1, 31)},
		table.New("ticker", []string{"IBM"}, nil),
		table.New("prc", []float64{100}, nil))

	_, typ, err := Variable(x, p.Table, "ticker")
	require.Error(t, err)
	assert.Equal(t, table.Text, typ)
	assert.True(t, errors.Is(err, model.ErrUnsupportedType))
	assert.True(t, model.Skippable(err))

	_, _, err = Variable(x, p.Table, "date")
	assert.True(t, errors.Is(err, model.ErrUnsupportedType))

	m, _, err := Variable(x, p.Table, "prc")
	require.NoError(t, err)
	assert.Equal(t, []float64{100}, m.(*store.Matrix[float64]).Data)
}

func TestVariableMissingColumn(t *testing.T) {
	p, _, x := build(t, []int64{1}, []time.Time{day(2000, 1, 31)})

	_, _, err := Variable(x, p.Table, "spread")
	assert.True(t, errors.Is(err, model.ErrMissingColumn))
	assert.True(t, model.Skippable(err))
}

func TestNewIndexAxisMismatch(t *testing.T) {
	p, _, _ := build(t, []int64{1, 2}, []time.Time{day(2000, 1, 31), day(2000, 2, 29)})

	narrow, err := axis.New([]int64{1}, []int32{200001, 200002}, axis.Month)
	require.NoError(t, err)
	_, err = NewIndex(p, narrow)
	assert.True(t, errors.Is(err, model.ErrAxisMismatch))

	short, err := axis.New([]int64{1, 2}, []int32{200001}, axis.Month)
	require.NoError(t, err)
	_, err = NewIndex(p, short)
	assert.True(t, errors.Is(err, model.ErrAxisMismatch))
}

func TestLink(t *testing.T) {
	_, a, x := build(t,
		[]int64{20, 10, 20, 10, 10},
		[]time.Time{day(2000, 2, 29), day(2000, 3, 31), day(2000, 1, 31), day(2000, 1, 31), day(2000, 3, 1)})

	m, err := Link(x, a)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Rows)
	assert.Equal(t, 2, m.Cols)
	assert.Equal(t, []int32{
		10, 200001,
		10, 200003,
		20, 200001,
		20, 200002,
	}, m.Data)
}
