package table

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder("shrcd", Int16, 4)
	require.NoError(t, b.Append(int32(10)))
	require.NoError(t, b.Append(nil))
	require.NoError(t, b.Append(int64(11)))
	require.Error(t, b.Append(int64(1<<20)))
	require.Error(t, b.Append("ten"))

	c := b.Column()
	assert.Equal(t, Int16, c.Type)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []int16{10, 0, 11}, Values[int16](c))
	assert.False(t, c.Valid(1))
	assert.Equal(t, 1, c.NullCount())
}

func TestBuilderWithoutNullsHasNoMask(t *testing.T) {
	b := NewBuilder("ret", Float64, 2)
	require.NoError(t, b.Append(float32(0.5)))
	require.NoError(t, b.Append(int32(2)))

	c := b.Column()
	assert.Equal(t, []float64{0.5, 2}, Values[float64](c))
	assert.Equal(t, 0, c.NullCount())
	assert.True(t, c.Valid(0))
}

func TestBuilderUnknownTypeFallsBackToText(t *testing.T) {
	b := NewBuilder("flag", Unknown, 1)
	require.NoError(t, b.Append(true))
	assert.Equal(t, Text, b.Type())
	assert.Equal(t, []string{"true"}, Values[string](b.Column()))
}

func TestTable(t *testing.T) {
	d := time.Date(2000, 1, 31, 0, 0, 0, 0, time.UTC)
	tbl, err := NewTable("crsp.msf",
		New("permno", []int32{1, 2, 3}, nil),
		New("date", []time.Time{d, d, d}, nil),
		New("ret", []float64{0.1, 0.2, 0.3}, []bool{true, false, true}),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.NumRows())
	assert.Equal(t, []string{"permno", "date", "ret"}, tbl.Names())

	renamed, err := tbl.Rename(map[string]string{"ret": "ret_x_dl", "vol": "vol_x_adj"})
	require.NoError(t, err)
	_, ok := renamed.Column("ret")
	assert.False(t, ok)
	c, ok := renamed.Column("ret_x_dl")
	require.True(t, ok)
	assert.False(t, c.Valid(1))

	sub := tbl.Take([]int{2, 0})
	p, _ := sub.Column("permno")
	assert.Equal(t, []int32{3, 1}, Values[int32](p))
	r, _ := sub.Column("ret")
	assert.Equal(t, []float64{0.3, 0.1}, Values[float64](r))
	assert.True(t, r.Valid(0))

	sel, err := tbl.Select("ret", "permno")
	require.NoError(t, err)
	assert.Equal(t, []string{"ret", "permno"}, sel.Names())
	_, err = tbl.Select("nope")
	assert.Error(t, err)
}

func TestNewTableRejectsBadShapes(t *testing.T) {
	_, err := NewTable("x", New("a", []int64{1}, nil), New("a", []int64{2}, nil))
	assert.Error(t, err)

	_, err = NewTable("x", New("a", []int64{1}, nil), New("b", []int64{1, 2}, nil))
	assert.Error(t, err)
}

func TestConversions(t *testing.T) {
	ints, ok, err := Ints(New("permno", []int16{7, 8}, []bool{true, false}))
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, ints)
	assert.Equal(t, []bool{true, false}, ok)

	_, _, err = Ints(New("ret", []string{"1"}, nil))
	assert.Error(t, err)

	floats, _, err := Floats(New("vol", []int32{3}, nil))
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, floats)

	_, _, err = Dates(New("date", []string{"2000-01-01"}, nil))
	assert.Error(t, err)
}

func TestIntsFromWholeFloats(t *testing.T) {
	ints, ok, err := Ints(New("permno", []float64{10001, math.NaN(), 10002}, []bool{true, false, true}))
	require.NoError(t, err)
	assert.Equal(t, []int64{10001, 0, 10002}, ints)
	assert.Equal(t, []bool{true, false, true}, ok)

	ints, _, err = Ints(New("shrcd", []float32{10, 11}, nil))
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, ints)

	for _, bad := range []float64{10.5, math.NaN(), math.Inf(1)} {
		_, _, err = Ints(New("permno", []float64{bad}, nil))
		assert.Error(t, err, "%v", bad)
	}
}
