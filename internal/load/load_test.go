package load

import (
	"cloud.google.com/go/logging"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajjensen13/crsppanel/internal/axis"
	"github.com/ajjensen13/crsppanel/internal/logtest"
	"github.com/ajjensen13/crsppanel/internal/model"
	"github.com/ajjensen13/crsppanel/internal/panel"
	"github.com/ajjensen13/crsppanel/internal/pivot"
	"github.com/ajjensen13/crsppanel/internal/store"
	"github.com/ajjensen13/crsppanel/internal/table"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixture(t *testing.T) (*table.Table, *axis.Axes, *pivot.Index) {
	t.Helper()
	entities := []int64{10001, 10001, 10002}
	dates := []time.Time{day(2000, 1, 31), day(2000, 2, 29), day(2000, 2, 29)}
	tbl, err := table.NewTable("crsp.msf",
		table.New("permno", entities, nil),
		table.New("date", dates, nil),
		table.New("prc", []float64{10.5, 11, -3.25}, nil),
		table.New("shrcd", []int16{10, 10, 11}, nil),
		table.New("ticker", []string{"AAA", "AAA", "BBB"}, nil),
	)
	require.NoError(t, err)

	p := &panel.Panel{Table: tbl, Entities: entities, Dates: dates}
	a, err := axis.Extract(p, axis.Month)
	require.NoError(t, err)
	x, err := pivot.NewIndex(p, a)
	require.NoError(t, err)
	return tbl, a, x
}

func TestAxesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	_, a, _ := fixture(t)
	require.NoError(t, SaveAxes(dir, a))

	em, err := store.Load[int64](filepath.Join(dir, EntityFile))
	require.NoError(t, err)
	assert.Equal(t, 2, em.Rows)
	assert.Equal(t, 1, em.Cols)

	pm, err := store.Load[int32](filepath.Join(dir, PeriodFile))
	require.NoError(t, err)
	assert.Equal(t, []int32{200001, 200002}, pm.Data)

	got, err := ReadAxes(dir, axis.Month)
	require.NoError(t, err)
	assert.Equal(t, a.Entities(), got.Entities())
	assert.Equal(t, a.Periods(), got.Periods())
}

func TestReadAxesRejectsWideArrays(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, store.Save(filepath.Join(dir, EntityFile), store.NewMatrix[int64](1, 2)))
	require.NoError(t, store.Save(filepath.Join(dir, PeriodFile), store.NewMatrix[int32](1, 1)))

	_, err := ReadAxes(dir, axis.Month)
	assert.Error(t, err)
}

func TestVariablesSavesAndSkips(t *testing.T) {
	for _, workers := range []int{1, 4} {
		dir := t.TempDir()
		tbl, _, x := fixture(t)
		lg, rec := logtest.New()

		outputs, err := Variables(context.Background(), lg, dir, x, tbl, []string{"prc", "ticker", "shrcd", "bid"}, workers)
		require.NoError(t, err)
		require.Len(t, outputs, 4)

		assert.Equal(t, "prc", outputs[0].Variable)
		assert.False(t, outputs[0].Skipped())
		assert.Equal(t, table.Float64, outputs[0].Type)
		assert.Equal(t, 2, outputs[0].Rows)
		assert.Equal(t, 2, outputs[0].Cols)

		assert.True(t, errors.Is(outputs[1].Err, model.ErrUnsupportedType))
		assert.Empty(t, outputs[1].Path)
		assert.Equal(t, table.Int16, outputs[2].Type)
		assert.True(t, errors.Is(outputs[3].Err, model.ErrMissingColumn))

		prc, err := ReadVariable(dir, "prc")
		require.NoError(t, err)
		assert.Equal(t, []float64{10.5, 11, 0, -3.25}, prc.Data)

		shrcd, err := store.Load[int16](VariablePath(dir, "shrcd"))
		require.NoError(t, err)
		assert.Equal(t, []int16{10, 10, 0, 11}, shrcd.Data)

		_, err = os.Stat(VariablePath(dir, "ticker"))
		assert.True(t, os.IsNotExist(err))

		assert.Len(t, rec.Messages(logging.Warning), 2)
	}
}

func TestVariablesFailsOnWriteError(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "crsp")
	require.NoError(t, os.WriteFile(dir, []byte("not a directory"), 0o600))

	tbl, _, x := fixture(t)
	lg, _ := logtest.New()
	_, err := Variables(context.Background(), lg, dir, x, tbl, []string{"prc"}, 2)
	require.Error(t, err)

	var se *model.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "save", se.Stage)
	assert.Equal(t, "prc", se.Name)
}

func TestVariablesCancelled(t *testing.T) {
	tbl, _, x := fixture(t)
	lg, _ := logtest.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Variables(ctx, lg, t.TempDir(), x, tbl, []string{"prc", "shrcd"}, 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSaveLinkAndDerived(t *testing.T) {
	dir := t.TempDir()
	_, a, x := fixture(t)

	link, err := pivot.Link(x, a)
	require.NoError(t, err)
	require.NoError(t, SaveLink(dir, link))

	got, err := store.Load[int32](filepath.Join(dir, LinkFile))
	require.NoError(t, err)
	assert.Equal(t, []int32{10001, 200001, 10001, 200002, 10002, 200002}, got.Data)

	m := store.NewMatrix[float64](2, 2)
	m.Set(1, 1, 0.5)
	out, err := SaveVariable(dir, "ret", m)
	require.NoError(t, err)
	assert.Equal(t, VariablePath(dir, "ret"), out.Path)

	back, err := ReadVariable(dir, "ret")
	require.NoError(t, err)
	assert.Equal(t, 0.5, back.At(1, 1))
}

func TestDir(t *testing.T) {
	assert.Equal(t, filepath.Join("wd", "data", "crsp"), Dir("wd"))
}
