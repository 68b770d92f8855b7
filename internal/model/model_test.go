package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageError(t *testing.T) {
	err := fmt.Errorf("failed to build panel: %w", &StageError{Stage: "assemble", Name: "crsp.msf", Rows: 42, Err: ErrEmptyResult})

	assert.True(t, errors.Is(err, ErrEmptyResult))
	assert.False(t, errors.Is(err, ErrAxisMismatch))

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 42, se.Rows)
	assert.Contains(t, err.Error(), `assemble "crsp.msf" failed after 42 rows`)
}

func TestSkippable(t *testing.T) {
	assert.True(t, Skippable(&StageError{Stage: "pivot", Err: ErrUnsupportedType}))
	assert.True(t, Skippable(fmt.Errorf("x: %w", ErrMissingColumn)))
	assert.False(t, Skippable(ErrSourceUnavailable))
	assert.False(t, Skippable(nil))
}

func TestParseTableID(t *testing.T) {
	tests := []struct {
		in      string
		want    TableID
		wantErr bool
	}{
		{in: "crsp.msf", want: MonthlyStockFile},
		{in: "crsp.mseexchdates", want: ExchangeDates},
		{in: "msf", wantErr: true},
		{in: "crsp.", wantErr: true},
		{in: "a.b.c", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTableID(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}
