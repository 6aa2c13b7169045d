package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBandsGrade(t *testing.T) {
	cases := []struct {
		ratio float64
		want  int
	}{
		{0, 1},
		{0.25, 1},
		{0.399, 1},
		{0.40, 2},
		{0.5, 2},
		{0.60, 3},
		{0.75, 4},
		{0.89, 4},
		{0.90, 5},
		{1, 5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DefaultBands.Grade(tc.ratio), "ratio %v", tc.ratio)
	}
}

func TestBandsMonotonic(t *testing.T) {
	prev := MinGrade
	for i := 0; i <= 100; i++ {
		g := DefaultBands.Grade(float64(i) / 100)
		require.GreaterOrEqual(t, g, prev)
		require.GreaterOrEqual(t, g, MinGrade)
		require.LessOrEqual(t, g, MaxGrade)
		prev = g
	}
}

func TestNewBands(t *testing.T) {
	b, err := NewBands(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBands, b)

	b, err = NewBands([]float64{0.2, 0.4, 0.6, 0.8})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Grade(0.3))

	for _, cuts := range [][]float64{
		{0.2, 0.4, 0.6},
		{0.4, 0.4, 0.6, 0.8},
		{0, 0.4, 0.6, 0.8},
		{0.4, 0.6, 0.8, 1.2},
		{0.9, 0.6, 0.4, 0.2},
	} {
		_, err := NewBands(cuts)
		assert.ErrorIs(t, err, errInvalidBands, "cuts %v", cuts)
	}
}
