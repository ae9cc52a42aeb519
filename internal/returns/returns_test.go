package returns

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"montewalk/internal/domain"
)

func makeBars(symbol string, start time.Time, closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: start.AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c,
		}
	}
	return bars
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestBuild(t *testing.T) {
	s, err := Build(makeBars("AAPL", t0, 100, 110, 99))
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.InDelta(t, math.Log(1.1), s.Values[0], 1e-12)
	assert.InDelta(t, math.Log(0.9), s.Values[1], 1e-12)
	assert.Equal(t, t0.AddDate(0, 0, 1), s.Timestamps[0])
	assert.Equal(t, "AAPL", s.Symbol)
}

func TestBuildConstantClosesGiveZeroReturns(t *testing.T) {
	s, err := Build(makeBars("SPY", t0, 50, 50, 50, 50, 50))
	require.NoError(t, err)
	require.Len(t, s.Values, 4)
	for _, v := range s.Values {
		assert.Zero(t, v)
	}
}

func TestBuildSkipsNonPositiveCloses(t *testing.T) {
	s, err := Build(makeBars("X", t0, 100, 0, 105, 110, -1, 120))
	require.NoError(t, err)
	// Only 105->110 survives; every other period touches a non-positive close.
	require.Len(t, s.Values, 1)
	assert.InDelta(t, math.Log(110.0/105.0), s.Values[0], 1e-12)
	for _, v := range s.Values {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestBuildDropsMissingBars(t *testing.T) {
	bars := makeBars("X", t0, 100, 200, 110)
	bars[1].Close = math.NaN()
	s, err := Build(bars)
	require.NoError(t, err)
	require.Len(t, s.Values, 1)
	assert.InDelta(t, math.Log(1.1), s.Values[0], 1e-12)
}

func TestBuildInsufficientData(t *testing.T) {
	_, err := Build(makeBars("X", t0, 100))
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = Build(nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = Build(makeBars("X", t0, 0, 0, 0))
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestAlign(t *testing.T) {
	a, err := Build(makeBars("AAA", t0, 100, 101, 102, 103, 104))
	require.NoError(t, err)
	b, err := Build(makeBars("BBB", t0.AddDate(0, 0, 2), 50, 51, 52, 53))
	require.NoError(t, err)

	aligned, err := Align(map[string]Series{"BBB": b, "AAA": a})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, aligned.Symbols)
	// AAA returns on days 1..4, BBB on days 3..5: common days 3 and 4.
	require.Len(t, aligned.Index, 2)
	assert.True(t, aligned.Index[0].Equal(t0.AddDate(0, 0, 3)))
	assert.InDelta(t, math.Log(103.0/102.0), aligned.Column("AAA")[0], 1e-12)
	assert.InDelta(t, math.Log(51.0/50.0), aligned.Column("BBB")[0], 1e-12)
	assert.Nil(t, aligned.Column("CCC"))
}

func TestAlignInsufficientOverlap(t *testing.T) {
	a, _ := Build(makeBars("AAA", t0, 100, 101, 102))
	b, _ := Build(makeBars("BBB", t0.AddDate(0, 0, 2), 50, 51, 52))

	_, err := Align(map[string]Series{"AAA": a, "BBB": b})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientOverlap)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
	assert.Equal(t, "InsufficientOverlapError", domain.KindName(err))
}

func TestSimpleReturns(t *testing.T) {
	got := SimpleReturns([]float64{100, 110, 99})
	require.Len(t, got, 2)
	assert.InDelta(t, 0.1, got[0], 1e-12)
	assert.InDelta(t, -0.1, got[1], 1e-12)
	assert.Nil(t, SimpleReturns([]float64{1}))
	assert.Equal(t, []float64{100, 110}, Closes(makeBars("X", t0, 100, 110)))
}
