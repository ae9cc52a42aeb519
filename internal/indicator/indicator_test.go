package indicator

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"montewalk/internal/domain"
)

func assertSeries(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "index %d: got %v, want NaN", i, got[i])
			continue
		}
		assert.InDelta(t, want[i], got[i], 1e-9, "index %d", i)
	}
}

var nan = math.NaN()

func TestSMA(t *testing.T) {
	got, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assertSeries(t, []float64{nan, nan, 2, 3, 4}, got)

	_, err = SMA([]float64{1}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestEMASeededWithSMA(t *testing.T) {
	got, err := EMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assertSeries(t, []float64{nan, nan, 2, 3, 4}, got)

	short, err := EMA([]float64{1, 2}, 3)
	require.NoError(t, err)
	assertSeries(t, []float64{nan, nan}, short)

	// Leading NaNs from a chained series are skipped.
	chained, err := EMA([]float64{nan, 2, 4, 6}, 2)
	require.NoError(t, err)
	assertSeries(t, []float64{nan, nan, 3, 5}, chained)
}

func TestRSIWilder(t *testing.T) {
	got, err := RSI([]float64{1, 2, 1, 2}, 2)
	require.NoError(t, err)
	// Initial averages 0.5/0.5, then gain 1: (0.5+1)/2 over (0.5+0)/2.
	assertSeries(t, []float64{nan, nan, 50, 75}, got)

	rising := make([]float64, 20)
	flat := make([]float64, 20)
	for i := range rising {
		rising[i] = float64(i)
		flat[i] = 10
	}
	r, _ := RSI(rising, 14)
	assert.True(t, math.IsNaN(r[13]))
	assert.Equal(t, 100.0, r[14])
	assert.Equal(t, 100.0, r[19])

	f, _ := RSI(flat, 14)
	assert.Equal(t, 50.0, f[19])

	falling := make([]float64, 20)
	for i := range falling {
		falling[i] = float64(100 - i)
	}
	d, _ := RSI(falling, 14)
	assert.Equal(t, 0.0, d[19])
}

func TestMACD(t *testing.T) {
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 50
	}
	m, err := MACD(flat, 12, 26, 9)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m.MACD[24]))
	assert.Equal(t, 0.0, m.MACD[25])
	assert.True(t, math.IsNaN(m.Signal[32]))
	assert.Equal(t, 0.0, m.Signal[33])
	assert.Equal(t, 0.0, m.Histogram[39])

	_, err = MACD(flat, 26, 12, 9)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestBollingerPopulationStdDev(t *testing.T) {
	b, err := Bollinger([]float64{1, 2, 3}, 3, 2)
	require.NoError(t, err)
	sd := math.Sqrt(2.0 / 3.0)
	assert.InDelta(t, 2, b.Middle[2], 1e-12)
	assert.InDelta(t, 2+2*sd, b.Upper[2], 1e-12)
	assert.InDelta(t, 2-2*sd, b.Lower[2], 1e-12)
	assert.True(t, math.IsNaN(b.Upper[1]))
}

func TestRollingStatsSampleStdDev(t *testing.T) {
	r, err := RollingStats([]float64{1, 2, 3, 5}, 3)
	require.NoError(t, err)
	assertSeries(t, []float64{nan, nan, 2, 10.0 / 3}, r.Mean)
	assert.InDelta(t, 1, r.StdDev[2], 1e-12)

	_, err = RollingStats([]float64{1, 2}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestValuesMarshalJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		V Values `json:"v"`
	}{Values{1.5, nan, math.Inf(1), 2}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":[1.5,null,null,2]}`, string(b))
}

func TestSummarizeBuy(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 * math.Pow(1.01, float64(i))
	}
	s, err := Summarize(closes)
	require.NoError(t, err)
	// RSI 100 is overbought (-1), MACD rising above signal (+1), above SMA50 (+1).
	assert.Equal(t, 100.0, s.RSI)
	assert.Equal(t, 1, s.Score)
	assert.Equal(t, domain.SignalTypeBuy, s.Signal)
	assert.False(t, s.Strong)
	assert.Equal(t, "BUY", s.Verdict)
	assert.Nil(t, s.SMA200)
	assert.Len(t, s.Reasons, 4)
}

func TestSummarizeStrongSell(t *testing.T) {
	closes := make([]float64, 250)
	for i := range closes {
		if i < 230 {
			closes[i] = 100 + float64(i)
		} else {
			closes[i] = 329 - 10*float64(i-229)
		}
	}
	s, err := Summarize(closes)
	require.NoError(t, err)
	// Oversold RSI (+1), MACD below signal (-1), below SMA50 (-1), below SMA200 (-1).
	assert.Less(t, s.RSI, 30.0)
	assert.Less(t, s.MACD, s.MACDSignal)
	require.NotNil(t, s.SMA200)
	assert.Greater(t, *s.SMA200, s.Price)
	assert.Equal(t, -2, s.Score)
	assert.Equal(t, domain.SignalTypeSell, s.Signal)
	assert.True(t, s.Strong)
	assert.Equal(t, "STRONG SELL", s.Verdict)
}

func TestSummarizeInsufficientData(t *testing.T) {
	for _, n := range []int{0, 10, 20, 40} {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = float64(100 + i%3)
		}
		_, err := Summarize(closes)
		assert.ErrorIs(t, err, domain.ErrInsufficientData, "n=%d", n)
	}
}

func TestCompute(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, 40)
	for i := range bars {
		c := 100 + math.Sin(float64(i))
		bars[i] = domain.Bar{Symbol: "X", Timestamp: t0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	tab, err := Compute(bars, []string{"rsi", "SMA_5", "MACD", "bbands", "ROLLING_10"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"BB_LOWER", "BB_MIDDLE", "BB_UPPER", "CLOSE", "MACD", "MACD_HIST", "MACD_SIGNAL",
		"ROLLING_MEAN", "ROLLING_STD", "RSI_14", "SMA_5",
	}, tab.Names())
	assert.Len(t, tab.Columns["SMA_5"], 40)

	tail := tab.Tail(10)
	assert.Len(t, tail.Timestamps, 10)
	assert.Len(t, tail.Columns["RSI_14"], 10)
	assert.Equal(t, bars[39].Timestamp, tail.Timestamps[9])

	_, err = Compute(bars, []string{"VWAP"})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
	_, err = Compute(bars, []string{"SMA_x"})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}
