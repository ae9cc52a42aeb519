package chart

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"montewalk/internal/montecarlo"
	"montewalk/internal/strategy"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestEquityCurve(t *testing.T) {
	start := time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)
	res := &strategy.Result{
		Strategy: "sma_cross",
		Symbol:   "AAPL",
		Params:   strategy.Params{"fast": 20, "slow": 50},
	}
	for i := 0; i < 600; i++ {
		res.EquityCurve = append(res.EquityCurve, strategy.EquityPoint{
			Timestamp: start.AddDate(0, 0, i),
			Equity:    10000 + float64(i%50)*10 + float64(i),
		})
	}

	png, err := EquityCurve(res)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic), "output is a PNG")
}

func TestEquityCurveTooShort(t *testing.T) {
	_, err := EquityCurve(&strategy.Result{EquityCurve: []strategy.EquityPoint{{Equity: 1}}})
	assert.Error(t, err)
}

func TestSimulationFan(t *testing.T) {
	seed := uint64(7)
	res, err := montecarlo.Simulate(context.Background(), montecarlo.Params{
		Mu:           []float64{0.07},
		Sigma:        []float64{0.2},
		Correlation:  mat.NewSymDense(1, []float64{1}),
		Weights:      []float64{1},
		NumPaths:     200,
		HorizonDays:  30,
		InitialValue: 1000,
		Seed:         &seed,
	})
	require.NoError(t, err)

	png, err := SimulationFan(res)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic), "output is a PNG")
}

func TestSimulationFanEmpty(t *testing.T) {
	_, err := SimulationFan(&montecarlo.Result{})
	assert.Error(t, err)
}

func TestSample(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, sample(3))
	idx := sample(1001)
	assert.LessOrEqual(t, len(idx), maxPoints+1)
	assert.Equal(t, 0, idx[0])
	assert.Equal(t, 1000, idx[len(idx)-1])
}
