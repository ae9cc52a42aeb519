// Package returns turns price history into per-period log-return series and
// aligns several series on their common timestamps.
package returns

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"montewalk/internal/domain"
)

// Series is an ordered sequence of log returns for one asset. Timestamps[i]
// is the timestamp of the later bar of the period that produced Values[i].
type Series struct {
	Symbol     string      `json:"symbol"`
	Timestamps []time.Time `json:"timestamps"`
	Values     []float64   `json:"values"`
}

// Len returns the number of returns.
func (s Series) Len() int { return len(s.Values) }

// Build converts bars into a log-return series using closing prices.
// Missing rows are dropped first. A period whose closes are not both
// positive is skipped and logged rather than failing the series.
func Build(bars []domain.Bar) (Series, error) {
	const op = "returns.Build"

	symbol := ""
	if len(bars) > 0 {
		symbol = bars[0].Symbol
	}
	if len(bars) < 2 {
		return Series{}, domain.InsufficientData(op, symbol, "need at least 2 bars, got %d", len(bars))
	}

	logger := log.With().Str("component", "returns").Str("symbol", symbol).Logger()

	clean := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Missing() {
			logger.Warn().Time("timestamp", b.Timestamp).Msg("dropping bar with missing fields")
			continue
		}
		clean = append(clean, b)
	}

	s := Series{
		Symbol:     symbol,
		Timestamps: make([]time.Time, 0, len(clean)),
		Values:     make([]float64, 0, len(clean)),
	}
	for i := 1; i < len(clean); i++ {
		prev, cur := clean[i-1].Close, clean[i].Close
		if prev <= 0 || cur <= 0 {
			logger.Warn().
				Time("timestamp", clean[i].Timestamp).
				Float64("prev_close", prev).
				Float64("close", cur).
				Msg("skipping period with non-positive close")
			continue
		}
		r := math.Log(cur / prev)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			logger.Warn().Time("timestamp", clean[i].Timestamp).Msg("skipping non-finite return")
			continue
		}
		s.Timestamps = append(s.Timestamps, clean[i].Timestamp)
		s.Values = append(s.Values, r)
	}

	if len(s.Values) == 0 {
		return Series{}, domain.InsufficientData(op, symbol, "no valid return periods in %d bars", len(bars))
	}
	return s, nil
}

// Aligned is a return matrix over a common timestamp index. Values[a][t] is
// the return of Symbols[a] at Index[t].
type Aligned struct {
	Symbols []string    `json:"symbols"`
	Index   []time.Time `json:"index"`
	Values  [][]float64 `json:"values"`
}

// Column returns the return series of symbol, or nil when absent.
func (a Aligned) Column(symbol string) []float64 {
	for i, s := range a.Symbols {
		if s == symbol {
			return a.Values[i]
		}
	}
	return nil
}

// Align intersects the timestamps of every series. Symbols are sorted so the
// result does not depend on map iteration order. Fewer than 2 common
// timestamps fails with an insufficient-overlap error.
func Align(series map[string]Series) (Aligned, error) {
	const op = "returns.Align"

	symbols := make([]string, 0, len(series))
	for sym := range series {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	if len(symbols) == 0 {
		return Aligned{}, domain.InsufficientData(op, "", "no series to align")
	}

	counts := make(map[int64]int)
	lookup := make([]map[int64]float64, len(symbols))
	for i, sym := range symbols {
		s := series[sym]
		lookup[i] = make(map[int64]float64, len(s.Values))
		for j, ts := range s.Timestamps {
			k := ts.UnixNano()
			if _, dup := lookup[i][k]; dup {
				continue
			}
			lookup[i][k] = s.Values[j]
			counts[k]++
		}
	}

	var common []int64
	for k, c := range counts {
		if c == len(symbols) {
			common = append(common, k)
		}
	}
	if len(common) < 2 {
		return Aligned{}, domain.InsufficientOverlap(op, strings.Join(symbols, ","),
			"%d common timestamps, need at least 2", len(common))
	}
	sort.Slice(common, func(i, j int) bool { return common[i] < common[j] })

	a := Aligned{
		Symbols: symbols,
		Index:   make([]time.Time, len(common)),
		Values:  make([][]float64, len(symbols)),
	}
	for t, k := range common {
		a.Index[t] = time.Unix(0, k).UTC()
	}
	for i := range symbols {
		col := make([]float64, len(common))
		for t, k := range common {
			col[t] = lookup[i][k]
		}
		a.Values[i] = col
	}
	return a, nil
}

// Closes extracts closing prices.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// SimpleReturns returns v[i]/v[i-1]-1 for consecutive values. Periods with a
// non-positive base are reported as zero.
func SimpleReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] > 0 {
			out[i-1] = values[i]/values[i-1] - 1
		}
	}
	return out
}
