// Package indicator computes technical indicators over closing prices. Every
// series has the same length as its input, with NaN marking entries that are
// not yet defined.
package indicator

import (
	"math"
	"strconv"

	"montewalk/internal/domain"
)

const op = "indicator"

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Values is an indicator series. It encodes undefined entries as JSON null.
type Values []float64

// MarshalJSON implements json.Marshaler.
func (v Values) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	buf := make([]byte, 0, 2+len(v)*8)
	buf = append(buf, '[')
	for i, x := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			buf = append(buf, "null"...)
			continue
		}
		buf = strconv.AppendFloat(buf, x, 'g', -1, 64)
	}
	return append(buf, ']'), nil
}

// Defined reports whether v is a usable indicator value.
func Defined(v float64) bool { return !math.IsNaN(v) }

// Last returns the final entry of xs, or NaN when xs is empty.
func Last(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}

func checkWindow(name string, window int) error {
	if window <= 0 {
		return domain.InvalidParameter(op+"."+name, "window", "must be positive, got %d", window)
	}
	return nil
}

// SMA is the simple moving average; the first window-1 entries are NaN.
func SMA(values []float64, window int) ([]float64, error) {
	if err := checkWindow("SMA", window); err != nil {
		return nil, err
	}
	out := nans(len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out, nil
}

// EMA is the exponential moving average with alpha = 2/(period+1), seeded
// with the SMA of the first period values. Leading NaNs in values (from a
// chained indicator) are skipped.
func EMA(values []float64, period int) ([]float64, error) {
	if err := checkWindow("EMA", period); err != nil {
		return nil, err
	}
	out := nans(len(values))
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if len(values)-start < period {
		return out, nil
	}

	alpha := 2 / float64(period+1)
	var seed float64
	for _, v := range values[start : start+period] {
		seed += v
	}
	prev := seed / float64(period)
	out[start+period-1] = prev
	for i := start + period; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out, nil
}

// RSI is Wilder's relative strength index. The first value is defined at
// index period. With no losses in the averaging window RSI is 100, or 50 when
// there are no gains either.
func RSI(values []float64, period int) ([]float64, error) {
	if err := checkWindow("RSI", period); err != nil {
		return nil, err
	}
	out := nans(len(values))
	if len(values) <= period {
		return out, nil
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	n := float64(period)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*(n-1) + g) / n
		avgLoss = (avgLoss*(n-1) + l) / n
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	v := 100 - 100/(1+rs)
	return math.Max(0, math.Min(100, v))
}

// MACDResult holds the MACD line, its signal line and their difference.
type MACDResult struct {
	MACD      Values `json:"macd"`
	Signal    Values `json:"signal"`
	Histogram Values `json:"histogram"`
}

// MACD is EMA(fast) - EMA(slow) with an EMA(signal) of that line.
func MACD(values []float64, fast, slow, signal int) (MACDResult, error) {
	if fast >= slow {
		return MACDResult{}, domain.InvalidParameter(op+".MACD", "fast", "fast period %d must be below slow period %d", fast, slow)
	}
	fastEMA, err := EMA(values, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowEMA, err := EMA(values, slow)
	if err != nil {
		return MACDResult{}, err
	}
	line := nans(len(values))
	for i := range values {
		if Defined(fastEMA[i]) && Defined(slowEMA[i]) {
			line[i] = fastEMA[i] - slowEMA[i]
		}
	}
	sig, err := EMA(line, signal)
	if err != nil {
		return MACDResult{}, err
	}
	hist := nans(len(values))
	for i := range values {
		if Defined(line[i]) && Defined(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}, nil
}

// BollingerResult holds the bands around a moving average.
type BollingerResult struct {
	Upper  Values `json:"upper"`
	Middle Values `json:"middle"`
	Lower  Values `json:"lower"`
}

// Bollinger places bands k population standard deviations around SMA(window).
func Bollinger(values []float64, window int, k float64) (BollingerResult, error) {
	mid, err := SMA(values, window)
	if err != nil {
		return BollingerResult{}, err
	}
	res := BollingerResult{Upper: nans(len(values)), Middle: mid, Lower: nans(len(values))}
	for i := window - 1; i < len(values); i++ {
		var ss float64
		for _, v := range values[i-window+1 : i+1] {
			ss += (v - mid[i]) * (v - mid[i])
		}
		sd := math.Sqrt(ss / float64(window))
		res.Upper[i] = mid[i] + k*sd
		res.Lower[i] = mid[i] - k*sd
	}
	return res, nil
}

// RollingResult holds a rolling mean and sample standard deviation.
type RollingResult struct {
	Mean   Values `json:"mean"`
	StdDev Values `json:"std_dev"`
}

// RollingStats returns the rolling mean and sample standard deviation over
// window; the standard deviation needs window >= 2.
func RollingStats(values []float64, window int) (RollingResult, error) {
	if err := checkWindow("RollingStats", window); err != nil {
		return RollingResult{}, err
	}
	if window < 2 {
		return RollingResult{}, domain.InvalidParameter(op+".RollingStats", "window", "must be at least 2, got %d", window)
	}
	mean, _ := SMA(values, window)
	res := RollingResult{Mean: mean, StdDev: nans(len(values))}
	for i := window - 1; i < len(values); i++ {
		var ss float64
		for _, v := range values[i-window+1 : i+1] {
			ss += (v - mean[i]) * (v - mean[i])
		}
		res.StdDev[i] = math.Sqrt(ss / float64(window-1))
	}
	return res, nil
}
