package indicator

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"montewalk/internal/domain"
)

// Table is a set of named indicator columns aligned with bar timestamps.
type Table struct {
	Timestamps []time.Time       `json:"timestamps"`
	Columns    map[string]Values `json:"columns"`
}

// Names returns the column names in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t.Columns))
	for k := range t.Columns {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Tail returns a copy holding only the last n rows.
func (t Table) Tail(n int) Table {
	if n <= 0 || n >= len(t.Timestamps) {
		return t
	}
	from := len(t.Timestamps) - n
	out := Table{Timestamps: t.Timestamps[from:], Columns: make(map[string]Values, len(t.Columns))}
	for k, v := range t.Columns {
		out.Columns[k] = v[from:]
	}
	return out
}

// Compute evaluates the named indicators over bar closes. A name may carry a
// period suffix ("SMA_50", "RSI_7"); supported names are SMA, EMA, RSI, MACD,
// BBANDS and ROLLING. The close series is always included.
func Compute(bars []domain.Bar, names []string) (Table, error) {
	const cop = "indicator.Compute"
	closes := make([]float64, len(bars))
	t := Table{
		Timestamps: make([]time.Time, len(bars)),
		Columns:    map[string]Values{},
	}
	for i, b := range bars {
		closes[i] = b.Close
		t.Timestamps[i] = b.Timestamp
	}
	t.Columns["CLOSE"] = closes

	for _, raw := range names {
		name, arg, hasArg := strings.Cut(strings.ToUpper(strings.TrimSpace(raw)), "_")
		period := 0
		if hasArg {
			p, err := strconv.Atoi(arg)
			if err != nil || p <= 0 {
				return Table{}, domain.InvalidParameter(cop, "indicators", "bad period in %q", raw)
			}
			period = p
		}
		withDefault := func(d int) int {
			if period == 0 {
				return d
			}
			return period
		}

		switch name {
		case "SMA":
			w := withDefault(20)
			v, err := SMA(closes, w)
			if err != nil {
				return Table{}, err
			}
			t.Columns["SMA_"+strconv.Itoa(w)] = v
		case "EMA":
			w := withDefault(20)
			v, err := EMA(closes, w)
			if err != nil {
				return Table{}, err
			}
			t.Columns["EMA_"+strconv.Itoa(w)] = v
		case "RSI":
			w := withDefault(RSIPeriod)
			v, err := RSI(closes, w)
			if err != nil {
				return Table{}, err
			}
			t.Columns["RSI_"+strconv.Itoa(w)] = v
		case "MACD":
			m, err := MACD(closes, MACDFast, MACDSlow, MACDSignal)
			if err != nil {
				return Table{}, err
			}
			t.Columns["MACD"] = m.MACD
			t.Columns["MACD_SIGNAL"] = m.Signal
			t.Columns["MACD_HIST"] = m.Histogram
		case "BBANDS":
			b, err := Bollinger(closes, withDefault(20), 2)
			if err != nil {
				return Table{}, err
			}
			t.Columns["BB_UPPER"] = b.Upper
			t.Columns["BB_MIDDLE"] = b.Middle
			t.Columns["BB_LOWER"] = b.Lower
		case "ROLLING":
			r, err := RollingStats(closes, withDefault(20))
			if err != nil {
				return Table{}, err
			}
			t.Columns["ROLLING_MEAN"] = r.Mean
			t.Columns["ROLLING_STD"] = r.StdDev
		default:
			return Table{}, domain.InvalidParameter(cop, "indicators", "unknown indicator %q", raw)
		}
	}
	return t, nil
}
