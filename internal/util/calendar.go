package util

import (
	"fmt"
	"strings"
	"time"

	"montewalk/internal/domain"
)

const (
	// TradingDaysPerYear is the US equity convention used for annualization.
	TradingDaysPerYear = 252
	// TradingDaysPerMonth converts calendar months into daily bar counts.
	TradingDaysPerMonth = 21
)

// Interval is a bar sampling interval such as "1d" or "15m".
type Interval string

var intervalDurations = map[Interval]time.Duration{
	"1m":  time.Minute,
	"2m":  2 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"60m": time.Hour,
	"90m": 90 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
	"5d":  5 * 24 * time.Hour,
	"1wk": 7 * 24 * time.Hour,
	"1mo": 30 * 24 * time.Hour,
	"3mo": 91 * 24 * time.Hour,
}

// ParseInterval validates s as a supported interval.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("unsupported interval %q", s)
	}
	return iv, nil
}

// Duration returns the nominal length of one bar.
func (iv Interval) Duration() time.Duration { return intervalDurations[iv] }

// Intraday reports whether the interval is shorter than one session.
func (iv Interval) Intraday() bool { return iv.Duration() < 24*time.Hour }

// TradingCalendar provides session arithmetic for a specific market.
type TradingCalendar struct {
	market domain.Market
}

// NewTradingCalendar creates a TradingCalendar for the given market.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	return &TradingCalendar{
		market: market,
	}
}

// DaysPerYear returns the number of sessions per year: 252 for US equities,
// 365 for crypto which never closes.
func (tc *TradingCalendar) DaysPerYear() float64 {
	if tc.market == domain.MarketCrypto {
		return 365
	}
	return TradingDaysPerYear
}

// sessionMinutes is the length of one regular session.
func (tc *TradingCalendar) sessionMinutes() float64 {
	if tc.market == domain.MarketCrypto {
		return 24 * 60
	}
	return 390 // NYSE 9:30-16:00 ET
}

// PeriodsPerYear returns how many bars of the given interval make up one
// year, the annualization factor for volatility and Sharpe ratios.
func (tc *TradingCalendar) PeriodsPerYear(iv Interval) float64 {
	d := iv.Duration()
	switch {
	case d == 0:
		return tc.DaysPerYear()
	case iv.Intraday():
		return tc.DaysPerYear() * tc.sessionMinutes() / d.Minutes()
	case iv == "1wk":
		return 52
	case iv == "1mo":
		return 12
	case iv == "3mo":
		return 4
	default:
		return tc.DaysPerYear() / (d.Hours() / 24)
	}
}

// PeriodStart returns the start of a lookback period such as "1y", "6mo",
// "ytd" or "max" measured back from now.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	switch p {
	case "ytd":
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), nil
	case "max":
		return time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), nil
	}

	var n int
	var unit string
	if _, err := fmt.Sscanf(p, "%d%s", &n, &unit); err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("unsupported period %q", period)
	}
	switch unit {
	case "d":
		return now.AddDate(0, 0, -n), nil
	case "wk":
		return now.AddDate(0, 0, -7*n), nil
	case "mo":
		return now.AddDate(0, -n, 0), nil
	case "y":
		return now.AddDate(-n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported period %q", period)
	}
}
