package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}

	order := Order{}
	if order.Side != "" || order.Type != "" || order.Status != "" {
		t.Error("expected empty enums for zero-value Order")
	}

	if OrderSideBuy != "buy" {
		t.Errorf("OrderSideBuy = %q, want %q", OrderSideBuy, "buy")
	}
	if MarketUS != "us" {
		t.Errorf("MarketUS = %q, want %q", MarketUS, "us")
	}

	signal := Signal{
		StrategyID: "technical-summary",
		Symbol:     "AAPL",
		Type:       SignalTypeBuy,
		Strength:   2,
		Metadata:   map[string]string{"rsi": "oversold"},
		CreatedAt:  time.Now(),
	}
	if signal.Type != "BUY" {
		t.Errorf("signal.Type = %q, want BUY", signal.Type)
	}

	pos := Position{Symbol: "AAPL", Qty: -10, Side: PositionSideShort}
	if pos.Side != PositionSideShort {
		t.Errorf("pos.Side = %q, want %q", pos.Side, PositionSideShort)
	}
}

func TestBarMissing(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		bar  Bar
		want bool
	}{
		{"complete", Bar{Timestamp: ts, Open: 1, High: 1, Low: 1, Close: 1}, false},
		{"zero timestamp", Bar{Open: 1, High: 1, Low: 1, Close: 1}, true},
		{"nan close", Bar{Timestamp: ts, Open: 1, High: 1, Low: 1, Close: math.NaN()}, true},
		{"inf high", Bar{Timestamp: ts, Open: 1, High: math.Inf(1), Low: 1, Close: 1}, true},
		{"non-positive close is not missing", Bar{Timestamp: ts, Open: 1, High: 1, Low: 1, Close: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.bar.Missing(); got != tt.want {
				t.Errorf("Missing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	err := InsufficientOverlap("returns.Align", "AAPL,MSFT", "%d common timestamps", 1)
	if !errors.Is(err, ErrInsufficientOverlap) {
		t.Error("expected ErrInsufficientOverlap")
	}
	if !errors.Is(err, ErrInsufficientData) {
		t.Error("insufficient overlap should also match ErrInsufficientData")
	}
	if got := KindName(err); got != "InsufficientOverlapError" {
		t.Errorf("KindName = %q, want InsufficientOverlapError", got)
	}
	if got := Subject(err); got != "AAPL,MSFT" {
		t.Errorf("Subject = %q, want AAPL,MSFT", got)
	}

	cause := errors.New("connection refused")
	wrapped := fmt.Errorf("tool: %w", DataUnavailable("alpaca.GetBars", "AAPL", cause))
	if !errors.Is(wrapped, ErrDataUnavailable) || !errors.Is(wrapped, cause) {
		t.Error("DataUnavailable should match both its kind and its cause")
	}
	if !strings.Contains(wrapped.Error(), "connection refused") {
		t.Errorf("error text %q should carry the cause", wrapped.Error())
	}

	if got := KindName(InvalidParameter("risk.ValueAtRisk", "confidence", "must be in (0,1), got %v", 1.5)); got != "InvalidParameterError" {
		t.Errorf("KindName = %q, want InvalidParameterError", got)
	}
	if got := KindName(errors.New("boom")); got != "InternalError" {
		t.Errorf("KindName = %q, want InternalError", got)
	}
}
