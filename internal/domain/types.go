// Package domain holds the entity types shared by the analytics core and the
// surrounding tool layer, together with the error taxonomy.
package domain

import (
	"math"
	"time"
)

// Market identifies the venue family a symbol trades on. It selects the
// on-disk partition of the bar archive.
type Market string

const (
	MarketUS     Market = "us"
	MarketCrypto Market = "crypto"
)

// Bar is one OHLCV sample for a symbol at one sampling interval.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
}

// Missing reports whether the bar lacks a usable timestamp or carries a
// non-finite OHLC field.
func (b Bar) Missing() bool {
	if b.Timestamp.IsZero() {
		return true
	}
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Order is a paper-trading order.
type Order struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Qty            float64     `json:"qty"`
	LimitPrice     float64     `json:"limit_price,omitempty"`
	Status         OrderStatus `json:"status"`
	FilledQty      float64     `json:"filled_qty"`
	FilledAvgPrice float64     `json:"filled_avg_price"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// PositionSide is the exposure direction of a position. The backtester also
// uses it as its state (flat, long, short).
type PositionSide string

const (
	PositionSideFlat  PositionSide = "flat"
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Position is a holding in one symbol. Qty is signed: negative means short.
type Position struct {
	Symbol       string       `json:"symbol"`
	Qty          float64      `json:"qty"`
	AvgCost      float64      `json:"avg_cost"`
	Side         PositionSide `json:"side"`
	CurrentPrice float64      `json:"current_price,omitempty"`
	MarketValue  float64      `json:"market_value,omitempty"`
}

// AccountInfo is a snapshot of the account's financial metrics.
type AccountInfo struct {
	Cash           float64 `json:"cash"`
	Equity         float64 `json:"equity"`
	BuyingPower    float64 `json:"buying_power"`
	PortfolioValue float64 `json:"portfolio_value"`
	DayTradeCount  int64   `json:"daytrade_count"`
	LastEquity     float64 `json:"last_equity"`
}

// PortfolioSnapshot is the read-only view of holdings that risk tools consume.
type PortfolioSnapshot struct {
	Positions []Position `json:"positions"`
	Cash      float64    `json:"cash"`
	Equity    float64    `json:"equity"`
	AsOf      time.Time  `json:"as_of"`
}

// SignalType is the verdict of a signal.
type SignalType string

const (
	SignalTypeBuy     SignalType = "BUY"
	SignalTypeSell    SignalType = "SELL"
	SignalTypeNeutral SignalType = "NEUTRAL"
)

// Signal is a scored trading verdict for a symbol.
type Signal struct {
	ID         int64             `json:"id"`
	StrategyID string            `json:"strategy_id"`
	Symbol     string            `json:"symbol"`
	Type       SignalType        `json:"type"`
	Strength   float64           `json:"strength"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
