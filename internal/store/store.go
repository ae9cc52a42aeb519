// Package store defines storage interfaces for persisting and retrieving
// domain objects such as bars, orders, positions, the watchlist, signals and
// backtest run summaries.
package store

import (
	"context"
	"errors"
	"time"

	"montewalk/internal/domain"
)

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, market domain.Market, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market domain.Market, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}

// OrderStore persists and retrieves order records.
type OrderStore interface {
	// SaveOrder inserts a new order into storage.
	SaveOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves a single order by its ID.
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// ListOrders returns all orders matching the given status, or every
	// order when status is empty.
	ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)

	// UpdateOrder persists changes to an existing order.
	UpdateOrder(ctx context.Context, order *domain.Order) error
}

// PositionStore persists and retrieves position records.
type PositionStore interface {
	// SavePosition inserts or updates a position for a symbol.
	SavePosition(ctx context.Context, pos *domain.Position) error

	// GetPosition retrieves the current position for a symbol.
	GetPosition(ctx context.Context, symbol string) (*domain.Position, error)

	// ListPositions returns all open positions.
	ListPositions(ctx context.Context) ([]domain.Position, error)

	// DeletePosition removes the position for a symbol.
	DeletePosition(ctx context.Context, symbol string) error
}

// WatchlistStore keeps the user's watchlist.
type WatchlistStore interface {
	// AddToWatchlist adds symbol and reports whether it was new.
	AddToWatchlist(ctx context.Context, symbol string) (bool, error)

	// RemoveFromWatchlist removes symbol and reports whether it was present.
	RemoveFromWatchlist(ctx context.Context, symbol string) (bool, error)

	// Watchlist returns the symbols in insertion order.
	Watchlist(ctx context.Context) ([]string, error)
}

// SignalStore persists and retrieves trading signals.
type SignalStore interface {
	// SaveSignal inserts a new signal into storage.
	SaveSignal(ctx context.Context, signal *domain.Signal) error

	// ListSignals returns the most recent signals for a strategy, up to limit.
	ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.Signal, error)
}

// Run is the persisted summary of one backtest or walk-forward analysis.
type Run struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Strategy    string    `json:"strategy"`
	Symbol      string    `json:"symbol"`
	Params      string    `json:"params"`
	TotalReturn float64   `json:"total_return"`
	SharpeRatio float64   `json:"sharpe_ratio"`
	MaxDrawdown float64   `json:"max_drawdown"`
	Consistency float64   `json:"consistency,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunStore keeps backtest run summaries.
type RunStore interface {
	// SaveRun inserts a run summary.
	SaveRun(ctx context.Context, run *Run) error

	// ListRuns returns the newest runs first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
