// Package broker defines the Broker interface and provides implementations
// for paper trading: the Alpaca paper endpoint and an in-memory simulator.
package broker

import (
	"context"

	"montewalk/internal/domain"
)

// Broker abstracts brokerage operations for order execution and account management.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca", "simulator").
	Name() string

	// SubmitOrder sends an order to the brokerage for execution and returns
	// it with the brokerage's ID, status and fill details.
	SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) error

	// GetPositions returns all current positions held at the brokerage.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
}

// PriceSource quotes the latest price for a symbol.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// PriceFunc adapts a function to PriceSource.
type PriceFunc func(ctx context.Context, symbol string) (float64, error)

// LatestPrice implements PriceSource.
func (f PriceFunc) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	return f(ctx, symbol)
}
