// Package engine coordinates paper-trading order management, position
// tracking and pre-trade risk checks, and serves portfolio snapshots to the
// risk tools.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"montewalk/internal/broker"
	"montewalk/internal/domain"
	"montewalk/internal/store"
)

// Engine orchestrates the trading lifecycle by delegating to a broker for
// execution, stores for persistence, and a risk manager for pre-trade checks.
type Engine struct {
	broker      broker.Broker
	prices      broker.PriceSource
	orders      store.OrderStore
	positions   store.PositionStore
	riskChecker *RiskManager
	now         func() time.Time
	log         zerolog.Logger
}

// NewEngine creates a new Engine wired with the given dependencies.
func NewEngine(
	b broker.Broker,
	prices broker.PriceSource,
	orders store.OrderStore,
	positions store.PositionStore,
	riskChecker *RiskManager,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		broker:      b,
		prices:      prices,
		orders:      orders,
		positions:   positions,
		riskChecker: riskChecker,
		now:         time.Now,
		log:         logger.With().Str("component", "engine").Logger(),
	}
}

func validateOrder(o *domain.Order) error {
	const op = "engine.SubmitOrder"
	switch {
	case o.Symbol == "":
		return domain.InvalidParameter(op, "symbol", "is required")
	case !(o.Qty > 0):
		return domain.InvalidParameter(op, "qty", "must be positive, got %v", o.Qty)
	case o.Side != domain.OrderSideBuy && o.Side != domain.OrderSideSell:
		return domain.InvalidParameter(op, "side", "must be buy or sell, got %q", o.Side)
	case o.Type != domain.OrderTypeMarket && o.Type != domain.OrderTypeLimit:
		return domain.InvalidParameter(op, "type", "must be market or limit, got %q", o.Type)
	case o.Type == domain.OrderTypeLimit && !(o.LimitPrice > 0):
		return domain.InvalidParameter(op, "limit_price", "must be positive for limit orders, got %v", o.LimitPrice)
	}
	return nil
}

// SubmitOrder validates the order against risk rules, persists it and
// forwards it to the broker. Rejected orders are persisted too.
func (e *Engine) SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	o := *order
	o.Symbol = strings.ToUpper(strings.TrimSpace(o.Symbol))
	if o.Type == "" {
		o.Type = domain.OrderTypeMarket
	}
	if err := validateOrder(&o); err != nil {
		return nil, err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := e.now()
	o.CreatedAt, o.UpdatedAt = now, now
	o.Status = domain.OrderStatusNew

	if err := e.checkRisk(ctx, &o); err != nil {
		o.Status = domain.OrderStatusRejected
		if serr := e.orders.SaveOrder(ctx, &o); serr != nil {
			e.log.Error().Err(serr).Str("order", o.ID).Msg("saving rejected order failed")
		}
		e.log.Warn().Err(err).Str("symbol", o.Symbol).Msg("order rejected")
		return &o, err
	}

	if err := e.orders.SaveOrder(ctx, &o); err != nil {
		return nil, fmt.Errorf("saving order: %w", err)
	}
	placed, err := e.broker.SubmitOrder(ctx, &o)
	if err != nil {
		o.Status = domain.OrderStatusRejected
		o.UpdatedAt = e.now()
		if uerr := e.orders.UpdateOrder(ctx, &o); uerr != nil {
			e.log.Error().Err(uerr).Str("order", o.ID).Msg("updating rejected order failed")
		}
		return &o, fmt.Errorf("%s: %w", e.broker.Name(), err)
	}

	o.Status = placed.Status
	o.FilledQty = placed.FilledQty
	o.FilledAvgPrice = placed.FilledAvgPrice
	o.UpdatedAt = e.now()
	if placed.ID != "" && placed.ID != o.ID {
		e.log.Debug().Str("order", o.ID).Str("broker_id", placed.ID).Msg("broker assigned order id")
	}
	if err := e.orders.UpdateOrder(ctx, &o); err != nil {
		return nil, fmt.Errorf("updating order: %w", err)
	}
	if o.Status == domain.OrderStatusFilled {
		if err := e.syncPositions(ctx); err != nil {
			return nil, err
		}
	}
	e.log.Info().
		Str("order", o.ID).
		Str("symbol", o.Symbol).
		Str("side", string(o.Side)).
		Float64("qty", o.Qty).
		Str("status", string(o.Status)).
		Msg("order submitted")
	return &o, nil
}

func (e *Engine) checkRisk(ctx context.Context, o *domain.Order) error {
	if e.riskChecker == nil {
		return nil
	}
	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	price := o.LimitPrice
	if o.Type == domain.OrderTypeMarket {
		if price, err = e.prices.LatestPrice(ctx, o.Symbol); err != nil {
			return fmt.Errorf("quote %s: %w", o.Symbol, err)
		}
	}
	var current float64
	pos, err := e.positions.GetPosition(ctx, o.Symbol)
	switch {
	case err == nil:
		current = pos.Qty
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("position %s: %w", o.Symbol, err)
	}
	return e.riskChecker.CheckOrder(ctx, o, price, current, account)
}

// syncPositions mirrors the broker's positions into the position store.
func (e *Engine) syncPositions(ctx context.Context) error {
	live, err := e.broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("broker positions: %w", err)
	}
	stored, err := e.positions.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("stored positions: %w", err)
	}
	held := make(map[string]bool, len(live))
	for i := range live {
		held[live[i].Symbol] = true
		if err := e.positions.SavePosition(ctx, &live[i]); err != nil {
			return fmt.Errorf("saving position %s: %w", live[i].Symbol, err)
		}
	}
	for _, p := range stored {
		if !held[p.Symbol] {
			if err := e.positions.DeletePosition(ctx, p.Symbol); err != nil {
				return fmt.Errorf("deleting position %s: %w", p.Symbol, err)
			}
		}
	}
	return nil
}

// CancelOrder requests cancellation of an open order.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	o, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order %s: %w", orderID, err)
	}
	if o.Status != domain.OrderStatusNew {
		return domain.InvalidParameter("engine.CancelOrder", "order_id", "order %s is %s", orderID, o.Status)
	}
	if err := e.broker.CancelOrder(ctx, orderID); err != nil {
		return err
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = e.now()
	return e.orders.UpdateOrder(ctx, o)
}

// ListOrders returns stored orders with the given status, or all of them.
func (e *Engine) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return e.orders.ListOrders(ctx, status)
}

// GetPositions returns all currently open positions marked at the latest
// prices.
func (e *Engine) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return e.broker.GetPositions(ctx)
}

// GetCash returns the account's cash balance.
func (e *Engine) GetCash(ctx context.Context) (float64, error) {
	acct, err := e.broker.GetAccount(ctx)
	if err != nil {
		return 0, err
	}
	return acct.Cash, nil
}

// Account returns the broker account summary.
func (e *Engine) Account(ctx context.Context) (*domain.AccountInfo, error) {
	return e.broker.GetAccount(ctx)
}

// Snapshot returns the read-only portfolio view consumed by risk tools.
func (e *Engine) Snapshot(ctx context.Context) (domain.PortfolioSnapshot, error) {
	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	acct, err := e.broker.GetAccount(ctx)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	return domain.PortfolioSnapshot{
		Positions: positions,
		Cash:      acct.Cash,
		Equity:    acct.Equity,
		AsOf:      e.now(),
	}, nil
}
