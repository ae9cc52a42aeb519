package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"montewalk/internal/domain"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

type simPosition struct {
	qty     decimal.Decimal
	avgCost decimal.Decimal
}

// SimulatorBroker implements the Broker interface for paper trading. Market
// orders fill immediately at the quoted price; limit orders fill when the
// quote is at or through the limit and otherwise rest until cancelled.
// Cash and quantities are tracked in decimal to keep the ledger exact.
type SimulatorBroker struct {
	mu         sync.Mutex
	prices     PriceSource
	cash       decimal.Decimal
	lastEquity decimal.Decimal
	allowShort bool
	positions  map[string]*simPosition
	orders     map[string]*domain.Order
	now        func() time.Time
}

// SimulatorOption customizes a SimulatorBroker.
type SimulatorOption func(*SimulatorBroker)

// WithShorting lets sells exceed the held quantity.
func WithShorting() SimulatorOption {
	return func(b *SimulatorBroker) { b.allowShort = true }
}

// NewSimulatorBroker creates a SimulatorBroker holding startingCash and
// quoting fills from prices.
func NewSimulatorBroker(prices PriceSource, startingCash float64, opts ...SimulatorOption) *SimulatorBroker {
	b := &SimulatorBroker{
		prices:     prices,
		cash:       decimal.NewFromFloat(startingCash),
		lastEquity: decimal.NewFromFloat(startingCash),
		positions:  make(map[string]*simPosition),
		orders:     make(map[string]*domain.Order),
		now:        time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// SubmitOrder prices the order and fills it when it is marketable.
func (b *SimulatorBroker) SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if order.Qty <= 0 {
		return nil, domain.InvalidParameter("broker.SubmitOrder", "qty", "must be positive, got %v", order.Qty)
	}
	price, err := b.prices.LatestPrice(ctx, order.Symbol)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", order.Symbol, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o := *order
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Type == "" {
		o.Type = domain.OrderTypeMarket
	}
	now := b.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.Status = domain.OrderStatusNew

	if b.marketable(&o, price) {
		if err := b.fill(&o, price); err != nil {
			o.Status = domain.OrderStatusRejected
			b.orders[o.ID] = &o
			out := o
			return &out, err
		}
	}
	b.orders[o.ID] = &o
	out := o
	return &out, nil
}

func (b *SimulatorBroker) marketable(o *domain.Order, price float64) bool {
	if o.Type != domain.OrderTypeLimit {
		return true
	}
	if o.Side == domain.OrderSideBuy {
		return price <= o.LimitPrice
	}
	return price >= o.LimitPrice
}

// fill applies o at price. The caller holds b.mu.
func (b *SimulatorBroker) fill(o *domain.Order, price float64) error {
	qty := decimal.NewFromFloat(o.Qty)
	px := decimal.NewFromFloat(price)
	notional := qty.Mul(px)

	pos, ok := b.positions[o.Symbol]
	if !ok {
		pos = &simPosition{}
	}
	signed := qty
	switch o.Side {
	case domain.OrderSideBuy:
		if notional.GreaterThan(b.cash) && !pos.qty.IsNegative() {
			return fmt.Errorf("insufficient cash: need %s, have %s", notional.StringFixed(2), b.cash.StringFixed(2))
		}
		b.cash = b.cash.Sub(notional)
	case domain.OrderSideSell:
		if !b.allowShort && qty.GreaterThan(pos.qty) {
			return fmt.Errorf("cannot sell %s %s, holding %s", qty, o.Symbol, pos.qty)
		}
		b.cash = b.cash.Add(notional)
		signed = qty.Neg()
	default:
		return domain.InvalidParameter("broker.SubmitOrder", "side", "unknown side %q", o.Side)
	}

	newQty := pos.qty.Add(signed)
	switch {
	case newQty.IsZero():
		delete(b.positions, o.Symbol)
	case pos.qty.IsZero() || pos.qty.Sign() != newQty.Sign():
		// Opened or flipped: cost basis restarts at the fill price.
		b.positions[o.Symbol] = &simPosition{qty: newQty, avgCost: px}
	case pos.qty.Sign() == signed.Sign():
		// Added to the position: weighted average cost.
		cost := pos.qty.Abs().Mul(pos.avgCost).Add(notional)
		b.positions[o.Symbol] = &simPosition{qty: newQty, avgCost: cost.Div(newQty.Abs())}
	default:
		pos.qty = newQty
		b.positions[o.Symbol] = pos
	}

	o.Status = domain.OrderStatusFilled
	o.FilledQty = o.Qty
	o.FilledAvgPrice = price
	return nil
}

// CancelOrder cancels a resting order.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	if o.Status != domain.OrderStatusNew {
		return fmt.Errorf("order %s is %s", orderID, o.Status)
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = b.now()
	return nil
}

// GetPositions returns the simulated positions marked at the latest
// quotes, sorted by symbol.
func (b *SimulatorBroker) GetPositions(ctx context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	snapshot := make(map[string]simPosition, len(b.positions))
	for sym, p := range b.positions {
		snapshot[sym] = *p
	}
	b.mu.Unlock()

	out := make([]domain.Position, 0, len(snapshot))
	for sym, p := range snapshot {
		qty := p.qty.InexactFloat64()
		pos := domain.Position{
			Symbol:  sym,
			Qty:     qty,
			AvgCost: p.avgCost.InexactFloat64(),
			Side:    domain.PositionSideLong,
		}
		if qty < 0 {
			pos.Side = domain.PositionSideShort
		}
		price, err := b.prices.LatestPrice(ctx, sym)
		if err != nil {
			return nil, fmt.Errorf("quote %s: %w", sym, err)
		}
		pos.CurrentPrice = price
		pos.MarketValue = p.qty.Mul(decimal.NewFromFloat(price)).InexactFloat64()
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// GetAccount returns cash and marked equity.
func (b *SimulatorBroker) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	positions, err := b.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	cash := b.cash
	last := b.lastEquity
	b.mu.Unlock()

	equity := cash
	for _, p := range positions {
		equity = equity.Add(decimal.NewFromFloat(p.MarketValue))
	}
	return &domain.AccountInfo{
		Cash:           cash.InexactFloat64(),
		Equity:         equity.InexactFloat64(),
		BuyingPower:    decimal.Max(cash, decimal.Zero).InexactFloat64(),
		PortfolioValue: equity.InexactFloat64(),
		LastEquity:     last.InexactFloat64(),
	}, nil
}
