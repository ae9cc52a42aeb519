package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"montewalk/internal/broker"
	"montewalk/internal/domain"
	"montewalk/internal/store"
)

type quotes map[string]float64

func (q quotes) LatestPrice(_ context.Context, symbol string) (float64, error) {
	if p, ok := q[symbol]; ok {
		return p, nil
	}
	return 0, errors.New("no quote")
}

func newTestEngine(t *testing.T, q quotes, rm *RiskManager) (*Engine, *store.SQLiteStore) {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	b := broker.NewSimulatorBroker(q, 100_000)
	return NewEngine(b, q, db, db, rm, zerolog.Nop()), db
}

func TestRiskManagerCheckOrder(t *testing.T) {
	rm := NewRiskManager(0.10, 0.02)
	ctx := context.Background()
	account := &domain.AccountInfo{Equity: 100_000, Cash: 50_000, LastEquity: 100_000}
	buy := func(qty float64) *domain.Order {
		return &domain.Order{Symbol: "AAPL", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Qty: qty}
	}

	assert.NoError(t, rm.CheckOrder(ctx, buy(10), 100, 0, account))

	err := rm.CheckOrder(ctx, buy(200), 100, 0, account)
	assert.True(t, errors.Is(err, ErrRiskRejected), "20 pct of equity exceeds the 10 pct limit")

	err = rm.CheckOrder(ctx, buy(10), 100, 95, account)
	assert.True(t, errors.Is(err, ErrRiskRejected), "resulting position counts, not the order alone")

	sell := &domain.Order{Symbol: "AAPL", Side: domain.OrderSideSell, Qty: 50}
	assert.NoError(t, rm.CheckOrder(ctx, sell, 100, 500, account), "reducing exposure always passes")

	down := &domain.AccountInfo{Equity: 97_000, LastEquity: 100_000}
	err = rm.CheckOrder(ctx, buy(1), 100, 0, down)
	assert.True(t, errors.Is(err, ErrRiskRejected), "3 pct daily loss breaches the 2 pct limit")
}

func TestEngineSubmitFillsAndPersists(t *testing.T) {
	ctx := context.Background()
	q := quotes{"AAPL": 200}
	e, db := newTestEngine(t, q, NewRiskManager(0.25, 0.05))

	o, err := e.SubmitOrder(ctx, &domain.Order{Symbol: "aapl", Side: domain.OrderSideBuy, Qty: 50})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", o.Symbol)
	assert.Equal(t, domain.OrderTypeMarket, o.Type)
	assert.Equal(t, domain.OrderStatusFilled, o.Status)

	stored, err := db.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, stored.Status)
	assert.Equal(t, 200.0, stored.FilledAvgPrice)

	pos, err := db.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 50.0, pos.Qty)

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 90_000.0, snap.Cash)
	assert.Equal(t, 100_000.0, snap.Equity)

	cash, err := e.GetCash(ctx)
	require.NoError(t, err)
	assert.Equal(t, 90_000.0, cash)

	_, err = e.SubmitOrder(ctx, &domain.Order{Symbol: "AAPL", Side: domain.OrderSideSell, Qty: 50})
	require.NoError(t, err)
	_, err = db.GetPosition(ctx, "AAPL")
	assert.True(t, errors.Is(err, store.ErrNotFound), "closed positions are removed from the store")
}

func TestEngineRejectsRiskyOrder(t *testing.T) {
	ctx := context.Background()
	e, db := newTestEngine(t, quotes{"NVDA": 1000}, NewRiskManager(0.10, 0.05))

	o, err := e.SubmitOrder(ctx, &domain.Order{Symbol: "NVDA", Side: domain.OrderSideBuy, Qty: 20})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRiskRejected))
	assert.Equal(t, domain.OrderStatusRejected, o.Status)

	rejected, err := e.ListOrders(ctx, domain.OrderStatusRejected)
	require.NoError(t, err)
	assert.Len(t, rejected, 1)

	positions, err := db.ListPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestEngineValidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, quotes{"SPY": 500}, nil)
	bad := []*domain.Order{
		{Side: domain.OrderSideBuy, Qty: 1},
		{Symbol: "SPY", Side: domain.OrderSideBuy, Qty: -1},
		{Symbol: "SPY", Side: "hold", Qty: 1},
		{Symbol: "SPY", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Qty: 1},
	}
	for _, o := range bad {
		_, err := e.SubmitOrder(ctx, o)
		assert.True(t, errors.Is(err, domain.ErrInvalidParameter), "%+v: %v", o, err)
	}
}

func TestEngineCancelOrder(t *testing.T) {
	ctx := context.Background()
	e, db := newTestEngine(t, quotes{"SPY": 500}, nil)

	o, err := e.SubmitOrder(ctx, &domain.Order{Symbol: "SPY", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Qty: 1, LimitPrice: 450})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusNew, o.Status)

	require.NoError(t, e.CancelOrder(ctx, o.ID))
	stored, err := db.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, stored.Status)

	assert.True(t, errors.Is(e.CancelOrder(ctx, o.ID), domain.ErrInvalidParameter))
	assert.True(t, errors.Is(e.CancelOrder(ctx, "missing"), store.ErrNotFound))
}
