package tools

import (
	"context"
	"errors"
	"math"
	"time"

	"montewalk/internal/domain"
	"montewalk/internal/marketdata"
	"montewalk/internal/store"
)

// OrderRequest is a paper-trading order.
type OrderRequest struct {
	Symbol     string  `json:"symbol" validate:"required"`
	Side       string  `json:"side" validate:"required,oneof=buy sell"`
	Qty        float64 `json:"qty" validate:"gt=0"`
	Type       string  `json:"type" default:"market" validate:"oneof=market limit"`
	LimitPrice float64 `json:"limit_price" validate:"required_if=Type limit,gte=0"`
}

// PlaceOrder submits an order through the paper-trading engine. Orders
// refused by the pre-trade risk checks are stored as rejected and reported
// as invalid parameters.
func (s *Service) PlaceOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	if s.deps.Engine == nil {
		return nil, unavailable("tools.place_order", "paper trading engine")
	}
	return s.deps.Engine.SubmitOrder(ctx, &domain.Order{
		Symbol:     marketdata.NormalizeSymbol(req.Symbol),
		Side:       domain.OrderSide(req.Side),
		Type:       domain.OrderType(req.Type),
		Qty:        req.Qty,
		LimitPrice: req.LimitPrice,
	})
}

// CancelRequest names an open order.
type CancelRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// CancelResponse confirms a cancellation.
type CancelResponse struct {
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
}

// CancelOrder cancels an open order. Unknown ids and orders that are no
// longer open are invalid parameters.
func (s *Service) CancelOrder(ctx context.Context, req CancelRequest) (*CancelResponse, error) {
	const op = "tools.cancel_order"
	if s.deps.Engine == nil {
		return nil, unavailable(op, "paper trading engine")
	}
	if err := s.deps.Engine.CancelOrder(ctx, req.OrderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.InvalidParameter(op, "order_id", "no order %q", req.OrderID)
		}
		return nil, err
	}
	return &CancelResponse{OrderID: req.OrderID, Status: domain.OrderStatusCancelled}, nil
}

// OrderHistoryRequest filters orders by lifecycle: open orders are new,
// closed ones are filled, cancelled or rejected.
type OrderHistoryRequest struct {
	Status string `json:"status" default:"all" validate:"oneof=all open closed"`
}

// OrderHistoryResponse lists stored orders, oldest first.
type OrderHistoryResponse struct {
	Status string         `json:"status"`
	Orders []domain.Order `json:"orders"`
}

// GetOrderHistory returns the stored paper orders.
func (s *Service) GetOrderHistory(ctx context.Context, req OrderHistoryRequest) (*OrderHistoryResponse, error) {
	if s.deps.Engine == nil {
		return nil, unavailable("tools.get_order_history", "paper trading engine")
	}
	var filter domain.OrderStatus
	if req.Status == "open" {
		filter = domain.OrderStatusNew
	}
	orders, err := s.deps.Engine.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := &OrderHistoryResponse{Status: req.Status, Orders: []domain.Order{}}
	for _, o := range orders {
		if req.Status == "closed" && o.Status == domain.OrderStatusNew {
			continue
		}
		out.Orders = append(out.Orders, o)
	}
	return out, nil
}

// FlattenResponse holds the closing orders and, per symbol, any position
// that could not be closed.
type FlattenResponse struct {
	Orders []domain.Order    `json:"orders"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Flatten submits a market order closing every open position.
func (s *Service) Flatten(ctx context.Context, _ EmptyRequest) (*FlattenResponse, error) {
	if s.deps.Engine == nil {
		return nil, unavailable("tools.flatten", "paper trading engine")
	}
	positions, err := s.deps.Engine.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	out := &FlattenResponse{Orders: []domain.Order{}}
	for _, p := range positions {
		if p.Qty == 0 {
			continue
		}
		side := domain.OrderSideSell
		if p.Qty < 0 {
			side = domain.OrderSideBuy
		}
		o, err := s.deps.Engine.SubmitOrder(ctx, &domain.Order{
			Symbol: p.Symbol,
			Side:   side,
			Type:   domain.OrderTypeMarket,
			Qty:    math.Abs(p.Qty),
		})
		if err != nil {
			if out.Failed == nil {
				out.Failed = make(map[string]string)
			}
			out.Failed[p.Symbol] = err.Error()
			s.log.Warn().Err(err).Str("symbol", p.Symbol).Msg("flatten: closing order failed")
			continue
		}
		out.Orders = append(out.Orders, *o)
	}
	return out, nil
}

// EmptyRequest is the argument of tools that take none.
type EmptyRequest struct{}

// PositionsResponse is the paper portfolio.
type PositionsResponse struct {
	Positions []domain.Position `json:"positions"`
	Cash      float64           `json:"cash"`
	Equity    float64           `json:"equity"`
	AsOf      time.Time         `json:"as_of"`
}

// GetPositions returns the marked positions with cash and equity.
func (s *Service) GetPositions(ctx context.Context, _ EmptyRequest) (*PositionsResponse, error) {
	if s.deps.Engine == nil {
		return nil, unavailable("tools.get_positions", "paper trading engine")
	}
	snap, err := s.deps.Engine.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Positions == nil {
		snap.Positions = []domain.Position{}
	}
	return &PositionsResponse{Positions: snap.Positions, Cash: snap.Cash, Equity: snap.Equity, AsOf: snap.AsOf}, nil
}

// WatchlistChange reports the outcome of an add or remove.
type WatchlistChange struct {
	Symbol    string   `json:"symbol"`
	Changed   bool     `json:"changed"`
	Watchlist []string `json:"watchlist"`
}

// AddToWatchlist adds a symbol; adding a present symbol changes nothing.
func (s *Service) AddToWatchlist(ctx context.Context, req SymbolRequest) (*WatchlistChange, error) {
	if s.deps.Watchlist == nil {
		return nil, unavailable("tools.add_to_watchlist", "watchlist store")
	}
	symbol := marketdata.NormalizeSymbol(req.Symbol)
	changed, err := s.deps.Watchlist.AddToWatchlist(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return s.watchlistChange(ctx, symbol, changed)
}

// RemoveFromWatchlist removes a symbol; removing an absent one changes
// nothing.
func (s *Service) RemoveFromWatchlist(ctx context.Context, req SymbolRequest) (*WatchlistChange, error) {
	if s.deps.Watchlist == nil {
		return nil, unavailable("tools.remove_from_watchlist", "watchlist store")
	}
	symbol := marketdata.NormalizeSymbol(req.Symbol)
	changed, err := s.deps.Watchlist.RemoveFromWatchlist(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return s.watchlistChange(ctx, symbol, changed)
}

func (s *Service) watchlistChange(ctx context.Context, symbol string, changed bool) (*WatchlistChange, error) {
	list, err := s.deps.Watchlist.Watchlist(ctx)
	if err != nil {
		return nil, err
	}
	return &WatchlistChange{Symbol: symbol, Changed: changed, Watchlist: list}, nil
}

// WatchlistRequest controls whether latest closes are fetched.
type WatchlistRequest struct {
	WithPrices bool `json:"with_prices"`
}

// WatchlistEntry is one watched symbol. Error is set when its price could
// not be fetched.
type WatchlistEntry struct {
	Symbol    string    `json:"symbol"`
	LastClose float64   `json:"last_close,omitempty"`
	Change    float64   `json:"change_pct,omitempty"`
	AsOf      time.Time `json:"as_of,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// WatchlistResponse lists the watched symbols.
type WatchlistResponse struct {
	Symbols []WatchlistEntry `json:"symbols"`
}

// GetWatchlist returns the watchlist, optionally with each symbol's latest
// close and daily change. A failed quote is reported per symbol.
func (s *Service) GetWatchlist(ctx context.Context, req WatchlistRequest) (*WatchlistResponse, error) {
	if s.deps.Watchlist == nil {
		return nil, unavailable("tools.get_watchlist", "watchlist store")
	}
	list, err := s.deps.Watchlist.Watchlist(ctx)
	if err != nil {
		return nil, err
	}
	out := &WatchlistResponse{Symbols: make([]WatchlistEntry, len(list))}
	for i, sym := range list {
		e := WatchlistEntry{Symbol: sym}
		if req.WithPrices {
			bars, err := s.deps.Provider.GetBars(ctx, sym, "1d", "5d")
			switch {
			case err != nil:
				e.Error = domain.KindName(err)
			case len(bars) > 0:
				last := bars[len(bars)-1]
				e.LastClose, e.AsOf = last.Close, last.Timestamp
				if len(bars) > 1 && bars[len(bars)-2].Close > 0 {
					e.Change = (last.Close/bars[len(bars)-2].Close - 1) * 100
				}
			}
		}
		out.Symbols[i] = e
	}
	return out, nil
}
