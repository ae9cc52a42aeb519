package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"montewalk/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	tests := []struct {
		market domain.Market
		symbol string
		year   int
		want   string
	}{
		{domain.MarketUS, "aapl", 2024, filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")},
		{domain.MarketCrypto, "BTCUSD", 2023, filepath.Join("/data", "crypto", "daily", "BTCUSD", "2023.parquet")},
		{domain.MarketCrypto, "btc/usd", 2023, filepath.Join("/data", "crypto", "daily", "BTC-USD", "2023.parquet")},
	}
	for _, tt := range tests {
		if got := ps.yearFile(tt.market, tt.symbol, tt.year); got != tt.want {
			t.Errorf("yearFile(%s, %s, %d) = %s, want %s", tt.market, tt.symbol, tt.year, got, tt.want)
		}
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol: "AAPL", Timestamp: day(2023, 12, 29),
			Open: 193.9, High: 194.4, Low: 191.7, Close: 192.5, Volume: 42000000,
		},
		{
			Symbol: "AAPL", Timestamp: day(2024, 1, 2),
			Open: 185.0, High: 186.5, Low: 184.0, Close: 185.5,
			Volume: 50000000, TradeCount: 500000, VWAP: 185.25,
		},
		{
			Symbol: "AAPL", Timestamp: day(2024, 1, 3),
			Open: 185.5, High: 187.0, Low: 185.0, Close: 186.0,
			Volume: 45000000, TradeCount: 450000, VWAP: 185.75,
		},
	}
	if err := ps.WriteBars(ctx, domain.MarketUS, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// Spans the year boundary so two files are read.
	got, err := ps.ReadBars(ctx, "aapl", domain.MarketUS, day(2023, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ReadBars returned %d bars, want 3", len(got))
	}
	if got[0].Close != 192.5 || got[1].Close != 185.5 || got[2].Close != 186.0 {
		t.Errorf("closes = %v %v %v, want 192.5 185.5 186", got[0].Close, got[1].Close, got[2].Close)
	}
	if !got[1].Timestamp.Equal(day(2024, 1, 2)) {
		t.Errorf("Timestamp = %s, want 2024-01-02", got[1].Timestamp)
	}
	if got[1].VWAP != 185.25 || got[1].TradeCount != 500000 {
		t.Errorf("VWAP/TradeCount = %v/%v, want 185.25/500000", got[1].VWAP, got[1].TradeCount)
	}

	// Range filter is inclusive on both ends.
	got, err = ps.ReadBars(ctx, "AAPL", domain.MarketUS, day(2024, 1, 2), day(2024, 1, 2))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("ReadBars single day returned %d bars, want 1", len(got))
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day(2024, 3, 1), Open: 400, High: 405, Low: 399, Close: 403, Volume: 30000000},
	}
	if err := ps.WriteBars(ctx, domain.MarketUS, first); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// A new day merges; a repeated day replaces.
	second := []domain.Bar{
		{Symbol: "MSFT", Timestamp: day(2024, 3, 4), Open: 403, High: 410, Low: 402, Close: 408, Volume: 35000000},
		{Symbol: "MSFT", Timestamp: day(2024, 3, 1), Open: 400, High: 405, Low: 399, Close: 404, Volume: 30000000},
	}
	if err := ps.WriteBars(ctx, domain.MarketUS, second); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, "MSFT", domain.MarketUS, day(2024, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 404 {
		t.Errorf("replaced bar Close = %v, want 404", got[0].Close)
	}
}

func TestParquetStoreReadMissingSymbol(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	got, err := ps.ReadBars(context.Background(), "NOPE", domain.MarketUS, day(2024, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadBars returned %d bars, want 0", len(got))
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "GOOGL", Timestamp: day(2024, 1, 2), Open: 140, High: 141, Low: 139, Close: 140.5},
		{Symbol: "AAPL", Timestamp: day(2024, 1, 2), Open: 185, High: 186, Low: 184, Close: 185.5},
	}
	if err := ps.WriteBars(ctx, domain.MarketUS, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, domain.MarketUS)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}

	none, err := ps.ListSymbols(ctx, domain.MarketCrypto)
	if err != nil || len(none) != 0 {
		t.Errorf("ListSymbols(crypto) = %v, %v; want empty", none, err)
	}
}

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() returned error: %v", err)
		}
	})
	return s
}

func TestSQLiteStoreOrders(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)

	o := &domain.Order{
		ID: "ord-1", Symbol: "AAPL", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket,
		Qty: 10, Status: domain.OrderStatusNew, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.SaveOrder(ctx, o); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	o.Status = domain.OrderStatusFilled
	o.FilledQty = 10
	o.FilledAvgPrice = 170.25
	o.UpdatedAt = now.Add(time.Second)
	if err := s.UpdateOrder(ctx, o); err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}

	got, err := s.GetOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != domain.OrderStatusFilled || got.FilledAvgPrice != 170.25 {
		t.Errorf("GetOrder = %+v, want filled at 170.25", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %s, want %s", got.CreatedAt, now)
	}

	filled, err := s.ListOrders(ctx, domain.OrderStatusFilled)
	if err != nil || len(filled) != 1 {
		t.Errorf("ListOrders(filled) = %v, %v; want 1 order", filled, err)
	}
	open, err := s.ListOrders(ctx, domain.OrderStatusNew)
	if err != nil || len(open) != 0 {
		t.Errorf("ListOrders(new) = %v, %v; want none", open, err)
	}

	if _, err := s.GetOrder(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetOrder(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateOrder(ctx, &domain.Order{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateOrder(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorePositions(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	for _, p := range []*domain.Position{
		{Symbol: "msft", Qty: 5, AvgCost: 400, Side: domain.PositionSideLong},
		{Symbol: "AAPL", Qty: -3, AvgCost: 180, Side: domain.PositionSideShort},
	} {
		if err := s.SavePosition(ctx, p); err != nil {
			t.Fatalf("SavePosition: %v", err)
		}
	}
	// Upsert.
	if err := s.SavePosition(ctx, &domain.Position{Symbol: "MSFT", Qty: 8, AvgCost: 405, Side: domain.PositionSideLong}); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	all, err := s.ListPositions(ctx)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(all) != 2 || all[0].Symbol != "AAPL" || all[1].Qty != 8 {
		t.Errorf("ListPositions = %+v", all)
	}

	if err := s.DeletePosition(ctx, "aapl"); err != nil {
		t.Fatalf("DeletePosition: %v", err)
	}
	if _, err := s.GetPosition(ctx, "AAPL"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPosition after delete error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreWatchlist(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	added, err := s.AddToWatchlist(ctx, "nvda")
	if err != nil || !added {
		t.Fatalf("AddToWatchlist = %v, %v; want true", added, err)
	}
	added, err = s.AddToWatchlist(ctx, "NVDA")
	if err != nil || added {
		t.Errorf("duplicate AddToWatchlist = %v, %v; want false", added, err)
	}
	if _, err := s.AddToWatchlist(ctx, "AMD"); err != nil {
		t.Fatalf("AddToWatchlist: %v", err)
	}

	list, err := s.Watchlist(ctx)
	if err != nil {
		t.Fatalf("Watchlist: %v", err)
	}
	if len(list) != 2 || list[0] != "NVDA" {
		t.Errorf("Watchlist = %v, want [NVDA AMD]", list)
	}

	removed, err := s.RemoveFromWatchlist(ctx, "TSLA")
	if err != nil || removed {
		t.Errorf("RemoveFromWatchlist(absent) = %v, %v; want false", removed, err)
	}
	removed, err = s.RemoveFromWatchlist(ctx, "nvda")
	if err != nil || !removed {
		t.Errorf("RemoveFromWatchlist = %v, %v; want true", removed, err)
	}
}

func TestSQLiteStoreSignalsAndRuns(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, typ := range []domain.SignalType{domain.SignalTypeBuy, domain.SignalTypeSell} {
		sig := &domain.Signal{
			StrategyID: "technical-summary", Symbol: "SPY", Type: typ, Strength: float64(2 - 3*i),
			Metadata: map[string]string{"label": "STRONG"}, CreatedAt: base.AddDate(0, 0, i),
		}
		if err := s.SaveSignal(ctx, sig); err != nil {
			t.Fatalf("SaveSignal: %v", err)
		}
		if sig.ID == 0 {
			t.Error("SaveSignal should assign an ID")
		}
	}
	sigs, err := s.ListSignals(ctx, "technical-summary", 1)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(sigs) != 1 || sigs[0].Type != domain.SignalTypeSell || sigs[0].Metadata["label"] != "STRONG" {
		t.Errorf("ListSignals = %+v, want newest SELL", sigs)
	}

	run := &Run{
		ID: "run-1", Kind: "backtest", Strategy: "sma_cross", Symbol: "SPY",
		Params: `{"fast":20,"slow":50}`, TotalReturn: 0.12, SharpeRatio: 1.1, MaxDrawdown: 0.08,
		CreatedAt: base,
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Params != run.Params || runs[0].TotalReturn != 0.12 {
		t.Errorf("ListRuns = %+v", runs)
	}
}
