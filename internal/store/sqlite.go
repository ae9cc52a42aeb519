package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"montewalk/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ OrderStore = (*SQLiteStore)(nil)
var _ PositionStore = (*SQLiteStore)(nil)
var _ WatchlistStore = (*SQLiteStore)(nil)
var _ SignalStore = (*SQLiteStore)(nil)
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements the order, position, watchlist, signal and run
// stores backed by a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	type             TEXT NOT NULL,
	qty              REAL NOT NULL,
	limit_price      REAL NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	filled_qty       REAL NOT NULL DEFAULT 0,
	filled_avg_price REAL NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS positions (
	symbol        TEXT PRIMARY KEY,
	qty           REAL NOT NULL,
	avg_cost      REAL NOT NULL,
	side          TEXT NOT NULL,
	current_price REAL NOT NULL DEFAULT 0,
	market_value  REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS watchlist (
	symbol   TEXT PRIMARY KEY,
	added_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	type        TEXT NOT NULL,
	strength    REAL NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_strategy ON signals(strategy_id, created_at);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	params       TEXT NOT NULL DEFAULT '{}',
	total_return REAL NOT NULL,
	sharpe_ratio REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	consistency  REAL NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func unixNano(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnixNano(n int64) time.Time { return time.Unix(0, n).UTC() }

// ---------------------------------------------------------------------------
// OrderStore implementation
// ---------------------------------------------------------------------------

const orderColumns = `id, symbol, side, type, qty, limit_price, status, filled_qty, filled_avg_price, created_at, updated_at`

// SaveOrder inserts a new order into the database.
func (s *SQLiteStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Symbol, string(o.Side), string(o.Type), o.Qty, o.LimitPrice, string(o.Status),
		o.FilledQty, o.FilledAvgPrice, unixNano(o.CreatedAt), unixNano(o.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving order %s: %w", o.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (domain.Order, error) {
	var (
		o                    domain.Order
		side, typ, status    string
		createdAt, updatedAt int64
	)
	err := row.Scan(&o.ID, &o.Symbol, &side, &typ, &o.Qty, &o.LimitPrice, &status,
		&o.FilledQty, &o.FilledAvgPrice, &createdAt, &updatedAt)
	if err != nil {
		return o, err
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(typ)
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = fromUnixNano(createdAt)
	o.UpdatedAt = fromUnixNano(updatedAt)
	return o, nil
}

// GetOrder retrieves a single order by its ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders returns all orders matching the given status, oldest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateOrder persists changes to an existing order.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, o *domain.Order) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, filled_qty = ?, filled_avg_price = ?, limit_price = ?, updated_at = ? WHERE id = ?`,
		string(o.Status), o.FilledQty, o.FilledAvgPrice, o.LimitPrice, unixNano(o.UpdatedAt), o.ID)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", o.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s: %w", o.ID, ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// PositionStore implementation
// ---------------------------------------------------------------------------

const positionColumns = `symbol, qty, avg_cost, side, current_price, market_value`

// SavePosition inserts or updates a position for a symbol.
func (s *SQLiteStore) SavePosition(ctx context.Context, p *domain.Position) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO positions (`+positionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		strings.ToUpper(p.Symbol), p.Qty, p.AvgCost, string(p.Side), p.CurrentPrice, p.MarketValue)
	if err != nil {
		return fmt.Errorf("saving position %s: %w", p.Symbol, err)
	}
	return nil
}

func scanPosition(row scanner) (domain.Position, error) {
	var (
		p    domain.Position
		side string
	)
	if err := row.Scan(&p.Symbol, &p.Qty, &p.AvgCost, &side, &p.CurrentPrice, &p.MarketValue); err != nil {
		return p, err
	}
	p.Side = domain.PositionSide(side)
	return p, nil
}

// GetPosition retrieves the current position for a symbol.
func (s *SQLiteStore) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE symbol = ?`, strings.ToUpper(symbol))
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("position %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPositions returns all open positions ordered by symbol.
func (s *SQLiteStore) ListPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// DeletePosition removes the position for a symbol.
func (s *SQLiteStore) DeletePosition(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, strings.ToUpper(symbol))
	return err
}

// ---------------------------------------------------------------------------
// WatchlistStore implementation
// ---------------------------------------------------------------------------

// AddToWatchlist adds symbol and reports whether it was new.
func (s *SQLiteStore) AddToWatchlist(ctx context.Context, symbol string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO watchlist (symbol, added_at) VALUES (?, ?)`,
		strings.ToUpper(symbol), unixNano(time.Now()))
	if err != nil {
		return false, fmt.Errorf("adding %s to watchlist: %w", symbol, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RemoveFromWatchlist removes symbol and reports whether it was present.
func (s *SQLiteStore) RemoveFromWatchlist(ctx context.Context, symbol string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watchlist WHERE symbol = ?`, strings.ToUpper(symbol))
	if err != nil {
		return false, fmt.Errorf("removing %s from watchlist: %w", symbol, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Watchlist returns the symbols in insertion order.
func (s *SQLiteStore) Watchlist(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol FROM watchlist ORDER BY added_at, symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// ---------------------------------------------------------------------------
// SignalStore implementation
// ---------------------------------------------------------------------------

// SaveSignal inserts a new signal into the database and sets its ID.
func (s *SQLiteStore) SaveSignal(ctx context.Context, sig *domain.Signal) error {
	meta, err := json.Marshal(sig.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (strategy_id, symbol, type, strength, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sig.StrategyID, sig.Symbol, string(sig.Type), sig.Strength, string(meta), unixNano(sig.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving signal for %s: %w", sig.Symbol, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sig.ID = id
	return nil
}

// ListSignals returns the most recent signals for a strategy, up to limit.
func (s *SQLiteStore) ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy_id, symbol, type, strength, metadata, created_at FROM signals
		 WHERE strategy_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, strategyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var (
			sig       domain.Signal
			typ, meta string
			createdAt int64
		)
		if err := rows.Scan(&sig.ID, &sig.StrategyID, &sig.Symbol, &typ, &sig.Strength, &meta, &createdAt); err != nil {
			return nil, err
		}
		sig.Type = domain.SignalType(typ)
		sig.CreatedAt = fromUnixNano(createdAt)
		if err := json.Unmarshal([]byte(meta), &sig.Metadata); err != nil {
			return nil, fmt.Errorf("signal %d metadata: %w", sig.ID, err)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts a run summary.
func (s *SQLiteStore) SaveRun(ctx context.Context, r *Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, strategy, symbol, params, total_return, sharpe_ratio, max_drawdown, consistency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Strategy, r.Symbol, r.Params, r.TotalReturn, r.SharpeRatio, r.MaxDrawdown,
		r.Consistency, unixNano(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns the newest runs first, up to limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, strategy, symbol, params, total_return, sharpe_ratio, max_drawdown, consistency, created_at
		 FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.Kind, &r.Strategy, &r.Symbol, &r.Params, &r.TotalReturn,
			&r.SharpeRatio, &r.MaxDrawdown, &r.Consistency, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = fromUnixNano(createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
