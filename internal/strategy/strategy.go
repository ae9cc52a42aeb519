// Package strategy defines the Strategy interface for trading strategies,
// a Registry of named strategy factories, the bar-replay Backtester and the
// walk-forward validator built on top of it.
package strategy

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"montewalk/internal/domain"
)

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Warmup returns how many bars the strategy needs before its first
	// non-flat decision.
	Warmup() int

	// Init performs any one-time setup required before the strategy begins
	// processing market data.
	Init(ctx context.Context) error

	// Positions returns the target exposure decided at the close of each bar.
	// The result has the same length as bars. A strategy may return SHORT;
	// the backtester treats it as FLAT unless shorting is allowed.
	Positions(ctx context.Context, bars []domain.Bar) ([]domain.PositionSide, error)
}

// Params are numeric strategy parameters, e.g. {"fast": 20, "slow": 50}.
type Params map[string]float64

// Int returns p[key] as an int, or def when absent.
func (p Params) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

// String renders the parameters in key order, e.g. "fast=20,slow=50".
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(p[k], 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// Clone returns a copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Factory builds a strategy from parameters.
type Factory func(p Params) (Strategy, error)

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory to the registry under name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// New builds the named strategy with p.
func (r *Registry) New(name string, p Params) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, domain.InvalidParameter("strategy.New", "strategy", "unknown strategy %q (have %s)", name, strings.Join(r.List(), ", "))
	}
	return f(p)
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
