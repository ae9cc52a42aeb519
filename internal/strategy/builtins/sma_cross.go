// Package builtins provides built-in strategy implementations that ship with
// montewalk.
package builtins

import (
	"context"

	"montewalk/internal/domain"
	"montewalk/internal/indicator"
	"montewalk/internal/returns"
	"montewalk/internal/strategy"
)

// Compile-time interface checks.
var (
	_ strategy.Strategy       = (*SMACross)(nil)
	_ strategy.ParamsReporter = (*SMACross)(nil)
)

// Default SMA crossover periods.
const (
	DefaultFast = 20
	DefaultSlow = 50
)

// SMACross implements a simple moving average crossover strategy. It is
// long while the fast SMA is above the slow SMA and short (flat unless
// shorting is allowed) otherwise.
type SMACross struct {
	fast int
	slow int
}

// NewSMACross creates a new SMACross strategy with the specified fast and
// slow moving average periods.
func NewSMACross(fast, slow int) (*SMACross, error) {
	const op = "builtins.NewSMACross"
	if fast <= 0 {
		return nil, domain.InvalidParameter(op, "fast", "must be positive, got %d", fast)
	}
	if slow <= fast {
		return nil, domain.InvalidParameter(op, "slow", "must exceed fast period %d, got %d", fast, slow)
	}
	return &SMACross{fast: fast, slow: slow}, nil
}

// NewSMACrossFromParams reads "fast" and "slow" from p.
func NewSMACrossFromParams(p strategy.Params) (strategy.Strategy, error) {
	return NewSMACross(p.Int("fast", DefaultFast), p.Int("slow", DefaultSlow))
}

// Name returns "sma_cross".
func (s *SMACross) Name() string {
	return "sma_cross"
}

// Warmup returns the slow period.
func (s *SMACross) Warmup() int { return s.slow }

// Params reports the periods.
func (s *SMACross) Params() strategy.Params {
	return strategy.Params{"fast": float64(s.fast), "slow": float64(s.slow)}
}

// Init performs any setup required by the SMA crossover strategy.
func (s *SMACross) Init(_ context.Context) error {
	return nil
}

// Positions returns LONG where fast > slow and SHORT where both SMAs are
// defined and fast <= slow. Warm-up bars are FLAT.
func (s *SMACross) Positions(_ context.Context, bars []domain.Bar) ([]domain.PositionSide, error) {
	closes := returns.Closes(bars)
	fast, err := indicator.SMA(closes, s.fast)
	if err != nil {
		return nil, err
	}
	slow, err := indicator.SMA(closes, s.slow)
	if err != nil {
		return nil, err
	}

	out := make([]domain.PositionSide, len(bars))
	for i := range out {
		switch {
		case !indicator.Defined(fast[i]) || !indicator.Defined(slow[i]):
			out[i] = domain.PositionSideFlat
		case fast[i] > slow[i]:
			out[i] = domain.PositionSideLong
		default:
			out[i] = domain.PositionSideShort
		}
	}
	return out, nil
}
