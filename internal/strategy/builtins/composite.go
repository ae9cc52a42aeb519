package builtins

import (
	"context"

	"montewalk/internal/domain"
	"montewalk/internal/indicator"
	"montewalk/internal/returns"
	"montewalk/internal/strategy"
)

var _ strategy.Strategy = (*Composite)(nil)

// Composite follows the composite technical signal: BUY goes long, SELL
// goes short (flat unless shorting is allowed) and NEUTRAL keeps the
// previous target.
type Composite struct{}

// NewComposite returns the composite-signal strategy.
func NewComposite(strategy.Params) (strategy.Strategy, error) {
	return &Composite{}, nil
}

// Name returns "composite".
func (c *Composite) Name() string { return "composite" }

// Warmup is the SMA trend window, the slowest input the score requires.
func (c *Composite) Warmup() int { return indicator.TrendWindow }

// Init is a no-op.
func (c *Composite) Init(_ context.Context) error { return nil }

// Positions maps the per-bar composite score onto targets.
func (c *Composite) Positions(_ context.Context, bars []domain.Bar) ([]domain.PositionSide, error) {
	scores, err := indicator.Scores(returns.Closes(bars))
	if err != nil {
		return nil, err
	}
	out := make([]domain.PositionSide, len(bars))
	prev := domain.PositionSideFlat
	for i, sc := range scores {
		if sc.Defined {
			switch sc.Signal {
			case domain.SignalTypeBuy:
				prev = domain.PositionSideLong
			case domain.SignalTypeSell:
				prev = domain.PositionSideShort
			}
		}
		out[i] = prev
	}
	return out, nil
}

// Register adds the built-in strategies to r.
func Register(r *strategy.Registry) {
	r.Register("sma_cross", NewSMACrossFromParams)
	r.Register("composite", NewComposite)
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
