package engine

import (
	"context"
	"fmt"
	"math"

	"montewalk/internal/domain"
)

// ErrRiskRejected marks an order refused by pre-trade risk checks. It
// classifies as an invalid parameter at the tool boundary.
var ErrRiskRejected = fmt.Errorf("%w: order rejected by risk checks", domain.ErrInvalidParameter)

// RiskManager enforces pre-trade risk rules such as position sizing limits
// and maximum daily loss constraints.
type RiskManager struct {
	maxPositionPct  float64
	maxDailyLossPct float64
}

// NewRiskManager creates a RiskManager with the specified risk thresholds.
//
//   - maxPositionPct: maximum fraction of equity allowed in a single position
//     (e.g. 0.10 for 10%).
//   - maxDailyLossPct: maximum fraction of equity that may be lost in a single
//     trading day (e.g. 0.02 for 2%).
func NewRiskManager(maxPositionPct, maxDailyLossPct float64) *RiskManager {
	return &RiskManager{
		maxPositionPct:  maxPositionPct,
		maxDailyLossPct: maxDailyLossPct,
	}
}

// CheckOrder evaluates whether the proposed order complies with the
// configured risk limits. price is the expected fill price and current the
// signed quantity already held in the order's symbol. Orders that reduce
// exposure always pass.
func (rm *RiskManager) CheckOrder(_ context.Context, order *domain.Order, price, current float64, account *domain.AccountInfo) error {
	signed := order.Qty
	if order.Side == domain.OrderSideSell {
		signed = -signed
	}
	after := current + signed
	if math.Abs(after) <= math.Abs(current) {
		return nil
	}

	if account.Equity <= 0 {
		return fmt.Errorf("%w: account equity is %.2f", ErrRiskRejected, account.Equity)
	}
	if rm.maxDailyLossPct > 0 && account.LastEquity > 0 {
		loss := (account.LastEquity - account.Equity) / account.LastEquity
		if loss >= rm.maxDailyLossPct {
			return fmt.Errorf("%w: daily loss %.2f%% reached limit %.2f%%", ErrRiskRejected, loss*100, rm.maxDailyLossPct*100)
		}
	}
	if rm.maxPositionPct > 0 {
		exposure := math.Abs(after) * price
		limit := rm.maxPositionPct * account.Equity
		if exposure > limit {
			return fmt.Errorf("%w: %s exposure %.2f exceeds %.0f%% of equity (%.2f)",
				ErrRiskRejected, order.Symbol, exposure, rm.maxPositionPct*100, limit)
		}
	}
	return nil
}
