package tools

import (
	"context"

	"montewalk/internal/optimizer"
)

// AllocationRequest names the universe and the lookback of daily returns.
type AllocationRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=2,max=50,unique,dive,required"`
	Period  string   `json:"period" default:"1y"`
}

// MeanVarianceOptimize returns the long-only maximum Sharpe allocation.
func (s *Service) MeanVarianceOptimize(ctx context.Context, req AllocationRequest) (*optimizer.Allocation, error) {
	aligned, err := s.aligned(ctx, "tools.mean_variance_optimize", req.Symbols, req.Period)
	if err != nil {
		return nil, err
	}
	return optimizer.MaxSharpe(aligned, s.cfg.Risk.RiskFreeRate, s.alignedPeriodsPerYear(aligned.Symbols))
}

// RiskParity returns inverse volatility weights.
func (s *Service) RiskParity(ctx context.Context, req AllocationRequest) (*optimizer.Allocation, error) {
	aligned, err := s.aligned(ctx, "tools.risk_parity", req.Symbols, req.Period)
	if err != nil {
		return nil, err
	}
	return optimizer.RiskParity(aligned, s.cfg.Risk.RiskFreeRate, s.alignedPeriodsPerYear(aligned.Symbols))
}
