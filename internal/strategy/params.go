package strategy

import (
	"fmt"
	"time"

	"github.com/mselser95/polymarket-boxspread/pkg/config"
	"github.com/shopspring/decimal"
)

// Params are the risk parameters of one market session.
type Params struct {
	CTarget           decimal.Decimal // maximum combined cost of one A+B pair
	MaxExposure       decimal.Decimal
	TrapSize          decimal.Decimal
	MinOrderSize      decimal.Decimal
	RangeMin          decimal.Decimal
	RangeMax          decimal.Decimal
	TickSize          decimal.Decimal
	RepriceTolerance  decimal.Decimal
	MinHedgeThreshold decimal.Decimal
	ExpiryBuffer      time.Duration
	FinalExitBuffer   time.Duration

	HedgeCrossPolicy string
	HedgeMaxLoss     decimal.Decimal
	HedgeCrossWindow time.Duration
	FlattenSlippage  decimal.Decimal
}

// ParamsFromConfig converts the float configuration into exact decimals.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		CTarget:           decimal.NewFromFloat(cfg.CTarget),
		MaxExposure:       decimal.NewFromFloat(cfg.MaxExposure),
		TrapSize:          decimal.NewFromFloat(cfg.TrapOrderSize),
		MinOrderSize:      decimal.NewFromFloat(cfg.MinOrderSize),
		RangeMin:          decimal.NewFromFloat(cfg.RangeMin),
		RangeMax:          decimal.NewFromFloat(cfg.RangeMax),
		TickSize:          decimal.NewFromFloat(cfg.TickSize),
		RepriceTolerance:  decimal.NewFromFloat(cfg.RepriceTolerance),
		MinHedgeThreshold: decimal.NewFromFloat(cfg.MinHedgeThreshold),
		ExpiryBuffer:      cfg.ExpiryBuffer,
		FinalExitBuffer:   cfg.FinalExitBuffer,
		HedgeCrossPolicy:  cfg.HedgeCrossPolicy,
		HedgeMaxLoss:      decimal.NewFromFloat(cfg.HedgeMaxLoss),
		HedgeCrossWindow:  cfg.HedgeCrossWindow,
		FlattenSlippage:   decimal.NewFromFloat(cfg.FlattenSlippage),
	}
}

// Validate checks the parameters are internally consistent.
func (p Params) Validate() error {
	one := decimal.NewFromInt(1)

	if p.CTarget.Sign() <= 0 || p.CTarget.GreaterThanOrEqual(one) {
		return fmt.Errorf("c_target %s must be in (0, 1)", p.CTarget)
	}
	if p.MaxExposure.Sign() <= 0 {
		return fmt.Errorf("max exposure %s must be positive", p.MaxExposure)
	}
	if p.TrapSize.Sign() <= 0 {
		return fmt.Errorf("trap size %s must be positive", p.TrapSize)
	}
	if p.TickSize.Sign() <= 0 || p.TickSize.GreaterThanOrEqual(one) {
		return fmt.Errorf("tick size %s must be in (0, 1)", p.TickSize)
	}
	if p.RangeMin.Sign() <= 0 || !p.RangeMin.LessThan(p.RangeMax) || p.RangeMax.GreaterThanOrEqual(one) {
		return fmt.Errorf("price range [%s, %s] must satisfy 0 < min < max < 1", p.RangeMin, p.RangeMax)
	}
	if p.FinalExitBuffer > p.ExpiryBuffer {
		return fmt.Errorf("final exit buffer %s exceeds expiry buffer %s", p.FinalExitBuffer, p.ExpiryBuffer)
	}
	if p.HedgeCrossPolicy != config.HedgePolicyWait && p.HedgeCrossPolicy != config.HedgePolicyCross {
		return fmt.Errorf("unknown hedge cross policy %q", p.HedgeCrossPolicy)
	}

	return nil
}
