package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvariantViolation marks an intent that would break the cost or exposure
// bounds. Such intents are dropped, never clamped.
var ErrInvariantViolation = errors.New("invariant violation")

// floorToTick rounds price down to a multiple of tick.
func floorToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return price
	}
	return price.Div(tick).Floor().Mul(tick)
}

// TrapPrice returns π_limit = C_target − oppAsk floored to the tick. The
// result must lie in [RangeMin, RangeMax].
func (p Params) TrapPrice(oppAsk decimal.Decimal) (decimal.Decimal, error) {
	price := floorToTick(p.CTarget.Sub(oppAsk), p.TickSize)
	if price.LessThan(p.RangeMin) || price.GreaterThan(p.RangeMax) {
		return decimal.Zero, fmt.Errorf("trap price %s outside [%s, %s]: %w",
			price, p.RangeMin, p.RangeMax, ErrInvariantViolation)
	}
	return price, nil
}

// HedgeCeiling returns π_hedge = C_target − μ_own floored to the tick. A hedge
// bought at or below it keeps the pair cost within C_target.
func (p Params) HedgeCeiling(ownVWAP decimal.Decimal) (decimal.Decimal, error) {
	price := floorToTick(p.CTarget.Sub(ownVWAP), p.TickSize)
	if price.LessThan(p.TickSize) || price.GreaterThan(decimal.NewFromInt(1).Sub(p.TickSize)) {
		return decimal.Zero, fmt.Errorf("hedge price %s outside tradable band: %w", price, ErrInvariantViolation)
	}
	return price, nil
}

// HedgePrice picks the bid for a hedge. It joins the best ask when that is
// cheaper than ceiling and otherwise rests at ceiling. With allowLoss, an ask
// up to ceiling+HedgeMaxLoss is taken.
func (p Params) HedgePrice(ceiling, oppAsk decimal.Decimal, hasAsk, allowLoss bool) decimal.Decimal {
	if !hasAsk {
		return ceiling
	}
	if oppAsk.LessThanOrEqual(ceiling) {
		return oppAsk
	}
	if allowLoss && oppAsk.LessThanOrEqual(ceiling.Add(p.HedgeMaxLoss)) {
		return oppAsk
	}
	return ceiling
}

// HedgeSize returns the size that flattens |ΔQ|, capped at MaxExposure.
// Below the exchange minimum it over-hedges to the minimum only when that
// leaves a smaller opposite imbalance. ok is false when no hedge can be sized.
func (p Params) HedgeSize(absExposure decimal.Decimal) (decimal.Decimal, bool) {
	size := decimal.Min(absExposure, p.MaxExposure)
	if size.Sign() <= 0 {
		return decimal.Zero, false
	}
	if size.GreaterThanOrEqual(p.MinOrderSize) {
		return size, true
	}
	if p.MinOrderSize.LessThan(size.Mul(decimal.NewFromInt(2))) {
		return p.MinOrderSize, true
	}
	return decimal.Zero, false
}

// TrapSizeFor returns the trap size that cannot push |ΔQ| past MaxExposure.
func (p Params) TrapSizeFor(absExposure decimal.Decimal) (decimal.Decimal, bool) {
	size := decimal.Min(p.TrapSize, p.MaxExposure.Sub(absExposure))
	if size.Sign() <= 0 || size.LessThan(p.MinOrderSize) {
		return decimal.Zero, false
	}
	return size, true
}

// FlattenPrice is the aggressive sell price for the shutdown flatten.
func (p Params) FlattenPrice(bestBid decimal.Decimal, hasBid bool) decimal.Decimal {
	if !hasBid {
		return p.TickSize
	}
	return decimal.Max(p.TickSize, floorToTick(bestBid.Sub(p.FlattenSlippage), p.TickSize))
}
