package orderbook

import (
	"fmt"

	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
)

// ParseLevels converts wire price levels into ladder levels.
func ParseLevels(levels []types.PriceLevel) ([]Level, error) {
	out := make([]Level, 0, len(levels))
	for _, lvl := range levels {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", lvl.Price, err)
		}
		size, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			return nil, fmt.Errorf("parse size %q: %w", lvl.Size, err)
		}
		out = append(out, Level{Price: price, Size: size})
	}
	return out, nil
}

// ParseChange converts one price_change entry into a ladder change.
func ParseChange(pc types.PriceChange) (Change, error) {
	var side Side
	switch pc.Side {
	case string(Bid):
		side = Bid
	case string(Ask):
		side = Ask
	default:
		return Change{}, fmt.Errorf("unknown side %q", pc.Side)
	}

	price, err := decimal.NewFromString(pc.Price)
	if err != nil {
		return Change{}, fmt.Errorf("parse price %q: %w", pc.Price, err)
	}
	size, err := decimal.NewFromString(pc.Size)
	if err != nil {
		return Change{}, fmt.Errorf("parse size %q: %w", pc.Size, err)
	}

	return Change{Side: side, Price: price, Size: size}, nil
}
