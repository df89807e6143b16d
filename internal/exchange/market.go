package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mselser95/polymarket-boxspread/pkg/types"
)

// BookSnapshot fetches the full book of one token.
func (c *Client) BookSnapshot(ctx context.Context, tokenID string) (*types.BookMessage, error) {
	var book types.BookMessage
	err := c.do(ctx, http.MethodGet, "/book", url.Values{"token_id": []string{tokenID}}, nil, false, &book)
	if err != nil {
		return nil, fmt.Errorf("fetch book %s: %w", tokenID, err)
	}
	if book.AssetID == "" {
		book.AssetID = tokenID
	}
	book.EventType = types.EventBook
	return &book, nil
}

// TickSize fetches the minimum tick of one token.
func (c *Client) TickSize(ctx context.Context, tokenID string) (float64, error) {
	var resp types.TickSizeResponse
	err := c.do(ctx, http.MethodGet, "/tick-size", url.Values{"token_id": []string{tokenID}}, nil, false, &resp)
	if err != nil {
		return 0, fmt.Errorf("fetch tick size %s: %w", tokenID, err)
	}
	return resp.MinimumTickSize, nil
}

// TradesSince lists our trades in a market matched after the given time.
func (c *Client) TradesSince(ctx context.Context, market string, after time.Time) ([]types.TradeRecord, error) {
	var all []types.TradeRecord
	cursor := ""

	for {
		query := url.Values{}
		if market != "" {
			query.Set("market", market)
		}
		if !after.IsZero() {
			query.Set("after", strconv.FormatInt(after.Unix(), 10))
		}
		if cursor != "" {
			query.Set("next_cursor", cursor)
		}

		var page types.TradesPage
		if err := c.do(ctx, http.MethodGet, "/data/trades", query, nil, true, &page); err != nil {
			return nil, fmt.Errorf("list trades: %w", err)
		}
		all = append(all, page.Data...)

		if page.NextCursor == "" || page.NextCursor == types.EndCursor || page.NextCursor == cursor {
			return all, nil
		}
		cursor = page.NextCursor
	}
}
