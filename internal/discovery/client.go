package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"go.uber.org/zap"
)

// MaxBatchSize is the largest page the Gamma API serves.
const MaxBatchSize = 100

// Query selects open markets ending after EndDateMin, soonest first.
type Query struct {
	EndDateMin time.Time
	Limit      int
	Offset     int
}

// Client is an HTTP client for the Polymarket Gamma API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Gamma API client.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// FetchMarkets fetches one page of open markets ordered by end date.
func (c *Client) FetchMarkets(ctx context.Context, q Query) ([]types.Market, error) {
	limit := q.Limit
	if limit <= 0 || limit > MaxBatchSize {
		limit = MaxBatchSize
	}

	params := url.Values{}
	params.Set("closed", "false")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	params.Set("order", "endDate")
	params.Set("ascending", "true")
	if !q.EndDateMin.IsZero() {
		params.Set("end_date_min", q.EndDateMin.UTC().Format(time.RFC3339))
	}

	requestURL := c.baseURL + "/markets?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polymarket-boxspread/1.0")

	c.logger.Debug("fetching-markets", zap.Int("limit", limit), zap.Int("offset", q.Offset))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	// Gamma returns a bare array.
	var markets []types.Market
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	c.logger.Debug("fetched-markets", zap.Int("count", len(markets)))
	return markets, nil
}
