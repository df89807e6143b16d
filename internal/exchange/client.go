package exchange

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized means the CLOB refused our API credentials.
	ErrUnauthorized = types.ErrUnauthorized

	// ErrReadOnly means the client was built without a private key.
	ErrReadOnly = errors.New("clob client is read-only")
)

// APIError is a non-2xx response from the CLOB.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client talks to the Polymarket CLOB REST API.
type Client struct {
	baseURL       string
	apiKey        string
	secret        string
	passphrase    string
	privateKey    *ecdsa.PrivateKey
	address       string // EOA address (signer)
	funder        string // maker address, proxy when configured
	signatureType model.SignatureType
	orderBuilder  builder.ExchangeOrderBuilder
	httpClient    *http.Client
	logger        *zap.Logger
	now           func() time.Time
}

// Config holds configuration for the CLOB client.
type Config struct {
	BaseURL       string
	APIKey        string
	Secret        string
	Passphrase    string
	PrivateKey    string
	ProxyAddress  string
	SignatureType int
	ChainID       int64
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// New creates a CLOB client. Without a private key the client is read-only:
// public book data works, order calls fail with ErrReadOnly.
func New(cfg *Config) (*Client, error) {
	var (
		privateKey *ecdsa.PrivateKey
		address    string
	)
	if cfg.PrivateKey != "" {
		var err error
		privateKey, err = crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		address = crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
	}

	funder := address
	if cfg.ProxyAddress != "" {
		funder = cfg.ProxyAddress
	}

	chainID := cfg.ChainID
	if chainID == 0 {
		chainID = 137 // Polygon mainnet
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://clob.polymarket.com"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:       baseURL,
		apiKey:        cfg.APIKey,
		secret:        cfg.Secret,
		passphrase:    cfg.Passphrase,
		privateKey:    privateKey,
		address:       address,
		funder:        funder,
		signatureType: model.SignatureType(cfg.SignatureType),
		orderBuilder:  builder.NewExchangeOrderBuilderImpl(big.NewInt(chainID), nil),
		httpClient:    httpClient,
		logger:        cfg.Logger,
		now:           time.Now,
	}, nil
}

// Address is the signing EOA.
func (c *Client) Address() string {
	return c.address
}

// Funder is the address holding collateral and positions.
func (c *Client) Funder() string {
	return c.funder
}

// APIKey identifies our orders as maker or taker in trade reports.
func (c *Client) APIKey() string {
	return c.apiKey
}

// do sends a request and decodes a JSON response into out (if non-nil).
// Authenticated requests carry L2 HMAC headers over the path without query.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, auth bool, out any) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if auth {
		timestamp := strconv.FormatInt(c.now().Unix(), 10)
		signature, err := signL2(c.secret, timestamp, method, path, raw)
		if err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set("POLY_ADDRESS", c.address)
		req.Header.Set("POLY_API_KEY", c.apiKey)
		req.Header.Set("POLY_PASSPHRASE", c.passphrase)
		req.Header.Set("POLY_SIGNATURE", signature)
		req.Header.Set("POLY_TIMESTAMP", timestamp)
	}

	endpoint := endpointLabel(path)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	RequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		RequestsTotal.WithLabelValues(method, endpoint, "error").Inc()
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	RequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	return nil
}

// endpointLabel strips order ids from paths.
func endpointLabel(path string) string {
	if strings.HasPrefix(path, "/data/order/") {
		return "/data/order"
	}
	return path
}

// isTimeout reports whether err left the request outcome unknown.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
