package wallet

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var funder = common.HexToAddress("0x1234567890123456789012345678901234567890")

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type callArg struct {
	To    string `json:"to"`
	Input string `json:"input"`
	Data  string `json:"data"`
}

// chain is a minimal Polygon JSON-RPC node answering balance reads.
type chain struct {
	mu        sync.Mutex
	matic     *big.Int
	usdc      *big.Int
	allowance *big.Int
	fail      bool
	methods   []string
}

func (c *chain) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req rpcRequest
		require.NoError(t, json.Unmarshal(body, &req))

		c.mu.Lock()
		c.methods = append(c.methods, req.Method)
		fail := c.fail
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32000,"message":"node unavailable"}}`, req.ID)
			return
		}

		var result string
		switch req.Method {
		case "eth_getBalance":
			result = fmt.Sprintf("%q", "0x"+c.matic.Text(16))
		case "eth_call":
			var arg callArg
			require.NoError(t, json.Unmarshal(req.Params[0], &arg))
			assert.True(t, strings.EqualFold(polygonUSDC, arg.To))
			input := arg.Input
			if input == "" {
				input = arg.Data
			}
			value := c.usdc
			if strings.HasPrefix(input, "0xdd62ed3e") {
				value = c.allowance
			}
			result = fmt.Sprintf(`"0x%064x"`, value)
		default:
			t.Errorf("unexpected method %s", req.Method)
			result = "null"
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, result)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (c *chain) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.methods...)
}

func usdc(dollars int64) *big.Int {
	return big.NewInt(dollars * 1_000_000)
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		rpcURL  string
		logger  *zap.Logger
		wantErr bool
	}{
		{name: "valid_config", rpcURL: "https://polygon-rpc.com", logger: zap.NewNop()},
		{name: "empty_rpc_url", rpcURL: "", logger: zap.NewNop(), wantErr: true},
		{name: "nil_logger", rpcURL: "https://polygon-rpc.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.rpcURL, tt.logger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.rpcURL, client.rpcURL)
		})
	}
}

func TestClient_GetBalances(t *testing.T) {
	oneMatic, _ := new(big.Int).SetString("1000000000000000000", 10)
	node := &chain{matic: oneMatic, usdc: usdc(42), allowance: usdc(1000)}
	srv := node.serve(t)

	client, err := NewClient(srv.URL, zaptest.NewLogger(t))
	require.NoError(t, err)

	b, err := client.GetBalances(context.Background(), funder)
	require.NoError(t, err)

	assert.Equal(t, "42", b.USDCAmount().String())
	assert.Equal(t, "1000", b.AllowanceAmount().String())
	assert.Equal(t, "1", b.MATICAmount().String())
	assert.Equal(t, []string{"eth_getBalance", "eth_call", "eth_call"}, node.calls())
}

func TestClient_Preflight(t *testing.T) {
	tests := []struct {
		name       string
		balance    *big.Int
		allowance  *big.Int
		required   string
		wantErr    error
		wantResult string
	}{
		{name: "funded", balance: usdc(50), allowance: usdc(50), required: "19.6", wantResult: "ok"},
		{name: "exactly funded", balance: big.NewInt(19_600_000), allowance: usdc(0), required: "19.6", wantResult: "ok"},
		{name: "short", balance: usdc(10), allowance: usdc(50), required: "19.6", wantErr: ErrInsufficientFunds, wantResult: "insufficient"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &chain{matic: big.NewInt(0), usdc: tt.balance, allowance: tt.allowance}
			srv := node.serve(t)
			client, err := NewClient(srv.URL, zaptest.NewLogger(t))
			require.NoError(t, err)

			before := testutil.ToFloat64(PreflightTotal.WithLabelValues(tt.wantResult))
			b, err := client.Preflight(context.Background(), funder, decimal.RequireFromString(tt.required))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), "need 19.6")
			} else {
				require.NoError(t, err)
			}
			require.NotNil(t, b)
			assert.InDelta(t, b.USDCAmount().InexactFloat64(), testutil.ToFloat64(USDCBalance), 1e-9)
			assert.InDelta(t, before+1, testutil.ToFloat64(PreflightTotal.WithLabelValues(tt.wantResult)), 1e-9)
		})
	}
}

func TestClient_PreflightRPCError(t *testing.T) {
	node := &chain{fail: true}
	srv := node.serve(t)
	client, err := NewClient(srv.URL, zaptest.NewLogger(t))
	require.NoError(t, err)

	before := testutil.ToFloat64(PreflightTotal.WithLabelValues("error"))
	_, err = client.Preflight(context.Background(), funder, decimal.NewFromInt(1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientFunds)
	assert.Contains(t, err.Error(), "node unavailable")
	assert.InDelta(t, before+1, testutil.ToFloat64(PreflightTotal.WithLabelValues("error")), 1e-9)
}

func TestNewTracker(t *testing.T) {
	client, err := NewClient("https://polygon-rpc.com", zap.NewNop())
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "valid_config", cfg: &Config{Client: client, Address: funder, PollInterval: time.Minute, Logger: zap.NewNop()}},
		{name: "nil_config", wantErr: true},
		{name: "nil_logger", cfg: &Config{Client: client, PollInterval: time.Minute}, wantErr: true},
		{name: "nil_client", cfg: &Config{PollInterval: time.Minute, Logger: zap.NewNop()}, wantErr: true},
		{name: "zero_interval", cfg: &Config{Client: client, Logger: zap.NewNop()}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, err := NewTracker(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, tracker)
		})
	}
}

func TestTracker_RunUpdatesGauges(t *testing.T) {
	node := &chain{matic: big.NewInt(0), usdc: usdc(77), allowance: usdc(77)}
	srv := node.serve(t)
	client, err := NewClient(srv.URL, zaptest.NewLogger(t))
	require.NoError(t, err)

	tracker, err := NewTracker(&Config{Client: client, Address: funder, PollInterval: time.Hour, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tracker.Run(ctx) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(USDCBalance) == 77
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestTracker_FundingShortfall(t *testing.T) {
	node := &chain{matic: big.NewInt(0), usdc: usdc(5), allowance: usdc(100)}
	srv := node.serve(t)
	client, err := NewClient(srv.URL, zaptest.NewLogger(t))
	require.NoError(t, err)

	tracker, err := NewTracker(&Config{
		Client:       client,
		Address:      funder,
		PollInterval: time.Hour,
		Required:     decimal.RequireFromString("19.6"),
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	require.NoError(t, tracker.poll(context.Background()))
	assert.InDelta(t, 14.6, testutil.ToFloat64(FundingShortfall), 1e-9)
	assert.True(t, tracker.underfunded)

	node.mu.Lock()
	node.usdc = usdc(50)
	node.mu.Unlock()

	require.NoError(t, tracker.poll(context.Background()))
	assert.Zero(t, testutil.ToFloat64(FundingShortfall))
	assert.False(t, tracker.underfunded)
}
