package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-boxspread/internal/inventory"
	"github.com/mselser95/polymarket-boxspread/internal/orders"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testAPIKey     = "test-api-key"
	testPassphrase = "test-passphrase"
)

//nolint:gochecknoglobals // test fixture
var testSecret = base64.URLEncoding.EncodeToString([]byte("boxspread-test-secret"))

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(&Config{
		BaseURL:    srv.URL,
		APIKey:     testAPIKey,
		Secret:     testSecret,
		Passphrase: testPassphrase,
		PrivateKey: testPrivateKey,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return c
}

func trapRequest() orders.Request {
	return orders.Request{
		IntentID:    "trap-1",
		OutcomeID:   "123456",
		Side:        inventory.Buy,
		Role:        orders.RoleTrap,
		Price:       decimal.RequireFromString("0.48"),
		Size:        decimal.RequireFromString("10"),
		TimeInForce: orders.GTC,
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// verifyL2 checks the HMAC headers of an authenticated request.
func verifyL2(t *testing.T, r *http.Request, body []byte) {
	t.Helper()
	assert.Equal(t, testAddress, r.Header.Get("POLY_ADDRESS"))
	assert.Equal(t, testAPIKey, r.Header.Get("POLY_API_KEY"))
	assert.Equal(t, testPassphrase, r.Header.Get("POLY_PASSPHRASE"))

	ts := r.Header.Get("POLY_TIMESTAMP")
	require.NotEmpty(t, ts)

	key, err := base64.URLEncoding.DecodeString(testSecret)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(ts + r.Method + r.URL.Path + string(body)))
	want := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, r.Header.Get("POLY_SIGNATURE"))
}

func TestNew(t *testing.T) {
	c, err := New(&Config{PrivateKey: testPrivateKey, ProxyAddress: "0x1111111111111111111111111111111111111111"})
	require.NoError(t, err)
	assert.Equal(t, testAddress, c.Address())
	assert.Equal(t, "0x1111111111111111111111111111111111111111", c.Funder())
	assert.Equal(t, "https://clob.polymarket.com", c.baseURL)

	_, err = New(&Config{PrivateKey: "not-hex"})
	assert.Error(t, err)

	ro, err := New(&Config{})
	require.NoError(t, err)
	assert.Empty(t, ro.Address())
}

func TestSubmitOrder_Accepted(t *testing.T) {
	var got types.OrderSubmissionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		verifyL2(t, r, body)
		require.NoError(t, json.Unmarshal(body, &got))

		writeJSON(t, w, http.StatusOK, types.OrderSubmissionResponse{Success: true, Status: "live"})
	})

	ack, err := c.SubmitOrder(context.Background(), trapRequest())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ack.ExchangeOrderID, "0x"))
	assert.Len(t, ack.ExchangeOrderID, 66)
	assert.Equal(t, "live", ack.Status)

	assert.Equal(t, testAPIKey, got.Owner)
	assert.Equal(t, "GTC", got.OrderType)
	assert.Equal(t, "BUY", got.Order.Side)
	assert.Equal(t, "123456", got.Order.TokenID)
	assert.Equal(t, "4800000", got.Order.MakerAmount)
	assert.Equal(t, "10000000", got.Order.TakerAmount)
	assert.Equal(t, testAddress, got.Order.Maker)
	assert.Equal(t, testAddress, got.Order.Signer)
	assert.True(t, strings.HasPrefix(got.Order.Signature, "0x"))
}

func TestSubmitOrder_OrderIDIsStable(t *testing.T) {
	// The returned id wins over the computed one when they differ.
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, types.OrderSubmissionResponse{Success: true, OrderID: "0xabc", Status: "matched"})
	})

	ack, err := c.SubmitOrder(context.Background(), trapRequest())
	require.NoError(t, err)
	assert.Equal(t, "0xabc", ack.ExchangeOrderID)
}

func TestSubmitOrder_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		delay  time.Duration
		check  func(t *testing.T, err error)
	}{
		{
			name:   "success false",
			status: http.StatusOK,
			body:   types.OrderSubmissionResponse{Success: false, ErrorMsg: "not enough balance"},
			check: func(t *testing.T, err error) {
				var rej *orders.RejectError
				require.ErrorAs(t, err, &rej)
				assert.Equal(t, "not enough balance", rej.Reason)
				assert.Equal(t, types.ErrNotEnoughBalance, rej.Code)
			},
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   map[string]string{"error": types.ErrInvalidMinTickSize},
			check: func(t *testing.T, err error) {
				var rej *orders.RejectError
				require.ErrorAs(t, err, &rej)
				assert.Equal(t, types.ErrInvalidMinTickSize, rej.Reason)
				assert.Equal(t, types.ErrInvalidMinTickSize, rej.Code)
			},
		},
		{
			name:   "unknown bad request keeps status code",
			status: http.StatusBadRequest,
			body:   map[string]string{"error": "invalid signature"},
			check: func(t *testing.T, err error) {
				var rej *orders.RejectError
				require.ErrorAs(t, err, &rej)
				assert.Equal(t, "HTTP_400", rej.Code)
			},
		},
		{
			name:   "server error is indeterminate",
			status: http.StatusBadGateway,
			body:   map[string]string{"error": "upstream"},
			check: func(t *testing.T, err error) {
				var ind *orders.IndeterminateError
				require.ErrorAs(t, err, &ind)
				assert.Len(t, ind.ExchangeOrderID, 66)
			},
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   map[string]string{"error": "Unauthorized/Invalid api key"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnauthorized)
			},
		},
		{
			name:   "timeout is indeterminate",
			status: http.StatusOK,
			body:   types.OrderSubmissionResponse{Success: true},
			delay:  200 * time.Millisecond,
			check: func(t *testing.T, err error) {
				var ind *orders.IndeterminateError
				require.ErrorAs(t, err, &ind)
				assert.NotEmpty(t, ind.ExchangeOrderID)
				assert.True(t, isTimeout(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}
				writeJSON(t, w, tt.status, tt.body)
			})

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			_, err := c.SubmitOrder(ctx, trapRequest())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestSubmitOrder_ReadOnly(t *testing.T) {
	c, err := New(&Config{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	_, err = c.SubmitOrder(context.Background(), trapRequest())
	var rej *orders.RejectError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, ErrReadOnly.Error())
}

func TestOrderAmounts(t *testing.T) {
	tests := []struct {
		name      string
		side      inventory.Side
		price     string
		size      string
		wantMaker string
		wantTaker string
		wantErr   bool
	}{
		{name: "buy", side: inventory.Buy, price: "0.48", size: "10", wantMaker: "4800000", wantTaker: "10000000"},
		{name: "sell", side: inventory.Sell, price: "0.45", size: "12.5", wantMaker: "12500000", wantTaker: "5625000"},
		{name: "size truncated to cents", side: inventory.Buy, price: "0.5", size: "3.339", wantMaker: "1665000", wantTaker: "3330000"},
		{name: "rounds to zero", side: inventory.Buy, price: "0.5", size: "0.001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maker, taker, err := orderAmounts(tt.side, decimal.RequireFromString(tt.price), decimal.RequireFromString(tt.size))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMaker, maker)
			assert.Equal(t, tt.wantTaker, taker)
		})
	}
}

func TestCancelOrder(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		check  func(t *testing.T, err error)
	}{
		{
			name:   "canceled",
			status: http.StatusOK,
			body:   types.CancelResponse{Canceled: []string{"0xORDER"}},
			check:  func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:   "already canceled",
			status: http.StatusOK,
			body:   types.CancelResponse{NotCanceled: map[string]string{"0xorder": "order already canceled"}},
			check:  func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:   "matched",
			status: http.StatusOK,
			body:   types.CancelResponse{NotCanceled: map[string]string{"0xorder": "order can't be found - already canceled or matched"}},
			check:  func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:   "refused",
			status: http.StatusOK,
			body:   types.CancelResponse{NotCanceled: map[string]string{"0xorder": "market paused"}},
			check: func(t *testing.T, err error) {
				var rej *orders.RejectError
				require.ErrorAs(t, err, &rej)
				assert.Equal(t, "market paused", rej.Reason)
			},
		},
		{
			name:   "missing from response",
			status: http.StatusOK,
			body:   types.CancelResponse{},
			check: func(t *testing.T, err error) {
				var ind *orders.IndeterminateError
				assert.ErrorAs(t, err, &ind)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   map[string]string{"error": "boom"},
			check: func(t *testing.T, err error) {
				require.Error(t, err)
				var rej *orders.RejectError
				assert.False(t, errors.As(err, &rej))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "/order", r.URL.Path)

				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				verifyL2(t, r, body)
				assert.JSONEq(t, `{"orderID":"0xorder"}`, string(body))

				writeJSON(t, w, tt.status, tt.body)
			})

			tt.check(t, c.CancelOrder(context.Background(), "0xorder"))
		})
	}
}

func TestOrderStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantFound  bool
		wantStatus orders.Status
		wantFilled string
	}{
		{
			name:       "wrapped live",
			status:     http.StatusOK,
			body:       `{"order":{"id":"0xorder","status":"LIVE","original_size":"10","size_matched":"0"}}`,
			wantFound:  true,
			wantStatus: orders.StatusOpen,
			wantFilled: "0",
		},
		{
			name:       "bare partially matched",
			status:     http.StatusOK,
			body:       `{"id":"0xorder","status":"LIVE","original_size":"10","size_matched":"4"}`,
			wantFound:  true,
			wantStatus: orders.StatusPartiallyFilled,
			wantFilled: "4",
		},
		{
			name:       "matched",
			status:     http.StatusOK,
			body:       `{"order":{"id":"0xorder","status":"MATCHED","size_matched":"10"}}`,
			wantFound:  true,
			wantStatus: orders.StatusFilled,
			wantFilled: "10",
		},
		{
			name:       "canceled after partial",
			status:     http.StatusOK,
			body:       `{"id":"0xorder","status":"CANCELED","size_matched":"2.5"}`,
			wantFound:  true,
			wantStatus: orders.StatusCancelled,
			wantFilled: "2.5",
		},
		{name: "null body", status: http.StatusOK, body: `null`, wantFilled: "0"},
		{name: "not found", status: http.StatusNotFound, body: `{"error":"not found"}`, wantFilled: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/data/order/0xorder", r.URL.Path)
				verifyL2(t, r, nil)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			report, err := c.OrderStatus(context.Background(), "0xorder")
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, report.Found)
			assert.Equal(t, "0xorder", report.ExchangeOrderID)
			if tt.wantFound {
				assert.Equal(t, tt.wantStatus, report.Status)
			}
			assert.True(t, decimal.RequireFromString(tt.wantFilled).Equal(report.Filled), "filled %s", report.Filled)
		})
	}
}

func TestOrderStatus_TransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.OrderStatus(context.Background(), "0xorder")
	assert.Error(t, err)
}

func TestCancelMarketOrders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/cancel-market-orders", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		verifyL2(t, r, body)
		assert.JSONEq(t, `{"market":"0xcond"}`, string(body))

		writeJSON(t, w, http.StatusOK, types.CancelResponse{Canceled: []string{"a", "b"}})
	})

	n, err := c.CancelMarketOrders(context.Background(), "0xcond")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCancelAll(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cancel-all", r.URL.Path)
		verifyL2(t, r, nil)
		writeJSON(t, w, http.StatusOK, types.CancelResponse{Canceled: []string{"a"}})
	})

	n, err := c.CancelAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenOrders_Pagination(t *testing.T) {
	var cursors []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/orders", r.URL.Path)
		assert.Equal(t, "0xcond", r.URL.Query().Get("market"))
		verifyL2(t, r, nil)

		cursor := r.URL.Query().Get("next_cursor")
		cursors = append(cursors, cursor)
		if cursor == "" {
			writeJSON(t, w, http.StatusOK, types.OpenOrdersPage{
				Data:       []types.OrderQueryResponse{{ID: "1"}, {ID: "2"}},
				NextCursor: "MjA=",
			})
			return
		}
		writeJSON(t, w, http.StatusOK, types.OpenOrdersPage{
			Data:       []types.OrderQueryResponse{{ID: "3"}},
			NextCursor: types.EndCursor,
		})
	})

	got, err := c.OpenOrders(context.Background(), "0xcond")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "3", got[2].ID)
	assert.Equal(t, []string{"", "MjA="}, cursors)
}

func TestTradesSince(t *testing.T) {
	after := time.Unix(1_700_000_000, 0)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/trades", r.URL.Path)
		assert.Equal(t, "0xcond", r.URL.Query().Get("market"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("after"))
		verifyL2(t, r, nil)

		writeJSON(t, w, http.StatusOK, types.TradesPage{
			Data:       []types.TradeRecord{{ID: "t1", Size: "5", Price: "0.48", Status: "MATCHED"}},
			NextCursor: types.EndCursor,
		})
	})

	trades, err := c.TradesSince(context.Background(), "0xcond", after)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t1", trades[0].ID)
}

func TestBookSnapshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "tok-a", r.URL.Query().Get("token_id"))
		assert.Empty(t, r.Header.Get("POLY_SIGNATURE"), "public endpoint")

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"market":"0xcond","asset_id":"tok-a","timestamp":"1700000000000",
			"bids":[{"price":"0.45","size":"100"}],"asks":[{"price":"0.50","size":"80"}],
			"min_order_size":"5","tick_size":"0.01"}`))
	})

	book, err := c.BookSnapshot(context.Background(), "tok-a")
	require.NoError(t, err)
	assert.Equal(t, types.EventBook, book.EventType)
	assert.Equal(t, "tok-a", book.AssetID)
	assert.Equal(t, int64(1700000000000), book.Timestamp)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "0.45", book.Bids[0].Price)
	assert.Equal(t, "5", book.MinOrderSize)
}

func TestTickSize(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tick-size", r.URL.Path)
		writeJSON(t, w, http.StatusOK, types.TickSizeResponse{MinimumTickSize: 0.001})
	})

	tick, err := c.TickSize(context.Background(), "tok-a")
	require.NoError(t, err)
	assert.InDelta(t, 0.001, tick, 1e-12)
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "/data/order", endpointLabel("/data/order/0xabc"))
	assert.Equal(t, "/data/orders", endpointLabel("/data/orders"))
	assert.Equal(t, "/order", endpointLabel("/order"))
}

func TestRejectCode(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{msg: "not enough balance / allowance", want: types.ErrNotEnoughBalance},
		{msg: "order INVALID_ORDER_NOT_ENOUGH_BALANCE", want: types.ErrNotEnoughBalance},
		{msg: "invalid_order_min_tick_size", want: types.ErrInvalidMinTickSize},
		{msg: "order price breaks minimum tick size rule", want: types.ErrInvalidMinTickSize},
		{msg: "order couldn't be fully filled. FOK orders are fully filled or killed.", want: types.ErrFOKNotFilled},
		{msg: "invalid signature", want: "HTTP_400"},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, rejectCode(tt.msg, "HTTP_400"))
		})
	}
}
