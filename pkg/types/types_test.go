package types

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestMarket_ToBinaryMarket(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantOK  bool
		wantA   string
		wantB   string
		wantLbl string
	}{
		{
			name: "up_down",
			input: `{"conditionId":"0xc1","slug":"btc-updown-15m-1","acceptingOrders":true,
				"endDate":"2026-01-02T15:00:00Z","outcomes":"[\"Up\", \"Down\"]",
				"clobTokenIds":"[\"tok-up\", \"tok-down\"]","orderPriceMinTickSize":0.01,"orderMinSize":5}`,
			wantOK:  true,
			wantA:   "tok-up",
			wantB:   "tok-down",
			wantLbl: "Up",
		},
		{
			name: "no_yes_reversed_order",
			input: `{"conditionId":"0xc2","outcomes":"[\"No\", \"Yes\"]",
				"clobTokenIds":"[\"tok-no\", \"tok-yes\"]"}`,
			wantOK:  true,
			wantA:   "tok-yes",
			wantB:   "tok-no",
			wantLbl: "Yes",
		},
		{
			name: "three_outcomes",
			input: `{"conditionId":"0xc3","outcomes":"[\"A\", \"B\", \"C\"]",
				"clobTokenIds":"[\"1\", \"2\", \"3\"]"}`,
			wantOK: false,
		},
		{
			name: "unknown_labels",
			input: `{"conditionId":"0xc4","outcomes":"[\"Lakers\", \"Celtics\"]",
				"clobTokenIds":"[\"1\", \"2\"]"}`,
			wantOK: false,
		},
		{
			name:   "missing_tokens",
			input:  `{"conditionId":"0xc5"}`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Market
			err := json.Unmarshal([]byte(tt.input), &m)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			bm, ok := m.ToBinaryMarket()
			if ok != tt.wantOK {
				t.Fatalf("ToBinaryMarket() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if bm.OutcomeA != tt.wantA || bm.OutcomeB != tt.wantB {
				t.Errorf("legs = %s/%s, want %s/%s", bm.OutcomeA, bm.OutcomeB, tt.wantA, tt.wantB)
			}
			if bm.LabelA != tt.wantLbl {
				t.Errorf("LabelA = %q, want %q", bm.LabelA, tt.wantLbl)
			}
			if bm.Opposite(tt.wantA) != tt.wantB || bm.Opposite(tt.wantB) != tt.wantA {
				t.Error("Opposite() did not map legs to each other")
			}
			if bm.Opposite("foreign") != "" || bm.Has("foreign") || bm.Has("") {
				t.Error("foreign token treated as a market leg")
			}
		})
	}
}

func TestMarket_GammaFields(t *testing.T) {
	input := `{"conditionId":"0xc1","acceptingOrders":true,"endDate":"2026-01-02T15:00:00Z",
		"orderPriceMinTickSize":0.001,"orderMinSize":5,
		"outcomes":"[\"Up\", \"Down\"]","clobTokenIds":"[\"a\", \"b\"]"}`

	var m Market
	if err := json.Unmarshal([]byte(input), &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !m.AcceptingOrders {
		t.Error("AcceptingOrders = false, want true")
	}
	if m.TickSize != 0.001 || m.MinOrderSize != 5 {
		t.Errorf("tick/min = %v/%v, want 0.001/5", m.TickSize, m.MinOrderSize)
	}
	want := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	if !m.EndDate.Equal(want) {
		t.Errorf("EndDate = %s, want %s", m.EndDate, want)
	}

	bm, _ := m.ToBinaryMarket()
	if got := bm.TimeToExpiry(want.Add(-time.Minute)); got != time.Minute {
		t.Errorf("TimeToExpiry() = %s, want 1m", got)
	}
}

func TestPriceChangeMessage_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		wantTS  int64
		wantLen int
	}{
		{
			name: "documented_shape",
			input: `{"market":"0x5f65","event_type":"price_change","timestamp":"1757908892351",
				"price_changes":[
				{"asset_id":"7132","price":"0.5","size":"200","side":"BUY","hash":"5662","best_bid":"0.5","best_ask":"1"},
				{"asset_id":"5211","price":"0.5","size":"0","side":"SELL","hash":"1895","best_bid":"0","best_ask":"0.5"}]}`,
			wantTS:  1757908892351,
			wantLen: 2,
		},
		{
			name:    "no_timestamp",
			input:   `{"event_type":"price_change","price_changes":[]}`,
			wantTS:  0,
			wantLen: 0,
		},
		{
			name:    "bad_timestamp",
			input:   `{"event_type":"price_change","timestamp":"not_a_number","price_changes":[]}`,
			wantErr: true,
		},
		{
			name:    "invalid_json",
			input:   `{"event_type":"price_change","price_changes":[INVALID`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg PriceChangeMessage
			err := json.Unmarshal([]byte(tt.input), &msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Timestamp != tt.wantTS {
				t.Errorf("Timestamp = %d, want %d", msg.Timestamp, tt.wantTS)
			}
			if len(msg.PriceChanges) != tt.wantLen {
				t.Fatalf("len(PriceChanges) = %d, want %d", len(msg.PriceChanges), tt.wantLen)
			}
			if tt.wantLen == 2 {
				pc := msg.PriceChanges[1]
				if pc.Side != "SELL" || pc.Size != "0" || pc.AssetID != "5211" {
					t.Errorf("unexpected second change %+v", pc)
				}
			}
		})
	}
}

func TestBookMessage_UnmarshalJSON(t *testing.T) {
	input := `{"event_type":"book","asset_id":"tok","market":"0xm","timestamp":"1700000000000",
		"hash":"h","bids":[{"price":"0.48","size":"30"}],"asks":[{"price":"0.52","size":"25"}],
		"min_order_size":"5","tick_size":"0.01"}`

	var msg BookMessage
	if err := json.Unmarshal([]byte(input), &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if msg.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d", msg.Timestamp)
	}
	if len(msg.Bids) != 1 || len(msg.Asks) != 1 {
		t.Fatalf("levels = %d/%d, want 1/1", len(msg.Bids), len(msg.Asks))
	}
	if msg.Asks[0].Price != "0.52" || msg.MinOrderSize != "5" || msg.TickSize != "0.01" {
		t.Errorf("unexpected book %+v", msg)
	}
}

func TestUserTradeMessage(t *testing.T) {
	input := `{"event_type":"trade","id":"t1","taker_order_id":"0xtaker","status":"MATCHED",
		"asset_id":"tok","price":"0.5","size":"10","match_time":"1700000000",
		"maker_orders":[{"order_id":"0xmaker","asset_id":"tok2","matched_amount":"4","price":"0.48"}]}`

	var msg UserTradeMessage
	if err := json.Unmarshal([]byte(input), &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !msg.Counts() {
		t.Error("MATCHED trade should count")
	}
	if got := msg.Time(); !got.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Time() = %s", got)
	}
	if len(msg.MakerOrders) != 1 || msg.MakerOrders[0].MatchedAmount != "4" {
		t.Errorf("unexpected maker orders %+v", msg.MakerOrders)
	}

	msg.Status = TradeStatusFailed
	if msg.Counts() {
		t.Error("FAILED trade should not count")
	}
}

func TestParseUnixString(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Time
		wantOK bool
	}{
		{in: "1700000000", want: time.Unix(1700000000, 0), wantOK: true},
		{in: "1700000000123", want: time.UnixMilli(1700000000123), wantOK: true},
		{in: "", wantOK: false},
		{in: "abc", wantOK: false},
		{in: "-5", wantOK: false},
	}

	for _, tt := range tests {
		got, ok := ParseUnixString(tt.in)
		if ok != tt.wantOK {
			t.Errorf("ParseUnixString(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("ParseUnixString(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
