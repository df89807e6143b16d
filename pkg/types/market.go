package types

import (
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Market represents a Polymarket market from the Gamma API.
type Market struct {
	ID              string    `json:"id"`
	ConditionID     string    `json:"conditionId"`
	Question        string    `json:"question"`
	Slug            string    `json:"slug"`
	Closed          bool      `json:"closed"`
	Active          bool      `json:"active"`
	AcceptingOrders bool      `json:"acceptingOrders"`
	Tokens          []Token   `json:"-"` // Populated from outcomes + clobTokenIds
	EndDate         time.Time `json:"endDate"`
	TickSize        float64   `json:"orderPriceMinTickSize"`
	MinOrderSize    float64   `json:"orderMinSize"`
	Outcomes        string    `json:"outcomes"`     // JSON string: "[\"Up\", \"Down\"]"
	ClobTokens      string    `json:"clobTokenIds"` // JSON string: "[\"token1\", \"token2\"]"
}

// UnmarshalJSON parses outcomes and clobTokenIds into Tokens.
func (m *Market) UnmarshalJSON(data []byte) error {
	type Alias Market
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if m.Outcomes == "" || m.ClobTokens == "" {
		return nil
	}

	var outcomes []string
	var tokenIDs []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(m.ClobTokens), &tokenIDs); err != nil {
		return nil
	}

	m.Tokens = make([]Token, 0, len(outcomes))
	for i, outcome := range outcomes {
		if i < len(tokenIDs) {
			m.Tokens = append(m.Tokens, Token{
				TokenID: tokenIDs[i],
				Outcome: outcome,
			})
		}
	}

	return nil
}

// Token represents a market outcome token.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
}

// IsOutcomeA reports whether an outcome label maps to the first leg (Up/Yes).
func IsOutcomeA(label string) bool {
	switch strings.ToLower(label) {
	case "up", "yes":
		return true
	}
	return false
}

// IsOutcomeB reports whether an outcome label maps to the second leg (Down/No).
func IsOutcomeB(label string) bool {
	switch strings.ToLower(label) {
	case "down", "no":
		return true
	}
	return false
}

// BinaryMarket is the immutable market a session trades. Outcome A and B
// settle to exactly 1.00 combined.
type BinaryMarket struct {
	ConditionID  string    `json:"condition_id"`
	Slug         string    `json:"slug"`
	Question     string    `json:"question"`
	OutcomeA     string    `json:"outcome_a"` // token id
	OutcomeB     string    `json:"outcome_b"` // token id
	LabelA       string    `json:"label_a"`
	LabelB       string    `json:"label_b"`
	EndTime      time.Time `json:"end_time"`
	TickSize     float64   `json:"tick_size,omitempty"`
	MinOrderSize float64   `json:"min_order_size,omitempty"`
}

// ToBinaryMarket maps a Gamma market onto the A/B legs.
// Returns false when the market does not have exactly one A and one B token.
func (m *Market) ToBinaryMarket() (*BinaryMarket, bool) {
	if len(m.Tokens) != 2 {
		return nil, false
	}

	bm := &BinaryMarket{
		ConditionID:  m.ConditionID,
		Slug:         m.Slug,
		Question:     m.Question,
		EndTime:      m.EndDate,
		TickSize:     m.TickSize,
		MinOrderSize: m.MinOrderSize,
	}

	for _, tok := range m.Tokens {
		switch {
		case IsOutcomeA(tok.Outcome):
			bm.OutcomeA, bm.LabelA = tok.TokenID, tok.Outcome
		case IsOutcomeB(tok.Outcome):
			bm.OutcomeB, bm.LabelB = tok.TokenID, tok.Outcome
		}
	}

	if bm.OutcomeA == "" || bm.OutcomeB == "" {
		return nil, false
	}

	return bm, true
}

// Outcomes returns both token ids, A first.
func (b *BinaryMarket) Outcomes() []string {
	return []string{b.OutcomeA, b.OutcomeB}
}

// Opposite returns the other leg's token id, or "" for a foreign token.
func (b *BinaryMarket) Opposite(tokenID string) string {
	switch tokenID {
	case b.OutcomeA:
		return b.OutcomeB
	case b.OutcomeB:
		return b.OutcomeA
	}
	return ""
}

// Has reports whether tokenID belongs to this market.
func (b *BinaryMarket) Has(tokenID string) bool {
	return tokenID != "" && (tokenID == b.OutcomeA || tokenID == b.OutcomeB)
}

// Label returns the human outcome label for a token id.
func (b *BinaryMarket) Label(tokenID string) string {
	switch tokenID {
	case b.OutcomeA:
		return b.LabelA
	case b.OutcomeB:
		return b.LabelB
	}
	return ""
}

// TimeToExpiry returns the time left until EndTime (negative once expired).
func (b *BinaryMarket) TimeToExpiry(now time.Time) time.Duration {
	return b.EndTime.Sub(now)
}
