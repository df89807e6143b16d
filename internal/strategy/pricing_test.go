package strategy

import (
	"testing"

	"github.com/mselser95/polymarket-boxspread/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloorToTick(t *testing.T) {
	tests := []struct {
		price string
		tick  string
		want  string
	}{
		{price: "0.48", tick: "0.01", want: "0.48"},
		{price: "0.4899", tick: "0.01", want: "0.48"},
		{price: "0.4899", tick: "0.001", want: "0.489"},
		{price: "0.505", tick: "0.01", want: "0.5"},
		{price: "0.5", tick: "0", want: "0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.price+"/"+tt.tick, func(t *testing.T) {
			got := floorToTick(d(tt.price), d(tt.tick))
			assert.True(t, got.Equal(d(tt.want)), "got %s", got)
		})
	}
}

func TestTrapPrice(t *testing.T) {
	p := testParams()

	got, err := p.TrapPrice(d("0.50"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("0.48")))

	got, err = p.TrapPrice(d("0.385"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("0.59")), "0.595 floors to 0.59, got %s", got)

	_, err = p.TrapPrice(d("0.30"))
	assert.ErrorIs(t, err, ErrInvariantViolation)

	_, err = p.TrapPrice(d("0.70"))
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestHedgeCeiling(t *testing.T) {
	p := testParams()

	got, err := p.HedgeCeiling(d("0.48"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("0.5")))

	got, err = p.HedgeCeiling(d("0.4833"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("0.49")), "0.4967 floors to 0.49, got %s", got)

	_, err = p.HedgeCeiling(d("0.98"))
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestHedgePrice(t *testing.T) {
	p := testParams()
	ceiling := d("0.50")

	tests := []struct {
		name      string
		ask       string
		hasAsk    bool
		allowLoss bool
		want      string
	}{
		{name: "ask_below_ceiling", ask: "0.49", hasAsk: true, want: "0.49"},
		{name: "ask_at_ceiling", ask: "0.50", hasAsk: true, want: "0.50"},
		{name: "ask_above_ceiling_waits", ask: "0.51", hasAsk: true, want: "0.50"},
		{name: "no_asks", hasAsk: false, want: "0.50"},
		{name: "loss_within_budget", ask: "0.51", hasAsk: true, allowLoss: true, want: "0.51"},
		{name: "loss_over_budget", ask: "0.52", hasAsk: true, allowLoss: true, want: "0.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ask := d("0")
			if tt.ask != "" {
				ask = d(tt.ask)
			}
			got := p.HedgePrice(ceiling, ask, tt.hasAsk, tt.allowLoss)
			assert.True(t, got.Equal(d(tt.want)), "got %s", got)
		})
	}
}

func TestHedgeSize(t *testing.T) {
	p := testParams()
	p.MinOrderSize = d("5")

	tests := []struct {
		exposure string
		want     string
		ok       bool
	}{
		{exposure: "0", ok: false},
		{exposure: "2", ok: false},
		{exposure: "2.5", ok: false},
		{exposure: "3", want: "5", ok: true},
		{exposure: "10", want: "10", ok: true},
		{exposure: "150", want: "100", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.exposure, func(t *testing.T) {
			got, ok := p.HedgeSize(d(tt.exposure))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(d(tt.want)), "got %s", got)
			}
		})
	}
}

func TestTrapSizeFor(t *testing.T) {
	p := testParams()

	got, ok := p.TrapSizeFor(d("0"))
	require.True(t, ok)
	assert.True(t, got.Equal(d("10")))

	got, ok = p.TrapSizeFor(d("97"))
	require.True(t, ok)
	assert.True(t, got.Equal(d("3")))

	_, ok = p.TrapSizeFor(d("99.5"))
	assert.False(t, ok, "below the minimum order size")

	_, ok = p.TrapSizeFor(d("100"))
	assert.False(t, ok)
}

func TestFlattenPrice(t *testing.T) {
	p := testParams()

	assert.True(t, p.FlattenPrice(d("0.45"), true).Equal(d("0.43")))
	assert.True(t, p.FlattenPrice(d("0.02"), true).Equal(d("0.01")))
	assert.True(t, p.FlattenPrice(d("0"), false).Equal(d("0.01")))
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{name: "c_target_one", mutate: func(p *Params) { p.CTarget = d("1") }},
		{name: "zero_exposure", mutate: func(p *Params) { p.MaxExposure = d("0") }},
		{name: "zero_trap_size", mutate: func(p *Params) { p.TrapSize = d("0") }},
		{name: "zero_tick", mutate: func(p *Params) { p.TickSize = d("0") }},
		{name: "inverted_range", mutate: func(p *Params) { p.RangeMin, p.RangeMax = d("0.6"), d("0.4") }},
		{name: "final_exit_after_buffer", mutate: func(p *Params) { p.FinalExitBuffer = p.ExpiryBuffer * 2 }},
		{name: "unknown_policy", mutate: func(p *Params) { p.HedgeCrossPolicy = "yolo" }},
	}

	require.NoError(t, testParams().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestParamsFromConfig(t *testing.T) {
	cfg := &config.Config{
		CTarget:          0.97,
		MaxExposure:      50,
		TrapOrderSize:    5,
		MinOrderSize:     1,
		RangeMin:         0.35,
		RangeMax:         0.65,
		TickSize:         0.01,
		RepriceTolerance: 0.005,
		HedgeCrossPolicy: config.HedgePolicyCross,
		HedgeMaxLoss:     0.02,
		FlattenSlippage:  0.03,
	}

	p := ParamsFromConfig(cfg)
	assert.True(t, p.CTarget.Equal(d("0.97")))
	assert.True(t, p.MaxExposure.Equal(d("50")))
	assert.True(t, p.RangeMax.Equal(d("0.65")))
	assert.True(t, p.FlattenSlippage.Equal(d("0.03")))
	assert.Equal(t, config.HedgePolicyCross, p.HedgeCrossPolicy)
}
