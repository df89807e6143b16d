package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// MATICBalance is the funder's gas balance.
	MATICBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_wallet_matic_balance",
		Help: "Current MATIC balance in wallet (native units)",
	})

	// USDCBalance tracks the current USDC balance for trading.
	USDCBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_wallet_usdc_balance",
		Help: "Current USDC balance in wallet (USD)",
	})

	// USDCAllowance tracks the USDC allowance approved to CTF Exchange.
	USDCAllowance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_wallet_usdc_allowance",
		Help: "USDC allowance approved to CTF Exchange (USD)",
	})

	// FundingShortfall is how much USDC the funder lacks for one session.
	FundingShortfall = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_wallet_funding_shortfall",
		Help: "USDC missing to fund both traps of one session (USD)",
	})

	// PreflightTotal counts funding checks by outcome.
	PreflightTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_wallet_preflight_total",
		Help: "Funding preflight checks by result (ok, insufficient, error)",
	}, []string{"result"})

	// UpdateErrorsTotal counts failed balance polls.
	UpdateErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_wallet_update_errors_total",
		Help: "Failed wallet balance polls",
	})

	// UpdateDuration tracks the time taken to fetch wallet data.
	UpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_wallet_update_duration_seconds",
		Help:    "Time taken to fetch wallet data (seconds)",
		Buckets: prometheus.DefBuckets,
	})

	// LastUpdateTimestamp tracks the Unix timestamp of the last successful update.
	LastUpdateTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_wallet_last_update_timestamp",
		Help: "Unix timestamp of last successful wallet update",
	})
)
