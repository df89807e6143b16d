package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Execution modes.
const (
	ModeLive   = "live"
	ModeDryRun = "dry-run"
)

// Hedge crossing policies applied when a hedge cannot reach its price before expiry.
const (
	HedgePolicyWait  = "wait"
	HedgePolicyCross = "cross"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel      string
	HTTPPort      string
	ExecutionMode string

	// Polymarket API
	PolymarketCLOBURL       string
	PolymarketWSURL         string
	PolymarketGammaURL      string
	PolymarketAPIKey        string
	PolymarketSecret        string
	PolymarketPassphrase    string
	PolymarketPrivateKey    string
	PolymarketProxyAddress  string
	PolymarketSignatureType int
	ChainID                 int64
	PolygonRPCURL           string
	WalletPollInterval      time.Duration

	// Risk parameters
	ProfitMargin      float64
	CTarget           float64 // 1 - ProfitMargin unless C_TARGET overrides it
	MaxExposure       float64
	TrapOrderSize     float64
	MinOrderSize      float64
	RangeMin          float64
	RangeMax          float64
	TickSize          float64
	RepriceTolerance  float64
	MinHedgeThreshold float64
	ExpiryBuffer      time.Duration
	FinalExitBuffer   time.Duration
	EmergencyCooldown time.Duration
	HedgeCrossPolicy  string
	HedgeMaxLoss      float64
	HedgeCrossWindow  time.Duration
	FlattenSlippage   float64

	// Market selection
	MarketSlugPrefix  string
	MarketDuration    time.Duration
	MinTimeRemaining  time.Duration
	ConditionID       string
	TokenIDYes        string
	TokenIDNo         string
	MarketEndTime     time.Time
	SessionRetryDelay time.Duration
	DiscoveryCacheTTL time.Duration

	// Orders
	OrderAckTimeout        time.Duration
	RejectBreakerThreshold int
	StatusPollMaxBackoff   time.Duration
	ShutdownTimeout        time.Duration

	// WebSocket
	WSDialTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSReconnectMaxAttempts  int
	WSMessageBufferSize     int

	// Persistence
	StateFile            string
	StatePersistInterval time.Duration
	StorageMode          string // "postgres" or "console"
	PostgresHost         string
	PostgresPort         string
	PostgresUser         string
	PostgresPass         string
	PostgresDB           string
	PostgresSSL          string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	profitMargin := getFloat64OrDefault("PROFIT_MARGIN", 0.02)

	cfg := &Config{
		// Application defaults
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort:      getEnvOrDefault("HTTP_PORT", "8080"),
		ExecutionMode: getEnvOrDefault("EXECUTION_MODE", ModeLive),

		// Polymarket API defaults
		PolymarketCLOBURL:       getEnvOrDefault("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		PolymarketWSURL:         strings.TrimSuffix(getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws"), "/"),
		PolymarketGammaURL:      getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketAPIKey:        os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:        os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase:    os.Getenv("POLYMARKET_PASSPHRASE"),
		PolymarketPrivateKey:    os.Getenv("POLYMARKET_PRIVATE_KEY"),
		PolymarketProxyAddress:  os.Getenv("POLYMARKET_PROXY_ADDRESS"),
		PolymarketSignatureType: getIntOrDefault("POLYMARKET_SIGNATURE_TYPE", 0),
		ChainID:                 int64(getIntOrDefault("CHAIN_ID", 137)),
		PolygonRPCURL:           os.Getenv("POLYGON_RPC_URL"),
		WalletPollInterval:      getDurationOrDefault("WALLET_POLL_INTERVAL", time.Minute),

		// Risk defaults
		ProfitMargin:      profitMargin,
		CTarget:           getFloat64OrDefault("C_TARGET", 1.0-profitMargin),
		MaxExposure:       getFloat64OrDefault("MAX_EXPOSURE", 100),
		TrapOrderSize:     getFloat64OrDefault("TRAP_ORDER_SIZE", 10),
		MinOrderSize:      getFloat64OrDefault("MIN_ORDER_SIZE", 1),
		RangeMin:          getFloat64OrDefault("RANGE_MIN", 0.40),
		RangeMax:          getFloat64OrDefault("RANGE_MAX", 0.60),
		TickSize:          getFloat64OrDefault("TICK_SIZE", 0.01),
		RepriceTolerance:  getFloat64OrDefault("REPRICE_TOLERANCE", 0.005),
		MinHedgeThreshold: getFloat64OrDefault("MIN_HEDGE_THRESHOLD", 0),
		ExpiryBuffer:      getSecondsOrDefault("EXPIRY_BUFFER_SECONDS", 60),
		FinalExitBuffer:   getSecondsOrDefault("FINAL_EXIT_SECONDS", 10),
		EmergencyCooldown: getSecondsOrDefault("EMERGENCY_COOLDOWN", 30),
		HedgeCrossPolicy:  getEnvOrDefault("HEDGE_CROSS_POLICY", HedgePolicyWait),
		HedgeMaxLoss:      getFloat64OrDefault("HEDGE_MAX_LOSS", 0.01),
		HedgeCrossWindow:  getDurationOrDefault("HEDGE_CROSS_WINDOW", 30*time.Second),
		FlattenSlippage:   getFloat64OrDefault("FLATTEN_SLIPPAGE", 0.02),

		// Market selection defaults
		MarketSlugPrefix:  getEnvOrDefault("MARKET_SLUG_PREFIX", "btc-updown-15m"),
		MarketDuration:    time.Duration(getIntOrDefault("MARKET_DURATION_MINUTES", 15)) * time.Minute,
		MinTimeRemaining:  getDurationOrDefault("MIN_TIME_REMAINING", 2*time.Minute),
		ConditionID:       os.Getenv("CONDITION_ID"),
		TokenIDYes:        os.Getenv("TOKEN_ID_YES"),
		TokenIDNo:         os.Getenv("TOKEN_ID_NO"),
		MarketEndTime:     getTimeOrDefault("MARKET_END_TIME", time.Time{}),
		SessionRetryDelay: getDurationOrDefault("SESSION_RETRY_DELAY", 10*time.Second),
		DiscoveryCacheTTL: getDurationOrDefault("DISCOVERY_CACHE_TTL", 30*time.Second),

		// Order defaults
		OrderAckTimeout:        getDurationOrDefault("ORDER_ACK_TIMEOUT", 5*time.Second),
		RejectBreakerThreshold: getIntOrDefault("REJECT_BREAKER_THRESHOLD", 3),
		StatusPollMaxBackoff:   getDurationOrDefault("STATUS_POLL_MAX_BACKOFF", 5*time.Second),
		ShutdownTimeout:        getDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second),

		// WebSocket defaults
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSReconnectMaxAttempts:  getIntOrDefault("WS_RECONNECT_MAX_ATTEMPTS", 10),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		// Persistence defaults
		StateFile:            getEnvOrDefault("STATE_FILE", "mm_state.json"),
		StatePersistInterval: getDurationOrDefault("STATE_PERSIST_INTERVAL", 30*time.Second),
		StorageMode:          getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost:         getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:         getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser:         getEnvOrDefault("POSTGRES_USER", "polymarket"),
		PostgresPass:         getEnvOrDefault("POSTGRES_PASSWORD", "polymarket123"),
		PostgresDB:           getEnvOrDefault("POSTGRES_DB", "polymarket_boxspread"),
		PostgresSSL:          getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.PolymarketWSURL == "" {
		return fmt.Errorf("POLYMARKET_WS_URL cannot be empty")
	}

	if c.PolymarketCLOBURL == "" {
		return fmt.Errorf("POLYMARKET_CLOB_URL cannot be empty")
	}

	if c.ExecutionMode != ModeLive && c.ExecutionMode != ModeDryRun {
		return fmt.Errorf("EXECUTION_MODE must be %q or %q, got %q", ModeLive, ModeDryRun, c.ExecutionMode)
	}

	if c.ProfitMargin <= 0 || c.ProfitMargin >= 1 {
		return fmt.Errorf("PROFIT_MARGIN must be between 0 and 1, got %f", c.ProfitMargin)
	}

	if c.CTarget <= 0 || c.CTarget >= 1 {
		return fmt.Errorf("C_TARGET must be between 0 and 1, got %f", c.CTarget)
	}

	if c.MaxExposure <= 0 {
		return fmt.Errorf("MAX_EXPOSURE must be positive, got %f", c.MaxExposure)
	}

	if c.TrapOrderSize <= 0 {
		return fmt.Errorf("TRAP_ORDER_SIZE must be positive, got %f", c.TrapOrderSize)
	}

	if c.RangeMin <= 0 || c.RangeMax >= 1 || c.RangeMin >= c.RangeMax {
		return fmt.Errorf("RANGE_MIN/RANGE_MAX must satisfy 0 < min < max < 1, got %f/%f", c.RangeMin, c.RangeMax)
	}

	if c.TickSize <= 0 {
		return fmt.Errorf("TICK_SIZE must be positive, got %f", c.TickSize)
	}

	if c.FinalExitBuffer > c.ExpiryBuffer {
		return fmt.Errorf("FINAL_EXIT_SECONDS (%s) cannot exceed EXPIRY_BUFFER_SECONDS (%s)", c.FinalExitBuffer, c.ExpiryBuffer)
	}

	if c.HedgeCrossPolicy != HedgePolicyWait && c.HedgeCrossPolicy != HedgePolicyCross {
		return fmt.Errorf("HEDGE_CROSS_POLICY must be %q or %q, got %q", HedgePolicyWait, HedgePolicyCross, c.HedgeCrossPolicy)
	}

	if c.WSReconnectMaxAttempts <= 0 {
		return fmt.Errorf("WS_RECONNECT_MAX_ATTEMPTS must be positive, got %d", c.WSReconnectMaxAttempts)
	}

	if c.HasStaticMarket() && c.MarketEndTime.IsZero() {
		return fmt.Errorf("MARKET_END_TIME is required when TOKEN_ID_YES/TOKEN_ID_NO are set")
	}

	if c.ExecutionMode == ModeLive {
		if c.PolymarketPrivateKey == "" {
			return fmt.Errorf("POLYMARKET_PRIVATE_KEY is required in live mode")
		}
		if c.PolymarketAPIKey == "" || c.PolymarketSecret == "" || c.PolymarketPassphrase == "" {
			return fmt.Errorf("POLYMARKET_API_KEY, POLYMARKET_SECRET and POLYMARKET_PASSPHRASE are required in live mode")
		}
	}

	return nil
}

// SessionFunding is the USDC both traps lock up when resting at the pair target.
func (c *Config) SessionFunding() decimal.Decimal {
	return decimal.NewFromFloat(c.TrapOrderSize).
		Mul(decimal.NewFromFloat(c.CTarget)).
		Mul(decimal.NewFromInt(2))
}

// HasStaticMarket reports whether the market was pinned through the environment.
func (c *Config) HasStaticMarket() bool {
	return c.TokenIDYes != "" && c.TokenIDNo != ""
}

// MarketWSURL is the public book channel.
func (c *Config) MarketWSURL() string {
	return c.PolymarketWSURL + "/market"
}

// UserWSURL is the authenticated fill channel.
func (c *Config) UserWSURL() string {
	return c.PolymarketWSURL + "/user"
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

// getSecondsOrDefault reads a whole number of seconds.
func getSecondsOrDefault(key string, defaultSeconds int) time.Duration {
	return time.Duration(getIntOrDefault(key, defaultSeconds)) * time.Second
}

func getTimeOrDefault(key string, defaultValue time.Time) time.Time {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return defaultValue
	}

	return t
}
