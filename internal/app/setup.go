package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/polymarket-boxspread/internal/discovery"
	"github.com/mselser95/polymarket-boxspread/internal/exchange"
	"github.com/mselser95/polymarket-boxspread/internal/markets"
	"github.com/mselser95/polymarket-boxspread/internal/session"
	"github.com/mselser95/polymarket-boxspread/internal/storage"
	"github.com/mselser95/polymarket-boxspread/pkg/cache"
	"github.com/mselser95/polymarket-boxspread/pkg/config"
	"github.com/mselser95/polymarket-boxspread/pkg/healthprobe"
	"github.com/mselser95/polymarket-boxspread/pkg/httpserver"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/mselser95/polymarket-boxspread/pkg/wallet"
	"github.com/mselser95/polymarket-boxspread/pkg/websocket"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		opts:          opts,
		logger:        logger,
		healthChecker: healthprobe.New(),
		ctx:           ctx,
		cancel:        cancel,
		sessionsDone:  make(chan struct{}),
	}

	client, err := setupExchangeClient(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup exchange client: %w", err)
	}
	a.client = client
	a.exchange = setupExchange(cfg, logger, client)

	marketCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}
	a.cache = marketCache

	a.discovery = setupDiscoveryService(cfg, logger, marketCache)
	a.metadata = setupMetadataService(cfg, logger, client, marketCache)

	a.storage, err = setupStorage(ctx, cfg, logger)
	if err != nil {
		marketCache.Close()
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	a.funder = common.HexToAddress(client.Funder())
	a.walletClient, a.walletTracker, err = setupWallet(cfg, logger, client.Funder())
	if err != nil {
		_ = a.storage.Close()
		marketCache.Close()
		cancel()
		return nil, fmt.Errorf("setup wallet: %w", err)
	}

	a.healthChecker.SetCheck(a.sessionReady)
	a.httpServer = httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: a.healthChecker,
		Sessions:      a,
	})

	return a, nil
}

func setupExchangeClient(cfg *config.Config, logger *zap.Logger) (*exchange.Client, error) {
	return exchange.New(&exchange.Config{
		BaseURL:       cfg.PolymarketCLOBURL,
		APIKey:        cfg.PolymarketAPIKey,
		Secret:        cfg.PolymarketSecret,
		Passphrase:    cfg.PolymarketPassphrase,
		PrivateKey:    cfg.PolymarketPrivateKey,
		ProxyAddress:  cfg.PolymarketProxyAddress,
		SignatureType: cfg.PolymarketSignatureType,
		ChainID:       cfg.ChainID,
		Logger:        logger,
	})
}

// setupExchange picks the order transport. Dry-run keeps orders in memory;
// book data still comes from the real client.
func setupExchange(cfg *config.Config, logger *zap.Logger, client *exchange.Client) session.Exchange {
	if cfg.ExecutionMode == config.ModeDryRun {
		logger.Info("paper-exchange-enabled", zap.String("mode", cfg.ExecutionMode))
		return exchange.NewPaper(logger)
	}
	return client
}

func setupCache(logger *zap.Logger) (*cache.RistrettoCache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "markets",
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupDiscoveryService(cfg *config.Config, logger *zap.Logger, c cache.Cache) *discovery.Service {
	dcfg := &discovery.Config{
		Client:           discovery.NewClient(cfg.PolymarketGammaURL, logger),
		Cache:            c,
		CacheTTL:         cfg.DiscoveryCacheTTL,
		SlugPrefix:       cfg.MarketSlugPrefix,
		MinTimeRemaining: cfg.MinTimeRemaining,
		Logger:           logger,
	}

	if cfg.HasStaticMarket() {
		dcfg.Static = &types.BinaryMarket{
			ConditionID: cfg.ConditionID,
			Slug:        "static-" + cfg.TokenIDYes,
			OutcomeA:    cfg.TokenIDYes,
			OutcomeB:    cfg.TokenIDNo,
			LabelA:      "Yes",
			LabelB:      "No",
			EndTime:     cfg.MarketEndTime,
		}
		logger.Info("static-market-configured",
			zap.String("condition-id", cfg.ConditionID),
			zap.Time("end-time", cfg.MarketEndTime))
	}

	return discovery.New(dcfg)
}

func setupMetadataService(cfg *config.Config, logger *zap.Logger, client *exchange.Client, c cache.Cache) *markets.Service {
	return markets.New(&markets.Config{
		Fetcher: client,
		Cache:   c,
		Retry:   retryConfig(cfg),
		Logger:  logger,
	})
}

func retryConfig(cfg *config.Config) websocket.RetryConfig {
	return websocket.RetryConfig{
		InitialDelay:      cfg.WSReconnectInitialDelay,
		MaxDelay:          cfg.WSReconnectMaxDelay,
		BackoffMultiplier: cfg.WSReconnectBackoffMult,
		JitterPercent:     0.2,
		MaxAttempts:       cfg.WSReconnectMaxAttempts,
	}
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pgStorage, err := storage.NewPostgresStorage(connectCtx, &storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	return storage.NewConsoleStorage(logger), nil
}

// setupWallet builds the funding preflight and balance tracker. Both need a
// Polygon RPC endpoint and a funder address; dry-run never spends.
func setupWallet(cfg *config.Config, logger *zap.Logger, funder string) (*wallet.Client, *wallet.Tracker, error) {
	if cfg.ExecutionMode == config.ModeDryRun || cfg.PolygonRPCURL == "" || funder == "" {
		logger.Info("wallet-checks-disabled",
			zap.String("mode", cfg.ExecutionMode),
			zap.Bool("rpc-configured", cfg.PolygonRPCURL != ""))
		return nil, nil, nil
	}

	client, err := wallet.NewClient(cfg.PolygonRPCURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create wallet client: %w", err)
	}

	tracker, err := wallet.NewTracker(&wallet.Config{
		Client:       client,
		Address:      common.HexToAddress(funder),
		PollInterval: cfg.WalletPollInterval,
		Required:     cfg.SessionFunding(),
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create wallet tracker: %w", err)
	}

	return client, tracker, nil
}
