package app

import (
	"context"
	"sync"
	"sync/atomic"

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
	"github.com/mselser95/polymarket-boxspread/pkg/wallet"
	"go.uber.org/zap"
)

// App is the main application orchestrator. It runs market sessions back
// to back until shutdown.
type App struct {
	cfg           *config.Config
	opts          *Options
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	client    *exchange.Client
	exchange  session.Exchange // client in live mode, paper in dry-run
	discovery *discovery.Service
	metadata  *markets.Service
	cache     *cache.RistrettoCache
	storage   storage.Storage

	walletClient  *wallet.Client  // nil without an RPC endpoint
	walletTracker *wallet.Tracker // nil without an RPC endpoint
	funder        common.Address

	mu      sync.RWMutex
	current *session.Session
	fatal   error

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	started      atomic.Bool
	sessionsDone chan struct{}
}

// Options holds application options.
type Options struct {
	Once bool // exit after the first session ends
}
