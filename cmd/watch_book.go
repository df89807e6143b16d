package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/discovery"
	"github.com/mselser95/polymarket-boxspread/internal/exchange"
	"github.com/mselser95/polymarket-boxspread/internal/orderbook"
	"github.com/mselser95/polymarket-boxspread/internal/supervisor"
	"github.com/mselser95/polymarket-boxspread/pkg/config"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/mselser95/polymarket-boxspread/pkg/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchBookCmd = &cobra.Command{
	Use:   "watch-book",
	Short: "Watch the top of book of the next market",
	Long: `Streams the order books of the market the bot would trade next and prints
the best bid and ask of both outcomes after every update, together with the
sum of the two best bids. No orders are placed.

Useful for checking stream health and how often the pair trades below 1.`,
	Args: cobra.NoArgs,
	RunE: runWatchBook,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchBookCmd)
}

func runWatchBook(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	market, err := watchedMarket(ctx, cfg, logger)
	if err != nil {
		return err
	}
	printMarket(market)

	client, err := exchange.New(&exchange.Config{BaseURL: cfg.PolymarketCLOBURL, Logger: logger})
	if err != nil {
		return fmt.Errorf("create exchange client: %w", err)
	}

	sup := supervisor.New(&supervisor.Config{
		Market:            market,
		Source:            client,
		MarketURL:         cfg.MarketWSURL(),
		DialTimeout:       cfg.WSDialTimeout,
		PingInterval:      cfg.WSPingInterval,
		MessageBufferSize: cfg.WSMessageBufferSize,
		Retry: websocket.RetryConfig{
			InitialDelay:      cfg.WSReconnectInitialDelay,
			MaxDelay:          cfg.WSReconnectMaxDelay,
			BackoffMultiplier: cfg.WSReconnectBackoffMult,
			JitterPercent:     0.2,
			MaxAttempts:       cfg.WSReconnectMaxAttempts,
		},
		Logger: logger,
	})

	// Stop at market close.
	ctx, cancel := context.WithDeadline(ctx, market.EndTime)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(ctx) }()

	book := orderbook.New(&orderbook.Config{Logger: logger})
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nTIME\tEVENT\t"+market.LabelA+" BID/ASK\t"+market.LabelB+" BID/ASK\tBID SUM")
	_ = w.Flush()

	for ev := range sup.Events() {
		switch ev.Kind {
		case supervisor.EventSnapshot:
			book.ApplySnapshot(ev.OutcomeID, ev.Sequence, ev.Bids, ev.Asks)
		case supervisor.EventDiff:
			if err := book.ApplyDiff(ev.OutcomeID, ev.Sequence, ev.Changes); err != nil {
				sup.Resync()
			}
		case supervisor.EventStale, supervisor.EventDown:
			book.MarkAllStale()
		case supervisor.EventConnected, supervisor.EventTickSize, supervisor.EventFill:
		}
		printTop(w, book, market, ev)
	}

	err = <-runErr
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("stream: %w", err)
	}
	return nil
}

func watchedMarket(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*types.BinaryMarket, error) {
	dcfg := &discovery.Config{
		Client:           discovery.NewClient(cfg.PolymarketGammaURL, logger),
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
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	m, err := discovery.New(dcfg).NextMarket(lookupCtx)
	if err != nil {
		return nil, fmt.Errorf("next market: %w", err)
	}
	return m, nil
}

func printTop(w *tabwriter.Writer, book *orderbook.Model, market *types.BinaryMarket, ev supervisor.Event) {
	a, errA := book.Best(market.OutcomeA)
	b, errB := book.Best(market.OutcomeB)

	sum := "-"
	if errA == nil && errB == nil && a.HasBid && b.HasBid {
		sum = a.BestBid.Add(b.BestBid).String()
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		at.Local().Format("15:04:05.000"), ev.Kind, topOf(a, errA), topOf(b, errB), sum)
	_ = w.Flush()
}

func topOf(q orderbook.Quote, err error) string {
	if err != nil {
		return "stale"
	}
	bid, ask := "-", "-"
	if q.HasBid {
		bid = q.BestBid.String()
	}
	if q.HasAsk {
		ask = q.BestAsk.String()
	}
	return bid + "/" + ask
}
