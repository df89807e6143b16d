package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/polymarket-boxspread/internal/exchange"
	"github.com/mselser95/polymarket-boxspread/pkg/wallet"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Check the funding wallet",
	Long: `Display the funder's on-chain holdings:
- MATIC balance (for gas)
- USDC balance (for trading)
- USDC allowance (approved to the CTF Exchange)

Use --watch to keep polling and export the balances as metrics.`,
	Args: cobra.NoArgs,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringP("rpc", "r", "", "Polygon RPC endpoint (defaults to POLYGON_RPC_URL)")
	balanceCmd.Flags().BoolP("watch", "w", false, "Poll until interrupted")
}

func runBalance(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	rpcURL, _ := cmd.Flags().GetString("rpc")
	if rpcURL == "" {
		rpcURL = cfg.PolygonRPCURL
	}
	if rpcURL == "" {
		return errors.New("no RPC endpoint: set POLYGON_RPC_URL or --rpc")
	}
	watch, _ := cmd.Flags().GetBool("watch")

	ex, err := exchange.New(&exchange.Config{
		PrivateKey:   cfg.PolymarketPrivateKey,
		ProxyAddress: cfg.PolymarketProxyAddress,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("resolve funder: %w", err)
	}
	if ex.Funder() == "" {
		return errors.New("POLYMARKET_PRIVATE_KEY or POLYMARKET_PROXY_ADDRESS must be set")
	}
	address := common.HexToAddress(ex.Funder())

	client, err := wallet.NewClient(rpcURL, logger)
	if err != nil {
		return fmt.Errorf("create wallet client: %w", err)
	}

	if watch {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tracker, err := wallet.NewTracker(&wallet.Config{
			Client:       client,
			Address:      address,
			PollInterval: cfg.WalletPollInterval,
			Required:     cfg.SessionFunding(),
			Logger:       logger,
		})
		if err != nil {
			return fmt.Errorf("create tracker: %w", err)
		}
		err = tracker.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("track balance: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b, err := client.GetBalances(ctx, address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	fmt.Printf("=== Wallet Balance Sheet ===\n\n")
	fmt.Printf("Address:        %s\n", address.Hex())
	fmt.Printf("MATIC Balance:  %s MATIC\n", b.MATICAmount().StringFixed(6))
	fmt.Printf("USDC Balance:   %s USDC\n", b.USDCAmount().StringFixed(2))
	fmt.Printf("USDC Allowance: %s USDC\n", b.AllowanceAmount().StringFixed(2))

	required := cfg.SessionFunding()
	fmt.Printf("\nNeeded for one session: %s USDC\n", required.StringFixed(2))
	if b.USDCAmount().LessThan(required) {
		fmt.Println("Ready to trade: NO (fund the wallet)")
	} else if b.AllowanceAmount().LessThan(required) {
		fmt.Println("Ready to trade: NO (approve USDC to the exchange)")
	} else {
		fmt.Println("Ready to trade: YES")
	}

	return nil
}
