package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/exchange"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var cancelOrdersCmd = &cobra.Command{
	Use:   "cancel-orders",
	Short: "Cancel open orders on Polymarket",
	Long: `Cancel resting orders left behind by a crashed or killed bot.

Without --market every open order of the account is cancelled through
/cancel-all. With --market only that condition's orders are cancelled.
Use --dry-run to list the orders without cancelling.

Examples:
  # Preview orders without canceling
  polymarket-boxspread cancel-orders --dry-run

  # Cancel one market's orders
  polymarket-boxspread cancel-orders --market 0xabc...`,
	Args: cobra.NoArgs,
	RunE: runCancelOrders,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(cancelOrdersCmd)
	cancelOrdersCmd.Flags().Bool("dry-run", false, "List orders without canceling")
	cancelOrdersCmd.Flags().String("market", "", "Only cancel orders of this condition id")
}

func runCancelOrders(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	market, _ := cmd.Flags().GetString("market")

	client, err := exchange.New(&exchange.Config{
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
	if err != nil {
		return fmt.Errorf("create exchange client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	open, err := client.OpenOrders(ctx, market)
	if err != nil {
		return fmt.Errorf("fetch open orders: %w", err)
	}

	if len(open) == 0 {
		fmt.Println("No open orders found.")
		return nil
	}

	printOpenOrders(open)

	if dryRun {
		fmt.Println("\n[DRY RUN] No orders were canceled.")
		return nil
	}

	var n int
	if market != "" {
		n, err = client.CancelMarketOrders(ctx, market)
	} else {
		n, err = client.CancelAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("cancel orders: %w", err)
	}

	fmt.Printf("\nCanceled: %d of %d orders\n", n, len(open))
	return nil
}

func printOpenOrders(open []types.OrderQueryResponse) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tMARKET\tOUTCOME\tSIDE\tPRICE\tSIZE\tMATCHED")
	for _, o := range open {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shorten(o.ID, 12), shorten(o.Market, 12), o.Outcome, o.Side, o.Price, o.OriginalSize, o.SizeMatched)
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d orders, $%s locked\n", len(open), lockedValue(open).StringFixed(2))
}

// lockedValue is the notional of the unmatched remainder of every order.
func lockedValue(open []types.OrderQueryResponse) decimal.Decimal {
	total := decimal.Zero
	for _, o := range open {
		price, err := decimal.NewFromString(o.Price)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(o.OriginalSize)
		if err != nil {
			continue
		}
		matched, err := decimal.NewFromString(o.SizeMatched)
		if err != nil {
			matched = decimal.Zero
		}
		total = total.Add(price.Mul(size.Sub(matched)))
	}
	return total
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
