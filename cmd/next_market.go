package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mselser95/polymarket-boxspread/internal/discovery"
	"github.com/mselser95/polymarket-boxspread/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var nextMarketCmd = &cobra.Command{
	Use:   "next-market",
	Short: "Show the market the bot would trade next",
	Long: `Queries the Gamma API the same way the bot does and prints the soonest
market of the configured series with enough time left to trade.

Use --list to also print the upcoming markets of the series.`,
	Args: cobra.NoArgs,
	RunE: runNextMarket,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(nextMarketCmd)
	nextMarketCmd.Flags().IntP("list", "l", 0, "Also list up to N upcoming markets of the series")
}

func runNextMarket(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	list, _ := cmd.Flags().GetInt("list")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := discovery.NewClient(cfg.PolymarketGammaURL, logger)
	service := discovery.New(&discovery.Config{
		Client:           client,
		SlugPrefix:       cfg.MarketSlugPrefix,
		MinTimeRemaining: cfg.MinTimeRemaining,
		Logger:           logger,
	})

	m, err := service.NextMarket(ctx)
	if err != nil {
		return fmt.Errorf("next market: %w", err)
	}
	printMarket(m)

	if list <= 0 {
		return nil
	}

	upcoming, err := client.FetchMarkets(ctx, discovery.Query{EndDateMin: time.Now(), Limit: discovery.MaxBatchSize})
	if err != nil {
		return fmt.Errorf("fetch markets: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nSLUG\tENDS IN\tACCEPTING\tCONDITION")
	shown := 0
	for i := range upcoming {
		u := &upcoming[i]
		if !strings.HasPrefix(u.Slug, cfg.MarketSlugPrefix) {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n",
			u.Slug, time.Until(u.EndDate).Round(time.Second), u.AcceptingOrders, shorten(u.ConditionID, 12))
		shown++
		if shown >= list {
			break
		}
	}
	_ = w.Flush()

	return nil
}

func printMarket(m *types.BinaryMarket) {
	fmt.Printf("Market:    %s\n", m.Slug)
	if m.Question != "" {
		fmt.Printf("Question:  %s\n", m.Question)
	}
	fmt.Printf("Condition: %s\n", m.ConditionID)
	fmt.Printf("Ends:      %s (in %s)\n", m.EndTime.Format(time.RFC3339), time.Until(m.EndTime).Round(time.Second))
	fmt.Printf("%-9s  %s\n", m.LabelA+":", m.OutcomeA)
	fmt.Printf("%-9s  %s\n", m.LabelB+":", m.OutcomeB)
}
