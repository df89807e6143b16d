package cmd

import (
	"fmt"

	"github.com/mselser95/polymarket-boxspread/internal/app"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the box-spread bot",
	Long: `Starts the bot, which will:
1. Find the soonest qualifying market in the configured series
2. Stream its order books and, in live mode, the account's fills
3. Rest traps on both outcomes and hedge every fill
4. Cancel and flatten before the market closes, then move to the next one

Set EXECUTION_MODE=dry-run to keep orders in memory.
Use --once to stop after a single market session.`,
	Args: cobra.NoArgs,
	RunE: runBot,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("once", false, "Stop after one market session")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	once, _ := cmd.Flags().GetBool("once")

	application, err := app.New(cfg, logger, &app.Options{Once: once})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
