package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/swaprun-hq/swaprunner/pkg/models"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <direction> <amount>",
	Short: "Estimate a swap without executing it",
	Long: `Compute a quote for a swap plus the account state relevant to
executing it: balances and whether the spender is already approved.

Examples:
  swaprunner quote sell-base 0.5
  swaprunner quote sell-quote 1200 --slippage-bps 50 --json`,
	Args: cobra.ExactArgs(2),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().Uint32Var(&slippageBps, "slippage-bps", 0, "Slippage tolerance in basis points (default from config)")
}

func runQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	direction, err := parseDirection(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		printError(fmt.Errorf("invalid amount %q", args[1]))
		os.Exit(1)
	}

	ctx := context.Background()
	rt, err := bootstrap(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer rt.close()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	bps := slippageBps
	if !cmd.Flags().Changed("slippage-bps") {
		bps = rt.cfg.DefaultSlippageBps
	}

	snapshot, err := rt.engine.Snapshot(ctx, models.SwapRequest{
		Direction:   direction,
		Amount:      amount,
		SlippageBps: bps,
	})

	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(snapshot, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println()
	color.Cyan("Quote")
	fmt.Printf("  Input:     %s\n", snapshot.Quote.InputAmount)
	fmt.Printf("  Estimated: %s\n", snapshot.Quote.EstimatedOutput)
	fmt.Printf("  Minimum:   %s\n", snapshot.Quote.MinimumOutput)
	fmt.Printf("  Rate:      %s", snapshot.Quote.RateUsed)
	if snapshot.Quote.Stale {
		color.Yellow("  (stale fallback rate)")
	} else {
		fmt.Println()
	}
	fmt.Println()
	color.Cyan("Account")
	fmt.Printf("  Native balance: %s\n", snapshot.BaseBalance)
	fmt.Printf("  Token balance:  %s\n", snapshot.QuoteBalance)
	fmt.Printf("  Funds cover input:  %v\n", snapshot.HasBalance)
	fmt.Printf("  Spender approved:   %v\n", snapshot.SpenderAllowed)
	fmt.Println()
}
