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

var slippageBps uint32

var swapCmd = &cobra.Command{
	Use:   "swap <direction> <amount>",
	Short: "Execute a swap and wait for it to be mined",
	Long: `Execute a swap through the Universal Router and track it to a terminal
state. Direction is sell-base (native asset in) or sell-quote (quote token
in); amount is in human units of the asset being sold.

Examples:
  swaprunner swap sell-base 0.5
  swaprunner swap sell-quote 1200 --slippage-bps 50`,
	Args: cobra.ExactArgs(2),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().Uint32Var(&slippageBps, "slippage-bps", 0, "Slippage tolerance in basis points (default from config)")
}

func runSwap(cmd *cobra.Command, args []string) {
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
		s.Suffix = " Executing swap..."
		s.Start()
	}

	// An explicit --slippage-bps 0 means zero tolerance; only an unset
	// flag falls back to the configured default
	bps := slippageBps
	if !cmd.Flags().Changed("slippage-bps") {
		bps = rt.cfg.DefaultSlippageBps
	}

	result, execErr := rt.engine.Execute(ctx, models.SwapRequest{
		Direction:   direction,
		Amount:      amount,
		SlippageBps: bps,
	})

	if !jsonOutput {
		s.Stop()
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayResult(result)
	}

	if execErr != nil {
		os.Exit(1)
	}
}

func displayResult(result *models.SwapResult) {
	fmt.Println()
	switch result.Status {
	case models.SwapSuccess:
		color.Green("Swap succeeded")
	case models.SwapTimedOut:
		color.Yellow("Swap timed out, transaction left outstanding")
	default:
		color.Red("Swap failed")
	}

	fmt.Printf("  Request:  %s\n", result.RequestID)
	if result.Quote != nil {
		fmt.Printf("  Quote:    %s in -> %s estimated (min %s, rate %s",
			result.Quote.InputAmount, result.Quote.EstimatedOutput,
			result.Quote.MinimumOutput, result.Quote.RateUsed)
		if result.Quote.Stale {
			fmt.Printf(", stale")
		}
		fmt.Println(")")
	}
	if result.ApprovalHash != nil {
		fmt.Printf("  Approval: %s\n", result.ApprovalHash.Hex())
	}
	if result.TxHash != nil {
		fmt.Printf("  Tx:       %s\n", result.TxHash.Hex())
	}
	if result.GasUsed > 0 {
		fmt.Printf("  Gas used: %d (block %d)\n", result.GasUsed, result.BlockNumber)
	}
	if result.ErrorMessage != "" {
		fmt.Printf("  Error:    [%s] %s\n", result.ErrorKind, result.ErrorMessage)
	}
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Println()
}
