package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "swaprunner",
	Short: "Execute ETH/USDC swaps through the Uniswap Universal Router",
	Long: `swaprunner executes swaps between the native asset and a quote token
on an EVM chain through the Uniswap Universal Router, handling quoting,
Permit2 approvals, EIP-1559 fee selection and receipt tracking.

Examples:
  swaprunner quote sell-base 0.5
  swaprunner swap sell-base 0.5 --slippage-bps 50
  swaprunner swap sell-quote 1200
  swaprunner status <tx-hash> --watch
  swaprunner serve`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}
