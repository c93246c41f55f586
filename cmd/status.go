package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/swaprun-hq/swaprunner/pkg/tracker"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the lifecycle state of a transaction",
	Long: `Check whether a submitted transaction is pending, confirmed or
reverted.

Examples:
  swaprunner status 0x1234...abcd
  swaprunner status 0x1234...abcd --watch
  swaprunner status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	hashHex := args[0]
	if len(hashHex) != 66 || hashHex[:2] != "0x" {
		printError(fmt.Errorf("invalid transaction hash %q", hashHex))
		os.Exit(1)
	}
	txHash := common.HexToHash(hashHex)

	ctx := context.Background()
	rt, err := bootstrap(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer rt.close()

	if watchStatus {
		watchTxStatus(ctx, rt, txHash, jsonOutput)
	} else {
		checkTxStatus(ctx, rt, txHash, jsonOutput)
	}
}

func checkTxStatus(ctx context.Context, rt *runtime, txHash common.Hash, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking transaction status..."
		s.Start()
	}

	status, err := rt.engine.Tracker().CheckOnce(ctx, txHash)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayStatus(status)
	}
}

func watchTxStatus(ctx context.Context, rt *runtime, txHash common.Hash, jsonOutput bool) {
	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	for {
		status, err := rt.engine.Tracker().CheckOnce(ctx, txHash)
		if err != nil {
			printError(err)
			os.Exit(1)
		}

		if jsonOutput {
			jsonData, _ := json.Marshal(status)
			fmt.Println(string(jsonData))
		} else {
			displayStatus(status)
		}

		if status.State.Terminal() {
			return
		}
		<-ticker.C
	}
}

func displayStatus(status *tracker.Status) {
	fmt.Printf("\nTransaction %s\n", status.TxHash.Hex())
	switch status.State {
	case tracker.StateConfirmed:
		color.Green("  State: CONFIRMED (%d confirmation(s))", status.Confirmations)
	case tracker.StateReverted:
		color.Red("  State: REVERTED")
	default:
		color.Yellow("  State: PENDING")
	}
	if status.Receipt != nil {
		fmt.Printf("  Gas used: %d\n", status.Receipt.GasUsed)
		if status.Receipt.BlockNumber != nil {
			fmt.Printf("  Block:    %d\n", status.Receipt.BlockNumber.Uint64())
		}
	}
	fmt.Println()
}
