package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/swaprun-hq/swaprunner/pkg/health"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the swap API and metrics server",
	Long: `Run the long-lived HTTP server exposing the swap API, health and
readiness probes, operational status and Prometheus metrics.`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer rt.close()

	// Shut down gracefully on SIGINT/SIGTERM
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		rt.logger.Notice("received termination signal, shutting down")
		cancel()
		os.Exit(0)
	}()

	server := health.NewServer(rt.cfg.MetricsPort, rt.engine, rt.breaker, rt.logger)
	server.Start()
}
