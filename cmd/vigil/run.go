package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vigil-agent/vigil/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor daemon",
	Long: `Start the monitoring loop. The first health cycle fires after one
jittered interval; each cycle collects metrics, compares them against
history, and escalates through the audit and diagnose classifiers.

Requires ANTHROPIC_API_KEY in the environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		logger, err := newLogger()
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		defer logger.Sync()

		sched, hist, err := buildScheduler(cfg, false, logger)
		if err != nil {
			return err
		}
		defer hist.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := sched.Start(ctx); err != nil {
			return err
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("shutting down", zap.Stringer("signal", sig))

		sched.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
