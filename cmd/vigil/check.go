package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vigil-agent/vigil/internal/config"
)

var checkDryRun bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one health cycle immediately",
	Long: `Run a single collect → analyze → audit → diagnose cycle right now and
print the outcome.

Examples:
  # Full cycle, delivering any confirmed alert
  vigil check

  # Full cycle, but print the alert instead of delivering it
  vigil check --dry-run`,
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

		sched, hist, err := buildScheduler(cfg, checkDryRun, logger)
		if err != nil {
			return err
		}
		defer hist.Close()

		result, ran := sched.Trigger(context.Background())
		if !ran {
			return fmt.Errorf("a cycle is already running")
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("\n%s Collected %d readings (%d collectors ok, %d failed)\n\n",
			cyan("▶"), len(result.Snapshot), result.Successes, result.Failures)
		fmt.Println(result.Narrative)

		if result.Err != nil {
			fmt.Printf("%s cycle truncated: %v\n", red("✗"), result.Err)
			return result.Err
		}

		switch {
		case result.Audit == nil:
			fmt.Printf("%s no audit verdict\n", yellow("•"))
		case !result.Audit.EscalationNeeded:
			msg := "nothing to escalate"
			if result.Audit.Reason != "" {
				msg = result.Audit.Reason
			}
			fmt.Printf("%s audit: %s\n", green("✓"), msg)
		case result.Diagnose == nil || !result.Diagnose.EscalationNeeded:
			fmt.Printf("%s audit flagged %q, diagnose did not confirm\n",
				yellow("•"), result.Audit.Reason)
		default:
			fmt.Printf("%s escalation confirmed: %s\n",
				red("!"), result.Diagnose.MostLikelyHypothesis)
			if result.Notified {
				fmt.Printf("%s operator notified\n", green("✓"))
			}
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "print the alert instead of delivering it")
	rootCmd.AddCommand(checkCmd)
}
