package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vigil-agent/vigil/internal/config"
	"github.com/vigil-agent/vigil/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently delivered alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		hist, err := history.Open(cfg.HistoryPath())
		if err != nil {
			return err
		}
		defer hist.Close()

		msgs, err := hist.RecentMessages(context.Background(), historyLimit)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("No alerts delivered yet.")
			return nil
		}

		dim := color.New(color.Faint).SprintFunc()
		for _, m := range msgs {
			fmt.Printf("%s %s\n", dim(m.CreatedAt.Local().Format("2006-01-02 15:04")), m.Text)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of alerts to show")
	rootCmd.AddCommand(historyCmd)
}
