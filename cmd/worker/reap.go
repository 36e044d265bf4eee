package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	cronjob "github.com/explorable-research/explorable-backend/internal/explorables/cron"
)

var staleAfter time.Duration

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Fail projects stuck mid-pipeline",
	Long:  "Mark in-flight projects that have not progressed recently as failed and release their sandboxes.",
	RunE:  runReap,
}

func init() {
	reapCmd.Flags().DurationVar(&staleAfter, "older-than", 0, "staleness threshold (default STALE_PROJECT_AFTER)")
	rootCmd.AddCommand(reapCmd)
}

func runReap(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	window := staleAfter
	if window <= 0 {
		window = rt.cfg.App.StaleProjectAfter
	}
	n := cronjob.NewScheduler(rt.caps.Pipeline, rt.cfg.App.ReaperSchedule, window).RunOnce(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "reaped %d project(s)\n", n)
	return nil
}
