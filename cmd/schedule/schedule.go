// Package schedule implements the schedule command: a long-running
// daemon executing stored queries on their configured frequencies.
package schedule

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MalasadaTech/masq-monitor/cmd/common"
	"github.com/MalasadaTech/masq-monitor/internal/runner"
	"github.com/MalasadaTech/masq-monitor/internal/schedule"
	"github.com/MalasadaTech/masq-monitor/internal/tlp"
)

// Command creates the schedule command.
func Command() *cobra.Command {
	var tlpLevel string
	var noScreenshots bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run queries on their configured frequencies",
		Long: `Schedule starts a cron loop mapping each query's and group's frequency
(hourly, daily, weekly, monthly, or a raw cron expression) onto
recurring runs. Targets without a frequency are skipped. The daemon
runs until interrupted with Ctrl+C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, tlpLevel, noScreenshots)
		},
	}

	cmd.Flags().StringVar(&tlpLevel, "tlp", "", "override the report TLP ceiling for scheduled runs")
	cmd.Flags().BoolVar(&noScreenshots, "no-screenshots", false, "skip screenshot downloads")

	return cmd
}

func execute(cmd *cobra.Command, tlpLevel string, noScreenshots bool) error {
	deps, err := common.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	r, err := common.NewRunner(deps)
	if err != nil {
		return err
	}

	opts := runner.Options{NoScreenshots: noScreenshots}
	if tlpLevel != "" {
		level, parseErr := tlp.Parse(tlpLevel)
		if parseErr != nil {
			return parseErr
		}
		opts.TLP = level
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := schedule.New(r, deps.Config.Store, opts, deps.Logger)
	if err := svc.Register(ctx); err != nil {
		return err
	}
	if svc.Entries() == 0 {
		return errors.New("no queries or groups carry a frequency; nothing to schedule")
	}

	deps.Logger.Info("Starting scheduler")
	svc.Start()

	<-ctx.Done()
	deps.Logger.Info("Shutdown signal received")
	svc.Stop()
	deps.Logger.Info("Scheduler stopped")
	return nil
}
