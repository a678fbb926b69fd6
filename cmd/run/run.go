// Package run implements the run command: execute one stored query or
// group, or every one of them, through the full monitor pipeline.
package run

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MalasadaTech/masq-monitor/cmd/common"
	"github.com/MalasadaTech/masq-monitor/internal/runner"
	"github.com/MalasadaTech/masq-monitor/internal/tlp"
)

// ErrBatchFailed marks a batch run with at least one failed target so
// the process exits non-zero after the summary prints.
var ErrBatchFailed = errors.New("one or more targets failed")

type flags struct {
	all           bool
	allGroups     bool
	days          int
	tlpLevel      string
	noIOCs        bool
	noScreenshots bool
	cacheRaw      bool
}

// Command creates the run command.
func Command() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "run [name]",
		Short: "Run a stored query or query group",
		Long: `Run executes a stored query or query group: it computes the lookback
window from last_run, fetches and normalizes results, extracts IOCs, and
renders a TLP-classified HTML report into the output directory. With
--all or --all-groups every target runs independently and a per-target
summary is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, args, f)
		},
	}

	cmd.Flags().BoolVar(&f.all, "all", false, "run every leaf query")
	cmd.Flags().BoolVar(&f.allGroups, "all-groups", false, "run every query group")
	cmd.Flags().IntVarP(&f.days, "days", "d", 0, "override the lookback window in days")
	cmd.Flags().StringVar(&f.tlpLevel, "tlp", "", "override the report TLP ceiling (clear, green, amber, red)")
	cmd.Flags().BoolVar(&f.noIOCs, "no-iocs", false, "disable IOC extraction and export")
	cmd.Flags().BoolVar(&f.noScreenshots, "no-screenshots", false, "skip screenshot downloads")
	cmd.Flags().BoolVar(&f.cacheRaw, "cache-raw", false, "cache raw API responses in the run directory")

	return cmd
}

func execute(cmd *cobra.Command, args []string, f flags) error {
	opts, err := buildOptions(f)
	if err != nil {
		return err
	}

	if f.all && f.allGroups {
		return errors.New("--all and --all-groups are mutually exclusive")
	}
	if (f.all || f.allGroups) == (len(args) == 1) {
		return errors.New("name a query or group, or pass --all / --all-groups")
	}

	deps, err := common.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	r, err := common.NewRunner(deps)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		outcome := r.RunTarget(cmd.Context(), args[0], opts)
		if outcome.Err != nil {
			return fmt.Errorf("target %q: %w", args[0], outcome.Err)
		}
		fmt.Printf("Report written: %s\n", outcome.Report)
		return nil
	}

	var summary runner.Summary
	if f.all {
		summary = r.RunAll(cmd.Context(), opts)
	} else {
		summary = r.RunAllGroups(cmd.Context(), opts)
	}

	summary.Render(os.Stdout)
	if summary.Failed() {
		return ErrBatchFailed
	}
	return nil
}

func buildOptions(f flags) (runner.Options, error) {
	opts := runner.Options{
		Days:          f.days,
		NoIOCs:        f.noIOCs,
		NoScreenshots: f.noScreenshots,
		CacheRaw:      f.cacheRaw,
	}
	if f.days < 0 {
		return opts, errors.New("--days must not be negative")
	}
	if f.tlpLevel != "" {
		level, err := tlp.Parse(f.tlpLevel)
		if err != nil {
			return opts, err
		}
		opts.TLP = level
	}
	return opts, nil
}
