// Package render implements the render command: rebuild a report from
// a cached raw result file, without touching the network or last_run.
package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/MalasadaTech/masq-monitor/cmd/common"
	"github.com/MalasadaTech/masq-monitor/internal/platform"
	"github.com/MalasadaTech/masq-monitor/internal/platform/silentpush"
	"github.com/MalasadaTech/masq-monitor/internal/query"
	"github.com/MalasadaTech/masq-monitor/internal/report"
	"github.com/MalasadaTech/masq-monitor/internal/results"
	"github.com/MalasadaTech/masq-monitor/internal/tlp"
)

// timeNow is replaceable in tests.
var timeNow = time.Now

// Command creates the render command.
func Command() *cobra.Command {
	var resultsPath string
	var tlpLevel string

	cmd := &cobra.Command{
		Use:   "render <name>",
		Short: "Re-render a report from cached results",
		Long: `Render rebuilds a query's HTML report from a raw result cache written
by a previous run with --cache-raw. Useful for re-issuing a report at a
different TLP ceiling without refetching. The query's last_run is not
touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(args[0], resultsPath, tlpLevel)
		},
	}

	cmd.Flags().StringVar(&resultsPath, "results", "", "cached raw results file (required)")
	cmd.Flags().StringVar(&tlpLevel, "tlp", "", "override the report TLP ceiling")
	_ = cmd.MarkFlagRequired("results")

	return cmd
}

func execute(name, resultsPath, tlpLevel string) error {
	deps, err := common.NewCommandDeps()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	q, ok := deps.Config.Store.GetQuery(name)
	if !ok {
		return fmt.Errorf("%w: %q", query.ErrUnknownQuery, name)
	}

	var requested tlp.Level
	if tlpLevel != "" {
		requested, err = tlp.Parse(tlpLevel)
		if err != nil {
			return err
		}
	}
	ceiling := tlp.Ceiling(requested, q.DefaultTLP, deps.Config.DefaultTLP)

	rs, err := loadCached(resultsPath, q)
	if err != nil {
		return err
	}

	renderer, err := report.New(report.Config{
		DefaultTemplatePath: deps.Config.DefaultTemplatePath,
		Logger:              deps.Logger,
	})
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}

	now := timeNow()
	html, err := renderer.RenderQuery(report.QueryInput{
		Query:       q,
		Results:     rs,
		Ceiling:     ceiling,
		GeneratedAt: now,
		Username:    deps.Config.ReportUsername,
	})
	if err != nil {
		return err
	}

	ts := report.Timestamp(now)
	runDir := filepath.Join(deps.Config.OutputDirectory, report.RunDirName(name, ts, false))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	path := filepath.Join(runDir, report.Filename(name, ts, ceiling))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	fmt.Printf("Report written: %s\n", path)
	return nil
}

// loadCached reads a raw record cache and normalizes it the way a live
// run would, re-running data-type detection per record.
func loadCached(path string, q *query.Query) ([]results.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results cache: %w", err)
	}

	var records []platform.Raw
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing results cache: %w", err)
	}

	rs := make([]results.Result, 0, len(records))
	for _, rec := range records {
		dt := platform.DataTypeURLScan
		if q.Platform == platform.SilentPush {
			dt = silentpush.DetectDataType(rec)
		}
		rs = append(rs, results.Normalize(q.Platform, dt, rec, q.Name))
	}
	return rs, nil
}
