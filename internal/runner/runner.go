package runner

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MalasadaTech/masq-monitor/internal/config"
	"github.com/MalasadaTech/masq-monitor/internal/iocs"
	"github.com/MalasadaTech/masq-monitor/internal/logger"
	"github.com/MalasadaTech/masq-monitor/internal/platform"
	"github.com/MalasadaTech/masq-monitor/internal/query"
	"github.com/MalasadaTech/masq-monitor/internal/report"
	"github.com/MalasadaTech/masq-monitor/internal/results"
	"github.com/MalasadaTech/masq-monitor/internal/tlp"
)

const (
	runDirMode = 0o755
	// cacheSubdir holds raw API responses when caching is requested.
	cacheSubdir = "cached"
)

// Options selects run-time behavior for one target.
type Options struct {
	// Days overrides every lookback source when positive.
	Days int
	// TLP overrides the report ceiling.
	TLP tlp.Level
	// NoIOCs disables indicator extraction and export.
	NoIOCs bool
	// NoScreenshots skips screenshot downloads.
	NoScreenshots bool
	// CacheRaw writes the raw API records next to the report so a run
	// can be re-rendered without refetching.
	CacheRaw bool
}

// Runner executes the monitor pipeline for queries and groups.
type Runner struct {
	cfg      *config.Config
	clients  map[platform.Name]platform.Client
	renderer *report.Renderer
	logger   logger.Interface
	// now is replaceable in tests.
	now func() time.Time
}

// New builds a runner over the loaded configuration and platform clients.
func New(cfg *config.Config, clients map[platform.Name]platform.Client, renderer *report.Renderer, log logger.Interface) *Runner {
	if log == nil {
		log = logger.NewNoOp()
	}
	return &Runner{
		cfg:      cfg,
		clients:  clients,
		renderer: renderer,
		logger:   log.WithComponent("runner"),
		now:      time.Now,
	}
}

// Outcome records one target's result for the batch summary.
type Outcome struct {
	Target  string
	Kind    string
	Results int
	Report  string
	Err     error
}

// RunTarget executes the pipeline for one query or group name. The
// store disambiguates the two kinds; an unknown name fails with
// query.ErrUnknownQuery.
func (r *Runner) RunTarget(ctx context.Context, name string, opts Options) Outcome {
	runID := uuid.NewString()
	log := r.logger.WithRunID(runID).WithQuery(name)

	if _, ok := r.cfg.Store.GetGroup(name); ok {
		return r.runGroup(ctx, log, name, opts)
	}
	if _, ok := r.cfg.Store.GetQuery(name); ok {
		return r.runQuery(ctx, log, name, opts)
	}
	return Outcome{Target: name, Err: fmt.Errorf("%w: %q", query.ErrUnknownQuery, name)}
}

// RunAll executes every leaf query, isolating failures per target.
func (r *Runner) RunAll(ctx context.Context, opts Options) Summary {
	return r.runBatch(ctx, r.cfg.Store.QueryNames(), opts)
}

// RunAllGroups executes every group, isolating failures per target.
func (r *Runner) RunAllGroups(ctx context.Context, opts Options) Summary {
	return r.runBatch(ctx, r.cfg.Store.GroupNames(), opts)
}

func (r *Runner) runBatch(ctx context.Context, names []string, opts Options) Summary {
	s := Summary{}
	for _, name := range names {
		outcome := r.RunTarget(ctx, name, opts)
		if outcome.Err != nil {
			r.logger.Error("Target failed", "target", name, "error", outcome.Err)
		}
		s.Outcomes = append(s.Outcomes, outcome)
	}
	return s
}

func (r *Runner) runQuery(ctx context.Context, log logger.Interface, name string, opts Options) Outcome {
	outcome := Outcome{Target: name, Kind: "query"}
	q, _ := r.cfg.Store.GetQuery(name)

	start := r.now()
	ts := report.Timestamp(start)
	ceiling := tlp.Ceiling(opts.TLP, q.DefaultTLP, r.cfg.DefaultTLP)
	runDir := filepath.Join(r.cfg.OutputDirectory, report.RunDirName(name, ts, false))

	rs, err := r.executeLeaf(ctx, log, q, opts, start, runDir, ts)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Results = len(rs)

	html, err := r.renderer.RenderQuery(report.QueryInput{
		Query:       q,
		Results:     rs,
		Ceiling:     ceiling,
		GeneratedAt: start,
		Username:    r.cfg.ReportUsername,
	})
	if err != nil {
		outcome.Err = err
		return outcome
	}

	reportPath, err := r.writeReport(runDir, name, ts, ceiling, html)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Report = reportPath

	if !opts.NoIOCs {
		if err := iocs.Export(runDir, name, ts, iocs.Extract(rs)); err != nil {
			outcome.Err = err
			return outcome
		}
	}

	if err := r.cfg.CommitLastRun([]string{name}, start); err != nil {
		outcome.Err = err
		return outcome
	}

	log.Info("Run complete", "results", outcome.Results, "report", reportPath, "tlp", string(ceiling))
	return outcome
}

func (r *Runner) runGroup(ctx context.Context, log logger.Interface, name string, opts Options) Outcome {
	outcome := Outcome{Target: name, Kind: "group"}
	g, _ := r.cfg.Store.GetGroup(name)

	resolved, err := r.cfg.Store.Resolve(name)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	start := r.now()
	ts := report.Timestamp(start)
	ceiling := tlp.Ceiling(opts.TLP, g.DefaultTLP, r.cfg.DefaultTLP)
	runDir := filepath.Join(r.cfg.OutputDirectory, report.RunDirName(name, ts, true))

	// Any leaf failing aborts the whole group: a partial group must not
	// advance last_run or ship a report missing sections.
	var sections []report.GroupSection
	var all []results.Result
	for _, res := range resolved {
		rs, leafErr := r.executeLeaf(ctx, log.WithQuery(res.Query.Name), res.Query, opts, start, runDir, ts)
		if leafErr != nil {
			outcome.Err = fmt.Errorf("leaf %q: %w", res.Query.Name, leafErr)
			return outcome
		}
		sections = append(sections, report.GroupSection{Query: res.Query, Results: rs})
		all = append(all, rs...)
	}
	outcome.Results = len(all)

	html, err := r.renderer.RenderGroup(report.GroupInput{
		Group:       g,
		Sections:    sections,
		Ceiling:     ceiling,
		GeneratedAt: start,
		Username:    r.cfg.ReportUsername,
	})
	if err != nil {
		outcome.Err = err
		return outcome
	}

	reportPath, err := r.writeReport(runDir, name, ts, ceiling, html)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Report = reportPath

	if !opts.NoIOCs {
		if err := iocs.Export(runDir, name, ts, iocs.Extract(all)); err != nil {
			outcome.Err = err
			return outcome
		}
	}

	// A group run covers the group entry and every distinct leaf.
	names := []string{name}
	seen := map[string]bool{name: true}
	for _, res := range resolved {
		if !seen[res.Query.Name] {
			seen[res.Query.Name] = true
			names = append(names, res.Query.Name)
		}
	}
	if err := r.cfg.CommitLastRun(names, start); err != nil {
		outcome.Err = err
		return outcome
	}

	log.Info("Group run complete", "sections", len(sections), "results", outcome.Results, "report", reportPath, "tlp", string(ceiling))
	return outcome
}

// executeLeaf fetches and normalizes one query's results, downloading
// screenshots along the way. A fetch failure propagates so the caller
// withholds the last_run commit.
func (r *Runner) executeLeaf(ctx context.Context, log logger.Interface, q *query.Query, opts Options, start time.Time, runDir, ts string) ([]results.Result, error) {
	client, ok := r.clients[q.Platform]
	if !ok {
		return nil, fmt.Errorf("no client configured for platform %q", q.Platform)
	}

	window := EffectiveWindow(q, opts.Days, r.cfg.DefaultDays, start)
	log.Info("Fetching", "platform", string(q.Platform), "window_start", window.Start.Format(time.RFC3339))

	batch, err := client.Search(ctx, q.Query, window, q.Endpoint)
	if err != nil {
		return nil, err
	}

	if opts.CacheRaw {
		if err := r.cacheRaw(runDir, q.Name, ts, batch.Records); err != nil {
			return nil, err
		}
	}

	rs := make([]results.Result, 0, len(batch.Records))
	for _, rec := range batch.Records {
		dt := batch.DataType
		if dt == "" {
			dt = client.DetectDataType(rec)
		}
		rs = append(rs, results.Normalize(q.Platform, dt, rec, q.Name))
	}

	if !opts.NoScreenshots {
		r.fetchScreenshots(ctx, log, client, runDir, rs)
	}

	return rs, nil
}

// fetchScreenshots downloads and inlines platform screenshots. A failed
// download degrades that result to text-only rather than failing the run.
func (r *Runner) fetchScreenshots(ctx context.Context, log logger.Interface, client platform.Client, runDir string, rs []results.Result) {
	imagesDir := filepath.Join(runDir, report.ImagesSubdir)

	for i := range rs {
		if rs[i].ScanID == "" {
			continue
		}
		img, err := client.FetchScreenshot(ctx, rs[i].ScanID)
		if err != nil {
			log.Warn("Screenshot fetch failed", "scan_id", rs[i].ScanID, "error", err)
			continue
		}
		if img == nil {
			continue
		}

		if err := os.MkdirAll(imagesDir, runDirMode); err != nil {
			log.Warn("Creating images directory failed", "error", err)
			return
		}
		localPath := filepath.Join(imagesDir, rs[i].ScanID+".png")
		if err := os.WriteFile(localPath, img, 0o644); err != nil {
			log.Warn("Writing screenshot failed", "scan_id", rs[i].ScanID, "error", err)
			continue
		}
		rs[i].LocalScreenshot = filepath.Join(report.ImagesSubdir, rs[i].ScanID+".png")
		rs[i].ScreenshotB64 = base64.StdEncoding.EncodeToString(img)
	}
}

func (r *Runner) cacheRaw(runDir, name, ts string, records []platform.Raw) error {
	cacheDir := filepath.Join(runDir, cacheSubdir)
	if err := os.MkdirAll(cacheDir, runDirMode); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding raw cache: %w", err)
	}
	path := filepath.Join(cacheDir, fmt.Sprintf("%s_%s.json", name, ts))
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing raw cache: %w", err)
	}
	return nil
}

func (r *Runner) writeReport(runDir, name, ts string, ceiling tlp.Level, html string) (string, error) {
	if err := os.MkdirAll(runDir, runDirMode); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}
	path := filepath.Join(runDir, report.Filename(name, ts, ceiling))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}
