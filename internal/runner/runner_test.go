package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MalasadaTech/masq-monitor/internal/config"
	"github.com/MalasadaTech/masq-monitor/internal/platform"
	"github.com/MalasadaTech/masq-monitor/internal/query"
	"github.com/MalasadaTech/masq-monitor/internal/report"
	"github.com/stretchr/testify/require"
)

var runStart = time.Date(2025, 5, 20, 10, 30, 0, 0, time.UTC)

// fakeClient serves canned batches per query string and records the
// windows it was asked for.
type fakeClient struct {
	name        platform.Name
	batches     map[string]platform.Batch
	failQueries map[string]bool
	screenshots map[string][]byte
	windows     map[string]platform.Window
}

func newFakeClient(name platform.Name) *fakeClient {
	return &fakeClient{
		name:        name,
		batches:     make(map[string]platform.Batch),
		failQueries: make(map[string]bool),
		screenshots: make(map[string][]byte),
		windows:     make(map[string]platform.Window),
	}
}

func (f *fakeClient) Name() platform.Name { return f.name }

func (f *fakeClient) Search(_ context.Context, q string, window platform.Window, _ string) (platform.Batch, error) {
	f.windows[q] = window
	if f.failQueries[q] {
		return platform.Batch{}, platform.NewError(f.name, "search", errors.New("upstream unavailable"))
	}
	return f.batches[q], nil
}

func (f *fakeClient) DetectDataType(_ platform.Raw) platform.DataType {
	return platform.DataTypeURLScan
}

func (f *fakeClient) FetchScreenshot(_ context.Context, scanID string) ([]byte, error) {
	return f.screenshots[scanID], nil
}

func urlscanRecord(domain, scanID string) platform.Raw {
	return platform.Raw{
		"page": map[string]any{
			"url":    "https://" + domain + "/",
			"domain": domain,
			"ip":     "198.51.100.7",
			"title":  "USAA | Log On",
		},
		"task": map[string]any{"uuid": scanID, "time": "2025-05-20T10:00:00.000Z"},
	}
}

const testDocFmt = `{
    "output_directory": %q,
    "default_days": 7,
    "report_username": "analyst",
    "default_tlp_level": "green",
    "queries": {
        "usaa-domain": {"query": "domain:*usaa*", "platform": "urlscan"},
        "usaa-title": {"query": "page.title:USAA", "platform": "urlscan"},
        "usaa-favicon": {"query": "hash:cafe", "platform": "urlscan"},
        "usaa-monitoring": {
            "type": "query_group",
            "queries": ["usaa-domain", "usaa-title", "usaa-favicon"]
        }
    }
}`

func newTestRunner(t *testing.T, client *fakeClient) (*Runner, *config.Config) {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	doc := fmt.Sprintf(testDocFmt, filepath.Join(dir, "output"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(doc), 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	renderer, err := report.New(report.Config{})
	require.NoError(t, err)

	r := New(cfg, map[platform.Name]platform.Client{platform.URLScan: client}, renderer, nil)
	r.now = func() time.Time { return runStart }
	return r, cfg
}

func TestRunTarget_Query(t *testing.T) {
	t.Parallel()

	client := newFakeClient(platform.URLScan)
	client.batches["domain:*usaa*"] = platform.Batch{
		Records:  []platform.Raw{urlscanRecord("usaa-login.example.net", "scan-1")},
		DataType: platform.DataTypeURLScan,
	}
	client.screenshots["scan-1"] = []byte("png-bytes")
	r, cfg := newTestRunner(t, client)

	outcome := r.RunTarget(context.Background(), "usaa-domain", Options{CacheRaw: true})
	require.NoError(t, outcome.Err)
	require.Equal(t, 1, outcome.Results)

	// Window: no last_run, no query days, so default_days applies.
	w := client.windows["domain:*usaa*"]
	require.True(t, w.Start.Equal(runStart.AddDate(0, 0, -7)))
	require.True(t, w.End.Equal(runStart))

	// Report written with the ceiling in the name, defanged content inside.
	require.FileExists(t, outcome.Report)
	require.Contains(t, filepath.Base(outcome.Report), "TLP-GREEN")
	html, err := os.ReadFile(outcome.Report)
	require.NoError(t, err)
	require.Contains(t, string(html), "usaa-login[.]example[.]net")

	runDir := filepath.Dir(outcome.Report)
	require.FileExists(t, filepath.Join(runDir, "images", "scan-1.png"))
	require.FileExists(t, filepath.Join(runDir, "iocs", "usaa-domain_20250520_103000_domains.csv"))
	require.FileExists(t, filepath.Join(runDir, "cached", "usaa-domain_20250520_103000.json"))

	// last_run advanced to the run's start time.
	reloaded, err := config.Load(cfg.Path)
	require.NoError(t, err)
	q, _ := reloaded.Store.GetQuery("usaa-domain")
	require.NotNil(t, q.LastRun)
	require.True(t, q.LastRun.Equal(runStart))
}

func TestRunTarget_RecurringRunsNarrowWindow(t *testing.T) {
	t.Parallel()

	client := newFakeClient(platform.URLScan)
	client.batches["domain:*usaa*"] = platform.Batch{
		Records:  []platform.Raw{urlscanRecord("usaa-login.example.net", "scan-1")},
		DataType: platform.DataTypeURLScan,
	}
	r, _ := newTestRunner(t, client)

	outcome := r.RunTarget(context.Background(), "usaa-domain", Options{})
	require.NoError(t, outcome.Err)
	w := client.windows["domain:*usaa*"]
	require.True(t, w.Start.Equal(runStart.AddDate(0, 0, -7)))

	// A scheduler daemon keeps the same Runner alive across runs, so
	// the committed last_run must take effect without a config reload.
	later := runStart.Add(24 * time.Hour)
	r.now = func() time.Time { return later }

	outcome = r.RunTarget(context.Background(), "usaa-domain", Options{})
	require.NoError(t, outcome.Err)
	w = client.windows["domain:*usaa*"]
	require.True(t, w.Start.Equal(runStart), "second window must start at the committed last_run")
	require.True(t, w.End.Equal(later))
}

func TestRunTarget_QueryOptions(t *testing.T) {
	t.Parallel()

	client := newFakeClient(platform.URLScan)
	client.batches["domain:*usaa*"] = platform.Batch{
		Records:  []platform.Raw{urlscanRecord("usaa-login.example.net", "scan-1")},
		DataType: platform.DataTypeURLScan,
	}
	client.screenshots["scan-1"] = []byte("png-bytes")
	r, _ := newTestRunner(t, client)

	outcome := r.RunTarget(context.Background(), "usaa-domain", Options{
		Days:          2,
		NoIOCs:        true,
		NoScreenshots: true,
	})
	require.NoError(t, outcome.Err)

	w := client.windows["domain:*usaa*"]
	require.True(t, w.Start.Equal(runStart.AddDate(0, 0, -2)))

	runDir := filepath.Dir(outcome.Report)
	require.NoDirExists(t, filepath.Join(runDir, "iocs"))
	require.NoDirExists(t, filepath.Join(runDir, "images"))
}

func TestRunTarget_FetchFailureWithholdsCommit(t *testing.T) {
	t.Parallel()

	client := newFakeClient(platform.URLScan)
	client.failQueries["domain:*usaa*"] = true
	r, cfg := newTestRunner(t, client)

	outcome := r.RunTarget(context.Background(), "usaa-domain", Options{})
	require.Error(t, outcome.Err)

	var pErr *platform.Error
	require.ErrorAs(t, outcome.Err, &pErr)

	reloaded, err := config.Load(cfg.Path)
	require.NoError(t, err)
	q, _ := reloaded.Store.GetQuery("usaa-domain")
	require.Nil(t, q.LastRun, "a failed fetch must not advance last_run")
}

func TestRunTarget_Group(t *testing.T) {
	t.Parallel()

	client := newFakeClient(platform.URLScan)
	client.batches["domain:*usaa*"] = platform.Batch{Records: []platform.Raw{
		urlscanRecord("a.usaa.example.net", "scan-a"),
		urlscanRecord("b.usaa.example.net", "scan-b"),
	}, DataType: platform.DataTypeURLScan}
	client.batches["page.title:USAA"] = platform.Batch{Records: []platform.Raw{
		urlscanRecord("c.usaa.example.net", "scan-c"),
	}, DataType: platform.DataTypeURLScan}
	client.batches["hash:cafe"] = platform.Batch{DataType: platform.DataTypeURLScan}
	r, cfg := newTestRunner(t, client)

	outcome := r.RunTarget(context.Background(), "usaa-monitoring", Options{})
	require.NoError(t, outcome.Err)
	require.Equal(t, "group", outcome.Kind)
	require.Equal(t, 3, outcome.Results)

	html, err := os.ReadFile(outcome.Report)
	require.NoError(t, err)
	content := string(html)
	require.Contains(t, content, "(2 results)")
	require.Contains(t, content, "(1 result)")
	require.Contains(t, content, "(0 results)")
	require.Contains(t, filepath.Base(filepath.Dir(outcome.Report)), "_group")

	// The group and every leaf advance together.
	reloaded, err := config.Load(cfg.Path)
	require.NoError(t, err)
	for _, name := range []string{"usaa-domain", "usaa-title", "usaa-favicon"} {
		q, _ := reloaded.Store.GetQuery(name)
		require.NotNil(t, q.LastRun, name)
		require.True(t, q.LastRun.Equal(runStart), name)
	}
	g, _ := reloaded.Store.GetGroup("usaa-monitoring")
	require.NotNil(t, g.LastRun)
}

func TestRunTarget_GroupLeafFailureAbortsCommit(t *testing.T) {
	t.Parallel()

	client := newFakeClient(platform.URLScan)
	client.batches["domain:*usaa*"] = platform.Batch{Records: []platform.Raw{
		urlscanRecord("a.usaa.example.net", "scan-a"),
	}, DataType: platform.DataTypeURLScan}
	client.failQueries["page.title:USAA"] = true
	r, cfg := newTestRunner(t, client)

	outcome := r.RunTarget(context.Background(), "usaa-monitoring", Options{})
	require.Error(t, outcome.Err)
	require.Contains(t, outcome.Err.Error(), "usaa-title")

	// Not even the leaves that succeeded advance.
	reloaded, err := config.Load(cfg.Path)
	require.NoError(t, err)
	for _, name := range []string{"usaa-domain", "usaa-title", "usaa-favicon"} {
		q, _ := reloaded.Store.GetQuery(name)
		require.Nil(t, q.LastRun, name)
	}
	g, _ := reloaded.Store.GetGroup("usaa-monitoring")
	require.Nil(t, g.LastRun)
}

func TestRunTarget_Unknown(t *testing.T) {
	t.Parallel()

	r, _ := newTestRunner(t, newFakeClient(platform.URLScan))
	outcome := r.RunTarget(context.Background(), "no-such-target", Options{})
	require.ErrorIs(t, outcome.Err, query.ErrUnknownQuery)
}

func TestRunAll_IsolatesFailures(t *testing.T) {
	t.Parallel()

	client := newFakeClient(platform.URLScan)
	client.batches["domain:*usaa*"] = platform.Batch{Records: []platform.Raw{
		urlscanRecord("a.usaa.example.net", "scan-a"),
	}, DataType: platform.DataTypeURLScan}
	client.failQueries["page.title:USAA"] = true
	client.batches["hash:cafe"] = platform.Batch{DataType: platform.DataTypeURLScan}
	r, cfg := newTestRunner(t, client)

	summary := r.RunAll(context.Background(), Options{})
	require.True(t, summary.Failed())
	require.Len(t, summary.Outcomes, 3)

	byTarget := make(map[string]Outcome)
	for _, o := range summary.Outcomes {
		byTarget[o.Target] = o
	}
	require.NoError(t, byTarget["usaa-domain"].Err)
	require.Error(t, byTarget["usaa-title"].Err)
	require.NoError(t, byTarget["usaa-favicon"].Err)

	// Successes commit, the failure does not.
	reloaded, err := config.Load(cfg.Path)
	require.NoError(t, err)
	q, _ := reloaded.Store.GetQuery("usaa-domain")
	require.NotNil(t, q.LastRun)
	q, _ = reloaded.Store.GetQuery("usaa-title")
	require.Nil(t, q.LastRun)
}

func TestSummary_Render(t *testing.T) {
	t.Parallel()

	s := Summary{Outcomes: []Outcome{
		{Target: "usaa-domain", Kind: "query", Results: 2},
		{Target: "usaa-title", Kind: "query", Err: errors.New("upstream unavailable")},
	}}

	var b strings.Builder
	s.Render(&b)
	out := b.String()
	require.Contains(t, out, "usaa-domain")
	require.Contains(t, out, "ok")
	require.Contains(t, out, "upstream unavailable")
}
