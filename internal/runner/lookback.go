// Package runner orchestrates query execution: it resolves targets,
// computes lookback windows, fetches and normalizes results, renders
// reports, and commits last-run state after a fully successful run.
package runner

import (
	"time"

	"github.com/MalasadaTech/masq-monitor/internal/platform"
	"github.com/MalasadaTech/masq-monitor/internal/query"
)

// EffectiveWindow computes the lookback window for one query run.
// Precedence, highest first: the run-time day override, a valid
// last_run timestamp, the query's own day setting, the document
// default. A last_run in the future is clock skew and is ignored, so
// the window never has negative length. The end is always now; closed
// historical ranges are not supported.
func EffectiveWindow(q *query.Query, overrideDays, defaultDays int, now time.Time) platform.Window {
	w := platform.Window{End: now}

	switch {
	case overrideDays > 0:
		w.Start = now.AddDate(0, 0, -overrideDays)
	case q.LastRun != nil && !q.LastRun.IsZero() && !q.LastRun.After(now):
		w.Start = *q.LastRun
	case q.Days > 0:
		w.Start = now.AddDate(0, 0, -q.Days)
	default:
		w.Start = now.AddDate(0, 0, -defaultDays)
	}

	return w
}
