package runner

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Summary collects per-target outcomes of a batch run. Targets are
// isolated: one failure never aborts its siblings, and the process exit
// status reflects Failed.
type Summary struct {
	Outcomes []Outcome
}

// Failed reports whether any target failed.
func (s Summary) Failed() bool {
	for _, o := range s.Outcomes {
		if o.Err != nil {
			return true
		}
	}
	return false
}

// Render writes the per-target summary table.
func (s Summary) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Target", "Kind", "Results", "Status"})

	for _, o := range s.Outcomes {
		status := "ok"
		if o.Err != nil {
			status = o.Err.Error()
		}
		t.AppendRow(table.Row{o.Target, o.Kind, o.Results, status})
	}

	t.Render()
}
