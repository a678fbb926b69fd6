// Package queries implements the queries command for inspecting the
// configured query store. This file contains the list command that
// displays every query and group in a formatted table.
package queries

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/MalasadaTech/masq-monitor/cmd/common"
	"github.com/MalasadaTech/masq-monitor/internal/logger"
	"github.com/MalasadaTech/masq-monitor/internal/query"
)

const lastRunLayout = "2006-01-02 15:04"

// TableRenderer displays store entries in a table.
type TableRenderer struct {
	logger logger.Interface
}

// NewTableRenderer creates a TableRenderer.
func NewTableRenderer(log logger.Interface) *TableRenderer {
	return &TableRenderer{logger: log}
}

// RenderTable formats and displays the store in a table. Queries come
// first, then groups, each sorted by name.
func (r *TableRenderer) RenderTable(store *query.Store) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Name", "Kind", "Platform", "Frequency", "Last Run", "Tags"})

	for _, name := range store.QueryNames() {
		q, _ := store.GetQuery(name)
		t.AppendRow(table.Row{
			q.Name,
			"query",
			string(q.Platform),
			q.Frequency.Value,
			formatLastRun(q.LastRun),
			strings.Join(q.Tags, ", "),
		})
	}
	for _, name := range store.GroupNames() {
		g, _ := store.GetGroup(name)
		t.AppendRow(table.Row{
			g.Name,
			fmt.Sprintf("group (%d)", len(g.Queries)),
			"",
			g.Frequency.Value,
			formatLastRun(g.LastRun),
			strings.Join(g.Tags, ", "),
		})
	}

	t.Render()
}

func formatLastRun(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return "never"
	}
	return ts.UTC().Format(lastRunLayout)
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configured queries and groups",
		Long:  `List every stored query and query group in the configuration document.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("failed to get dependencies: %w", err)
			}

			if deps.Config.Store.Len() == 0 {
				deps.Logger.Info("No queries configured")
				return nil
			}

			NewTableRenderer(deps.Logger).RenderTable(deps.Config.Store)
			return nil
		},
	}
}
