// Package queries implements the queries command for inspecting the
// configured query store.
package queries

import (
	"github.com/spf13/cobra"
)

// Command creates the queries command with its subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Inspect configured queries and groups",
		Long:  `The queries command provides functionality for inspecting the stored queries and query groups.`,
	}

	cmd.AddCommand(NewListCommand())

	return cmd
}
