// Package gtm implements the gtm command: sweep a past run's captured
// DOMs for Google Tag Manager and Analytics container IDs.
package gtm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MalasadaTech/masq-monitor/internal/gtm"
	"github.com/MalasadaTech/masq-monitor/internal/logger"
	"github.com/MalasadaTech/masq-monitor/internal/platform/urlscan"
)

// Command creates the gtm command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "gtm <run-dir>",
		Short: "Extract tracking container IDs from a run's DOMs",
		Long: `Gtm reads the scan IDs a past run exported under iocs/, fetches each
scan's captured DOM from urlscan.io (cached under the run directory),
and extracts GTM, GA4, and UA container IDs. Shared IDs link
masquerade pages belonging to the same kit. Findings are written to
gtm_ids.csv in the run directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, args[0])
		},
	}
}

func execute(cmd *cobra.Command, runDir string) error {
	if _, err := os.Stat(runDir); err != nil {
		return fmt.Errorf("run directory: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:    logger.Level(viper.GetString("logger.level")),
		Encoding: viper.GetString("logger.encoding"),
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	client := urlscan.New(urlscan.Config{
		APIKey: os.Getenv(urlscan.EnvAPIKey),
		Logger: log,
	})

	findings, err := gtm.ProcessRunDir(cmd.Context(), runDir, client, log)
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		log.Info("No tracking IDs found")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Scan ID", "Tracking ID"})
	for _, f := range findings {
		t.AppendRow(table.Row{f.ScanID, f.ID})
	}
	t.Render()

	fmt.Printf("Findings written: %s\n", filepath.Join(runDir, gtm.OutputFile))
	return nil
}
