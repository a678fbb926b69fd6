// Package cmd implements the command-line interface of masq-monitor.
// It provides the root command and subcommands for running stored
// queries and producing TLP-classified reports.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MalasadaTech/masq-monitor/cmd/gtm"
	"github.com/MalasadaTech/masq-monitor/cmd/queries"
	"github.com/MalasadaTech/masq-monitor/cmd/render"
	"github.com/MalasadaTech/masq-monitor/cmd/run"
	"github.com/MalasadaTech/masq-monitor/cmd/schedule"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	// cfgFile holds the path to the monitor configuration document.
	cfgFile string

	// debug enables development logging for all commands.
	debug bool

	rootCmd = &cobra.Command{
		Use:   "masq-monitor",
		Short: "Monitor threat-intel platforms for brand masquerades",
		Long: `masq-monitor runs stored queries against urlscan.io and Silent Push,
tracks what each query has already seen, and renders the results into
self-contained, TLP-classified HTML reports.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so API keys are in the environment before any
	// client is constructed.
	_ = godotenv.Load()

	// Parse flags early so --config and --debug reach initConfig.
	_ = rootCmd.ParseFlags(os.Args[1:])

	if err := initConfig(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration document (default is ./config.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("masq-monitor version %s\n", Version)
		},
	})

	rootCmd.AddCommand(run.Command())
	rootCmd.AddCommand(queries.Command())
	rootCmd.AddCommand(render.Command())
	rootCmd.AddCommand(schedule.Command())
	rootCmd.AddCommand(gtm.Command())
}

// initConfig wires flags and environment variables into Viper.
func initConfig() error {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("config_path", "config.json")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "console")

	if err := viper.BindEnv("config_path", "MASQ_MONITOR_CONFIG"); err != nil {
		return fmt.Errorf("failed to bind MASQ_MONITOR_CONFIG: %w", err)
	}
	if err := viper.BindEnv("logger.level", "LOG_LEVEL"); err != nil {
		return fmt.Errorf("failed to bind LOG_LEVEL: %w", err)
	}
	if err := viper.BindEnv("logger.encoding", "LOG_FORMAT"); err != nil {
		return fmt.Errorf("failed to bind LOG_FORMAT: %w", err)
	}

	if err := viper.BindPFlag("app.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("failed to bind debug flag: %w", err)
	}
	if cfgFile != "" {
		viper.Set("config_path", cfgFile)
	}

	if viper.GetBool("app.debug") {
		viper.Set("logger.level", "debug")
	}

	return nil
}
