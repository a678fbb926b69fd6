package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/MalasadaTech/masq-monitor/internal/config"
	"github.com/MalasadaTech/masq-monitor/internal/logger"
	"github.com/MalasadaTech/masq-monitor/internal/platform"
	"github.com/MalasadaTech/masq-monitor/internal/platform/silentpush"
	"github.com/MalasadaTech/masq-monitor/internal/platform/urlscan"
	"github.com/MalasadaTech/masq-monitor/internal/report"
	"github.com/MalasadaTech/masq-monitor/internal/runner"
)

// NewCommandDeps creates CommandDeps by loading the configuration
// document and constructing the logger from Viper settings. This
// consolidates the initialization every command shares.
func NewCommandDeps() (CommandDeps, error) {
	logLevel := strings.ToLower(viper.GetString("logger.level"))
	if logLevel == "" {
		logLevel = string(logger.DefaultLevel)
	}

	log, err := logger.New(&logger.Config{
		Level:       logger.Level(logLevel),
		Development: viper.GetBool("app.debug"),
		Encoding:    viper.GetString("logger.encoding"),
	})
	if err != nil {
		return CommandDeps{}, fmt.Errorf("create logger: %w", err)
	}

	cfg, err := config.Load(viper.GetString("config_path"))
	if err != nil {
		return CommandDeps{}, fmt.Errorf("load config: %w", err)
	}

	deps := CommandDeps{
		Logger: log,
		Config: cfg,
	}
	if validateErr := deps.Validate(); validateErr != nil {
		return CommandDeps{}, fmt.Errorf("validate deps: %w", validateErr)
	}

	return deps, nil
}

// NewClients constructs the platform clients, pulling API credentials
// from the environment. Both clients share one tuned HTTP client.
func NewClients(log logger.Interface) map[platform.Name]platform.Client {
	httpClient := platform.NewHTTPClient(0)

	return map[platform.Name]platform.Client{
		platform.URLScan: urlscan.New(urlscan.Config{
			APIKey:     os.Getenv(urlscan.EnvAPIKey),
			HTTPClient: httpClient,
			Logger:     log,
		}),
		platform.SilentPush: silentpush.New(silentpush.Config{
			APIKey:     os.Getenv(silentpush.EnvAPIKey),
			HTTPClient: httpClient,
			Logger:     log,
		}),
	}
}

// NewRunner wires the full pipeline for one invocation.
func NewRunner(deps CommandDeps) (*runner.Runner, error) {
	renderer, err := report.New(report.Config{
		DefaultTemplatePath: deps.Config.DefaultTemplatePath,
		Logger:              deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	clients := NewClients(deps.Logger)
	return runner.New(deps.Config, clients, renderer, deps.Logger), nil
}
