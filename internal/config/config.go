// Package config loads, validates, and writes back the monitor
// configuration document holding run defaults and the query store.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/MalasadaTech/masq-monitor/internal/query"
	"github.com/MalasadaTech/masq-monitor/internal/tlp"
)

// Default values applied when the document omits a setting.
const (
	// DefaultOutputDirectory is where run artifacts land.
	DefaultOutputDirectory = "output"
	// DefaultDays is the lookback window when neither the query nor the
	// document sets one.
	DefaultDays = 7
)

// Error wraps a configuration failure. Configuration errors are fatal:
// the process aborts before any query runs.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// settings mirrors the document's top-level scalar keys.
type settings struct {
	OutputDirectory     string `mapstructure:"output_directory"`
	DefaultDays         int    `mapstructure:"default_days"`
	ReportUsername      string `mapstructure:"report_username"`
	DefaultTLPLevel     string `mapstructure:"default_tlp_level"`
	DefaultTemplatePath string `mapstructure:"default_template_path"`
}

// Config is one loaded configuration document. The raw document is
// retained so write-back preserves keys this version does not model.
type Config struct {
	Path string

	OutputDirectory     string
	DefaultDays         int
	ReportUsername      string
	DefaultTLP          tlp.Level
	DefaultTemplatePath string

	Store *query.Store

	raw    map[string]any
	asJSON bool
}

// Load reads and validates a configuration document. The format follows
// the file extension: .json parses as JSON, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	asJSON := strings.EqualFold(filepath.Ext(path), ".json")
	raw := make(map[string]any)
	if asJSON {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("parsing document: %w", err)}
	}

	cfg, err := fromRaw(raw)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	cfg.Path = path
	cfg.asJSON = asJSON
	return cfg, nil
}

func fromRaw(raw map[string]any) (*Config, error) {
	var top settings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &top,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	if decodeErr := decoder.Decode(raw); decodeErr != nil {
		return nil, fmt.Errorf("decoding settings: %w", decodeErr)
	}

	cfg := &Config{
		OutputDirectory:     top.OutputDirectory,
		DefaultDays:         top.DefaultDays,
		ReportUsername:      top.ReportUsername,
		DefaultTemplatePath: top.DefaultTemplatePath,
		raw:                 raw,
	}
	if cfg.OutputDirectory == "" {
		cfg.OutputDirectory = DefaultOutputDirectory
	}
	if cfg.DefaultDays <= 0 {
		cfg.DefaultDays = DefaultDays
	}
	if top.DefaultTLPLevel != "" {
		level, parseErr := tlp.Parse(top.DefaultTLPLevel)
		if parseErr != nil {
			return nil, fmt.Errorf("default_tlp_level: %w", parseErr)
		}
		cfg.DefaultTLP = level
	}

	entries, err := queriesSection(raw)
	if err != nil {
		return nil, err
	}
	store, err := query.DecodeEntries(entries)
	if err != nil {
		return nil, err
	}
	cfg.Store = store

	return cfg, nil
}

// queriesSection extracts the queries mapping, normalizing the
// map[any]any keys older YAML decoders produce.
func queriesSection(raw map[string]any) (map[string]any, error) {
	section, ok := raw["queries"]
	if !ok || section == nil {
		return map[string]any{}, nil
	}

	switch entries := section.(type) {
	case map[string]any:
		return entries, nil
	case map[any]any:
		out := make(map[string]any, len(entries))
		for k, v := range entries {
			out[fmt.Sprint(k)] = normalizeValue(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("queries: expected a mapping, got %T", section)
	}
}

// normalizeValue rewrites nested map[any]any values as map[string]any so
// downstream decoding sees one shape regardless of parser.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
