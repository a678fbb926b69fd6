package query

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mitchellh/mapstructure"

	"github.com/MalasadaTech/masq-monitor/internal/platform"
	"github.com/MalasadaTech/masq-monitor/internal/tlp"
)

// rawEntry is the duck-typed intermediate for one document entry. The
// document format predates uniform {value, tlp_level} pairs: scalar
// fields carry sibling <field>_tlp_level keys, list fields mix bare
// strings with tagged objects. Decoding normalizes all of them into
// tlp.Tagged.
type rawEntry struct {
	Type string `mapstructure:"type"`

	Query         string `mapstructure:"query"`
	QueryTLPLevel string `mapstructure:"query_tlp_level"`
	Platform      string `mapstructure:"platform"`
	Endpoint      string `mapstructure:"endpoint"`
	Days          int    `mapstructure:"days"`
	LastRun       string `mapstructure:"last_run"`

	Description         any      `mapstructure:"description"`
	DescriptionTLPLevel string   `mapstructure:"description_tlp_level"`
	Notes               []any    `mapstructure:"notes"`
	References          []any    `mapstructure:"references"`
	Frequency           string   `mapstructure:"frequency"`
	FrequencyTLPLevel   string   `mapstructure:"frequency_tlp_level"`
	Priority            string   `mapstructure:"priority"`
	PriorityTLPLevel    string   `mapstructure:"priority_tlp_level"`
	Tags                []string `mapstructure:"tags"`
	TagsTLPLevel        string   `mapstructure:"tags_tlp_level"`
	DefaultTLPLevel     string   `mapstructure:"default_tlp_level"`
	TemplatePath        string   `mapstructure:"template_path"`

	Titles  []any    `mapstructure:"titles"`
	Queries []string `mapstructure:"queries"`
}

// DecodeEntries converts the document's queries mapping into a Store.
func DecodeEntries(entries map[string]any) (*Store, error) {
	var queries []*Query
	var groups []*Group

	for name, value := range entries {
		entryMap, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("entry %q: expected a mapping, got %T", name, value)
		}

		q, g, err := decodeEntry(name, entryMap)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", name, err)
		}
		if q != nil {
			queries = append(queries, q)
		}
		if g != nil {
			groups = append(groups, g)
		}
	}

	return NewStore(queries, groups)
}

func decodeEntry(name string, entryMap map[string]any) (*Query, *Group, error) {
	var raw rawEntry
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating decoder: %w", err)
	}
	if decodeErr := decoder.Decode(entryMap); decodeErr != nil {
		return nil, nil, fmt.Errorf("decoding entry: %w", decodeErr)
	}

	meta, err := decodeMetadata(&raw)
	if err != nil {
		return nil, nil, err
	}

	if raw.Type == TypeGroup {
		titles, titleErr := taggedList(raw.Titles, "title")
		if titleErr != nil {
			return nil, nil, fmt.Errorf("titles: %w", titleErr)
		}
		g := &Group{
			Name:     name,
			Titles:   titles,
			Queries:  raw.Queries,
			LastRun:  parseLastRun(raw.LastRun),
			Metadata: meta,
		}
		if err := g.Validate(); err != nil {
			return nil, nil, err
		}
		return nil, g, nil
	}

	platformName, err := platform.ParseName(raw.Platform)
	if err != nil {
		return nil, nil, err
	}
	queryLevel, err := optionalLevel(raw.QueryTLPLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("query_tlp_level: %w", err)
	}

	q := &Query{
		Name:       name,
		Query:      raw.Query,
		QueryLevel: queryLevel,
		Platform:   platformName,
		Endpoint:   raw.Endpoint,
		Days:       raw.Days,
		LastRun:    parseLastRun(raw.LastRun),
		Metadata:   meta,
	}
	if err := q.Validate(); err != nil {
		return nil, nil, err
	}
	return q, nil, nil
}

func decodeMetadata(raw *rawEntry) (Metadata, error) {
	var meta Metadata
	var err error

	meta.Description, err = taggedValue(raw.Description, raw.DescriptionTLPLevel, "text")
	if err != nil {
		return meta, fmt.Errorf("description: %w", err)
	}
	meta.Notes, err = taggedList(raw.Notes, "text")
	if err != nil {
		return meta, fmt.Errorf("notes: %w", err)
	}
	meta.References, err = taggedList(raw.References, "url")
	if err != nil {
		return meta, fmt.Errorf("references: %w", err)
	}
	meta.Frequency, err = taggedValue(raw.Frequency, raw.FrequencyTLPLevel, "")
	if err != nil {
		return meta, fmt.Errorf("frequency: %w", err)
	}
	meta.Priority, err = taggedValue(raw.Priority, raw.PriorityTLPLevel, "")
	if err != nil {
		return meta, fmt.Errorf("priority: %w", err)
	}
	meta.Tags = raw.Tags
	meta.TagsLevel, err = optionalLevel(raw.TagsTLPLevel)
	if err != nil {
		return meta, fmt.Errorf("tags_tlp_level: %w", err)
	}
	meta.DefaultTLP, err = optionalLevel(raw.DefaultTLPLevel)
	if err != nil {
		return meta, fmt.Errorf("default_tlp_level: %w", err)
	}
	meta.TemplatePath = raw.TemplatePath

	return meta, nil
}

// taggedValue normalizes a scalar-or-object field plus its optional
// sibling <field>_tlp_level into one tagged pair.
func taggedValue(v any, siblingLevel, objectKey string) (tlp.Tagged, error) {
	tagged, err := taggedItem(v, objectKey)
	if err != nil {
		return tlp.Tagged{}, err
	}
	if tagged.Level == "" && siblingLevel != "" {
		level, parseErr := tlp.Parse(siblingLevel)
		if parseErr != nil {
			return tlp.Tagged{}, parseErr
		}
		tagged.Level = level
	}
	return tagged, nil
}

// taggedList normalizes a list whose items are bare strings or
// {<objectKey>, tlp_level} objects.
func taggedList(items []any, objectKey string) ([]tlp.Tagged, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]tlp.Tagged, 0, len(items))
	for i, item := range items {
		tagged, err := taggedItem(item, objectKey)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, tagged)
	}
	return out, nil
}

func taggedItem(v any, objectKey string) (tlp.Tagged, error) {
	switch item := v.(type) {
	case nil:
		return tlp.Tagged{}, nil
	case string:
		return tlp.Tagged{Value: item}, nil
	case map[string]any:
		var tagged tlp.Tagged
		if objectKey != "" {
			if s, ok := item[objectKey].(string); ok {
				tagged.Value = s
			}
		}
		if tagged.Value == "" {
			// Fall back to the common value keys so mixed documents decode.
			for _, key := range []string{"text", "url", "title", "value"} {
				if s, ok := item[key].(string); ok && s != "" {
					tagged.Value = s
					break
				}
			}
		}
		if levelStr, ok := item["tlp_level"].(string); ok && levelStr != "" {
			level, err := tlp.Parse(levelStr)
			if err != nil {
				return tlp.Tagged{}, err
			}
			tagged.Level = level
		}
		return tagged, nil
	default:
		return tlp.Tagged{}, fmt.Errorf("expected string or mapping, got %T", v)
	}
}

func optionalLevel(s string) (tlp.Level, error) {
	if s == "" {
		return "", nil
	}
	return tlp.Parse(s)
}

// parseLastRun reads a persisted timestamp. Malformed values are treated
// as absent so one bad write never wedges a query; the lookback
// calculator then falls back to the configured day window.
func parseLastRun(s string) *time.Time {
	if s == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return &ts
	}
	if ts, err := dateparse.ParseAny(s); err == nil {
		return &ts
	}
	return nil
}
