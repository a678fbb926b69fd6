// Package tlp implements Traffic Light Protocol classification and
// visibility rules for report redaction.
package tlp

import (
	"errors"
	"fmt"
	"strings"
)

// Level represents a TLP classification level.
type Level string

const (
	// Clear marks information with no disclosure restriction.
	Clear Level = "clear"
	// White is the pre-2.0 name for Clear and ranks identically.
	White Level = "white"
	// Green marks information for community-wide sharing.
	Green Level = "green"
	// Amber marks information for limited, need-to-know sharing.
	Amber Level = "amber"
	// Red marks information restricted to named recipients.
	Red Level = "red"
)

// ErrInvalidLevel is returned when a string is not a recognized TLP level.
var ErrInvalidLevel = errors.New("invalid TLP level")

// levelRanks orders levels from least to most restrictive. Clear and
// White share a rank.
var levelRanks = map[Level]int{
	Clear: 1,
	White: 1,
	Green: 2,
	Amber: 3,
	Red:   4,
}

const (
	// Unclassified items rank as Clear so they are never hidden.
	defaultItemRank = 1
	// An unrecognized ceiling ranks as Red so nothing is over-redacted
	// by a typo in a report-level setting.
	defaultCeilingRank = 4
)

// Parse validates a string as a TLP level. It is case-insensitive and
// returns ErrInvalidLevel for unrecognized names.
func Parse(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelRanks[l]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
	return l, nil
}

// Rank returns the restrictiveness rank of an item-level classification.
// Empty or unrecognized levels rank as Clear.
func Rank(l Level) int {
	if r, ok := levelRanks[normalize(l)]; ok {
		return r
	}
	return defaultItemRank
}

// Visible reports whether an item classified at the given level may
// appear in a report generated at the given ceiling.
func Visible(item, ceiling Level) bool {
	itemRank := defaultItemRank
	if r, ok := levelRanks[normalize(item)]; ok {
		itemRank = r
	}
	ceilingRank := defaultCeilingRank
	if r, ok := levelRanks[normalize(ceiling)]; ok {
		ceilingRank = r
	}
	return itemRank <= ceilingRank
}

// Ceiling resolves the classification ceiling for a report: an explicit
// request wins over the query default, which wins over the global
// default. With nothing set the ceiling is Clear, the most redacted
// rendering.
func Ceiling(requested, queryDefault, globalDefault Level) Level {
	for _, l := range []Level{requested, queryDefault, globalDefault} {
		if normalize(l) != "" {
			return normalize(l)
		}
	}
	return Clear
}

// Label returns the uppercase form used in report filenames and banners.
func (l Level) Label() string {
	return "TLP-" + strings.ToUpper(string(normalize(l)))
}

func normalize(l Level) Level {
	return Level(strings.ToLower(strings.TrimSpace(string(l))))
}

// Tagged pairs a metadata value with its classification. A zero Level
// means unclassified, which ranks as Clear.
type Tagged struct {
	Value string `json:"value"`
	Level Level  `json:"tlp_level,omitempty"`
}

// Visible reports whether the tagged value may appear under the ceiling.
func (t Tagged) Visible(ceiling Level) bool {
	return Visible(t.Level, ceiling)
}

// FilterVisible returns the tagged values whose classification permits
// disclosure under the ceiling, preserving input order.
func FilterVisible(items []Tagged, ceiling Level) []Tagged {
	out := make([]Tagged, 0, len(items))
	for _, it := range items {
		if it.Visible(ceiling) {
			out = append(out, it)
		}
	}
	return out
}
