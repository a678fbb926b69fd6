// Package query defines the monitor's stored queries and query groups
// and resolves group references into runnable leaf queries.
package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/MalasadaTech/masq-monitor/internal/platform"
	"github.com/MalasadaTech/masq-monitor/internal/tlp"
)

// TypeGroup is the document discriminator marking an entry as a group.
const TypeGroup = "query_group"

// Common errors returned when validating document entries.
var (
	// ErrMissingField indicates a required entry field is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrDuplicateName indicates a name is defined more than once.
	// Queries and groups share one namespace.
	ErrDuplicateName = errors.New("duplicate query name")
)

// Metadata carries the descriptive, classification-tagged fields shared
// by queries and groups. Every field is optional.
type Metadata struct {
	Description tlp.Tagged
	Notes       []tlp.Tagged
	References  []tlp.Tagged
	Frequency   tlp.Tagged
	Priority    tlp.Tagged
	Tags        []string
	// TagsLevel classifies the tag list as a whole.
	TagsLevel tlp.Level
	// DefaultTLP is this entry's report ceiling when no explicit ceiling
	// is requested at run time.
	DefaultTLP tlp.Level
	// TemplatePath overrides the report template for this entry.
	TemplatePath string
}

// Query is a stored leaf search, directly executable against a platform.
type Query struct {
	Name string
	// Query is the platform-specific search expression.
	Query string
	// QueryLevel classifies the search expression itself; queries often
	// reveal detection logic worth protecting.
	QueryLevel tlp.Level
	Platform   platform.Name
	// Endpoint selects a platform sub-resource; empty uses the
	// platform's default.
	Endpoint string
	// Days is this query's lookback override in days.
	Days int
	// LastRun is set after every successful execution.
	LastRun *time.Time
	Metadata
}

// Validate checks the fields required to execute the query.
func (q *Query) Validate() error {
	if q.Name == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}
	if q.Query == "" {
		return fmt.Errorf("query %q: %w: query", q.Name, ErrMissingField)
	}
	if q.Days < 0 {
		return fmt.Errorf("query %q: days must not be negative", q.Name)
	}
	return nil
}

// Group is a named, ordered collection of queries and other groups,
// rendered as one multi-section report.
type Group struct {
	Name string
	// Titles are alternate report titles; rendering picks the
	// highest-classified title visible under the ceiling.
	Titles []tlp.Tagged
	// Queries names the members in declared order. Members may be
	// queries or other groups; the reference graph must stay acyclic.
	Queries []string
	// LastRun is set after every successful group execution.
	LastRun *time.Time
	Metadata
}

// Validate checks the group's member references are well formed.
// Membership existence and cycles are checked at resolution time.
func (g *Group) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("%w: name", ErrMissingField)
	}
	for i, member := range g.Queries {
		if member == "" {
			return fmt.Errorf("group %q: member %d: %w: name", g.Name, i, ErrMissingField)
		}
	}
	return nil
}
