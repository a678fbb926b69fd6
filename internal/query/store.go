package query

import (
	"fmt"
	"sort"
)

// Store holds the decoded queries and groups of one configuration
// document. Queries and groups share a single namespace.
type Store struct {
	queries map[string]*Query
	groups  map[string]*Group

	// Document mappings carry no reliable order, so listings and
	// batch runs iterate names sorted for determinism.
	queryNames []string
	groupNames []string
}

// NewStore builds a Store, rejecting name collisions.
func NewStore(queries []*Query, groups []*Group) (*Store, error) {
	s := &Store{
		queries: make(map[string]*Query, len(queries)),
		groups:  make(map[string]*Group, len(groups)),
	}

	for _, q := range queries {
		if s.has(q.Name) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, q.Name)
		}
		s.queries[q.Name] = q
		s.queryNames = append(s.queryNames, q.Name)
	}
	for _, g := range groups {
		if s.has(g.Name) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, g.Name)
		}
		s.groups[g.Name] = g
		s.groupNames = append(s.groupNames, g.Name)
	}

	sort.Strings(s.queryNames)
	sort.Strings(s.groupNames)
	return s, nil
}

func (s *Store) has(name string) bool {
	if _, ok := s.queries[name]; ok {
		return true
	}
	_, ok := s.groups[name]
	return ok
}

// GetQuery returns the named leaf query.
func (s *Store) GetQuery(name string) (*Query, bool) {
	q, ok := s.queries[name]
	return q, ok
}

// GetGroup returns the named group.
func (s *Store) GetGroup(name string) (*Group, bool) {
	g, ok := s.groups[name]
	return g, ok
}

// QueryNames returns all leaf query names, sorted.
func (s *Store) QueryNames() []string {
	return append([]string(nil), s.queryNames...)
}

// GroupNames returns all group names, sorted.
func (s *Store) GroupNames() []string {
	return append([]string(nil), s.groupNames...)
}

// Len reports the total number of entries.
func (s *Store) Len() int {
	return len(s.queries) + len(s.groups)
}
