package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownQuery indicates a name that is neither a query nor a group.
var ErrUnknownQuery = errors.New("unknown query or group")

// CircularReferenceError reports a group that reappears on its own
// expansion path. It names the cycle so the offending document entry can
// be found without tracing by hand.
type CircularReferenceError struct {
	Cycle []string
}

func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("circular group reference: %s", strings.Join(e.Cycle, " -> "))
}

// Resolved pairs a runnable leaf query with the chain of groups that
// referenced it. GroupPath is nil when the query was named directly.
type Resolved struct {
	Query     *Query
	GroupPath []string
}

// resolveFrame is one pending step of an expansion. Exit frames pop a
// group off the active path once its members are done.
type resolveFrame struct {
	name string
	path []string
	exit bool
}

// Resolve expands a name into its ordered leaf queries. A query name
// yields a single-element list. Group members expand in declared order;
// a leaf reachable through multiple paths appears once per path.
// Expansion fails with ErrUnknownQuery for a name missing from the
// store, and with *CircularReferenceError when a group reappears on its
// own active path.
func (s *Store) Resolve(name string) ([]Resolved, error) {
	resolved := make([]Resolved, 0, 1)
	expanding := make(map[string]bool)
	stack := []resolveFrame{{name: name}}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if frame.exit {
			delete(expanding, frame.name)
			continue
		}

		if q, ok := s.queries[frame.name]; ok {
			resolved = append(resolved, Resolved{Query: q, GroupPath: frame.path})
			continue
		}

		g, ok := s.groups[frame.name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownQuery, frame.name)
		}
		if expanding[frame.name] {
			cycle := append(append([]string(nil), frame.path...), frame.name)
			return nil, &CircularReferenceError{Cycle: cycle}
		}
		expanding[frame.name] = true

		memberPath := make([]string, 0, len(frame.path)+1)
		memberPath = append(memberPath, frame.path...)
		memberPath = append(memberPath, frame.name)

		// The exit frame sits under the members so the group leaves the
		// active path only after its whole subtree is expanded.
		stack = append(stack, resolveFrame{name: frame.name, exit: true})
		for i := len(g.Queries) - 1; i >= 0; i-- {
			stack = append(stack, resolveFrame{name: g.Queries[i], path: memberPath})
		}
	}

	return resolved, nil
}
