// Package deps computes fine-grained dependencies.
//
// A dependency is an edge from a trigger to a target. A trigger is a
// name in angle brackets, "<m.f>", that fires when the definition m.f
// changes. A target is a module id (its top level), a function or method
// full name, or another trigger, which is expanded transitively.
package deps

import (
	"maps"
	"slices"
	"strings"
)

// WildcardTag is appended to a module id to form the trigger fired when
// the names a wildcard import would bind change: <m[wildcard]>.
const WildcardTag = "[wildcard]"

// MakeTrigger wraps a full name into a trigger.
func MakeTrigger(name string) string {
	return "<" + name + ">"
}

// IsTrigger reports whether s is a trigger rather than a target.
func IsTrigger(s string) bool {
	return strings.HasPrefix(s, "<")
}

// Edges is a set of trigger to target edges.
type Edges map[string]map[string]struct{}

// Add records trigger -> target.
func (e Edges) Add(trigger, target string) {
	set, ok := e[trigger]
	if !ok {
		set = make(map[string]struct{})
		e[trigger] = set
	}
	set[target] = struct{}{}
}

// Map is the program-wide dependency map. Edges are only ever added:
// edges that became stale are harmless, since a stale target either no
// longer resolves or is reprocessed without effect.
type Map struct {
	edges Edges
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{edges: make(Edges)}
}

// Add records a single edge.
func (m *Map) Add(trigger, target string) {
	m.edges.Add(trigger, target)
}

// Merge adds every edge of e.
func (m *Map) Merge(e Edges) {
	for trigger, targets := range e {
		for target := range targets {
			m.edges.Add(trigger, target)
		}
	}
}

// Targets returns the sorted targets of trigger.
func (m *Map) Targets(trigger string) []string {
	return slices.Sorted(maps.Keys(m.edges[trigger]))
}

// Has reports whether the edge trigger -> target exists.
func (m *Map) Has(trigger, target string) bool {
	_, ok := m.edges[trigger][target]
	return ok
}

// Triggers returns every trigger with at least one edge, sorted.
func (m *Map) Triggers() []string {
	return slices.Sorted(maps.Keys(m.edges))
}

// Len returns the number of edges.
func (m *Map) Len() int {
	n := 0
	for _, targets := range m.edges {
		n += len(targets)
	}
	return n
}

// Each calls f for every edge in trigger, target order.
func (m *Map) Each(f func(trigger, target string)) {
	for _, trigger := range m.Triggers() {
		for _, target := range m.Targets(trigger) {
			f(trigger, target)
		}
	}
}

// Lines renders the map one trigger per line: "<trigger> -> a, b".
func (m *Map) Lines() []string {
	triggers := m.Triggers()
	out := make([]string, 0, len(triggers))
	for _, trigger := range triggers {
		out = append(out, trigger+" -> "+strings.Join(m.Targets(trigger), ", "))
	}
	return out
}

// Filter returns the lines whose trigger starts with one of prefixes.
func Filter(lines []string, prefixes ...string) []string {
	var out []string
	for _, line := range lines {
		for _, p := range prefixes {
			if strings.HasPrefix(line, "<"+p) {
				out = append(out, line)
				break
			}
		}
	}
	return out
}
