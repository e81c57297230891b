package astdiff

import (
	"maps"
	"slices"
	"strings"

	"github.com/jward/finegrain/internal/deps"
	"github.com/jward/finegrain/internal/nodes"
)

// Compare returns the full names, under prefix, of every entry that was
// added, removed or changed between old and new. Class bodies are compared
// member by member, so a changed method m.C.f is reported without m.C
// unless the class itself (its bases or MRO) changed too.
func Compare(prefix string, old, new Snapshot) map[string]struct{} {
	changed := make(map[string]struct{})
	compareInto(changed, prefix, old, new)
	return changed
}

func compareInto(changed map[string]struct{}, prefix string, old, new Snapshot) {
	for name, o := range old {
		full := prefix + "." + name
		n, ok := new[name]
		switch {
		case !ok:
			changed[full] = struct{}{}
			allMembers(changed, full, o.Members)
		case o.Kind != n.Kind:
			changed[full] = struct{}{}
			allMembers(changed, full, o.Members)
			allMembers(changed, full, n.Members)
		case o.Kind == "TypeInfo":
			if o.Fingerprint != n.Fingerprint {
				changed[full] = struct{}{}
			}
			compareInto(changed, full, o.Members, n.Members)
		case !o.Equal(n):
			changed[full] = struct{}{}
		}
	}
	for name, n := range new {
		if _, ok := old[name]; !ok {
			full := prefix + "." + name
			changed[full] = struct{}{}
			allMembers(changed, full, n.Members)
		}
	}
}

func allMembers(changed map[string]struct{}, prefix string, members Snapshot) {
	for name, m := range members {
		full := prefix + "." + name
		changed[full] = struct{}{}
		allMembers(changed, full, m.Members)
	}
}

// ActiveTriggers returns the sorted triggers fired by an update of module
// id. A nil old snapshot means the module did not exist before; a nil
// table means it was deleted. In both cases the module trigger itself
// fires too.
//
// A change to any global of the module, other than the implicit module
// attributes, also fires the wildcard trigger of the module.
func ActiveTriggers(id string, old Snapshot, table nodes.SymbolTable) []string {
	names := make(map[string]struct{})
	if old == nil {
		names[id] = struct{}{}
	}
	if table == nil {
		names[id] = struct{}{}
	}
	changed := Compare(id, old, Of(id, table))
	nesting := strings.Count(id, ".")
	for name := range changed {
		names[name] = struct{}{}
		short := name[strings.LastIndexByte(name, '.')+1:]
		if strings.Count(name, ".") <= nesting+1 && !nodes.IsImplicitModuleAttr(short) {
			names[id+deps.WildcardTag] = struct{}{}
		}
	}
	triggers := make([]string, 0, len(names))
	for _, name := range slices.Sorted(maps.Keys(names)) {
		triggers = append(triggers, deps.MakeTrigger(name))
	}
	return triggers
}
