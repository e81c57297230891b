// Package reach walks the object graph reachable from a root value.
//
// Every pointer and map reached is an object; structs, slices, arrays and
// interfaces are looked through. The walk records how each object was
// first reached so a path from the root can be reported, which is how
// tests find references to nodes that should have been replaced.
package reach

import (
	"cmp"
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// Graph is the result of a walk.
type Graph struct {
	root    any
	order   []key
	objects map[key]any
	parents map[key]step
	stop    func(any) bool
}

// key identifies an object by address and type, so a struct and its
// first field are distinct objects.
type key struct {
	addr uintptr
	typ  reflect.Type
}

type step struct {
	parent key
	label  string
}

// Option configures a walk.
type Option func(*Graph)

// StopAt keeps the walk from looking inside objects for which stop returns
// true. Such objects are still reached and counted.
func StopAt(stop func(any) bool) Option {
	return func(g *Graph) { g.stop = stop }
}

// Walk returns the graph of objects reachable from root.
func Walk(root any, opts ...Option) *Graph {
	g := &Graph{
		root:    root,
		objects: make(map[key]any),
		parents: make(map[key]step),
	}
	for _, opt := range opts {
		opt(g)
	}
	rv := reflect.ValueOf(root)
	rootKey, ok := identity(rv)
	if !ok {
		return g
	}
	g.add(rootKey, rv)

	worklist := []reflect.Value{rv}
	for len(worklist) > 0 {
		v := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		from, _ := identity(v)
		if g.stop != nil && v.CanInterface() && from != rootKey && g.stop(v.Interface()) {
			continue
		}
		edges(v, "", func(label string, e reflect.Value) {
			k, ok := identity(e)
			if !ok {
				return
			}
			if _, seen := g.objects[k]; seen {
				return
			}
			g.add(k, e)
			g.parents[k] = step{parent: from, label: label}
			worklist = append(worklist, e)
		})
	}
	return g
}

func (g *Graph) add(k key, v reflect.Value) {
	var obj any
	if v.CanInterface() {
		obj = v.Interface()
	}
	g.objects[k] = obj
	g.order = append(g.order, k)
}

// identity returns the key of an object value. Only non-nil pointers and
// maps are objects.
func identity(v reflect.Value) (key, bool) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map:
		if v.IsNil() {
			return key{}, false
		}
		return key{addr: v.Pointer(), typ: v.Type()}, true
	}
	return key{}, false
}

// edges calls f for every object directly referenced by v. Values that
// are not objects are looked through, extending the label.
func edges(v reflect.Value, label string, f func(string, reflect.Value)) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		inline(v.Elem(), label, f)
	case reflect.Map:
		type entry struct {
			key   string
			value reflect.Value
		}
		var entries []entry
		iter := v.MapRange()
		for iter.Next() {
			entries = append(entries, entry{fmt.Sprint(iter.Key()), iter.Value()})
		}
		slices.SortFunc(entries, func(a, b entry) int { return cmp.Compare(a.key, b.key) })
		for _, e := range entries {
			inline(e.value, join(label, "["+e.key+"]"), f)
		}
	default:
		inline(v, label, f)
	}
}

// inline reports v if it is an object and otherwise looks into it.
func inline(v reflect.Value, label string, f func(string, reflect.Value)) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map:
		if !v.IsNil() {
			f(label, v)
		}
	case reflect.Interface:
		if !v.IsNil() {
			inline(v.Elem(), label, f)
		}
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			inline(v.Field(i), join(label, t.Field(i).Name), f)
		}
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			inline(v.Index(i), join(label, fmt.Sprintf("[%d]", i)), f)
		}
	}
}

func join(label, part string) string {
	if label == "" || part[0] == '[' {
		return label + part
	}
	return label + "." + part
}

// Reachable returns every object reached, root first, in discovery order.
// Objects reached only through unexported fields are omitted.
func (g *Graph) Reachable() []any {
	out := make([]any, 0, len(g.order))
	for _, k := range g.order {
		if obj := g.objects[k]; obj != nil {
			out = append(out, obj)
		}
	}
	return out
}

// Len returns the number of objects reached.
func (g *Graph) Len() int { return len(g.order) }

// Contains reports whether the pointer or map obj was reached.
func (g *Graph) Contains(obj any) bool {
	k, ok := identity(reflect.ValueOf(obj))
	if !ok {
		return false
	}
	_, seen := g.objects[k]
	return seen
}

// PathTo returns the field path from the root to obj, one label per
// object traversed, e.g. ["Defs[0]", "Info", "Names", "[f]"]. It returns false
// if obj was not reached.
func (g *Graph) PathTo(obj any) ([]string, bool) {
	k, ok := identity(reflect.ValueOf(obj))
	if !ok {
		return nil, false
	}
	if _, seen := g.objects[k]; !seen {
		return nil, false
	}
	var path []string
	for {
		s, ok := g.parents[k]
		if !ok {
			break
		}
		path = append(path, s.label)
		k = s.parent
	}
	slices.Reverse(path)
	return path, true
}

// CountByKind counts objects by dynamic type, e.g. "*nodes.FuncDef".
func CountByKind(objs []any) map[string]int {
	out := make(map[string]int)
	for _, obj := range objs {
		out[fmt.Sprintf("%T", obj)]++
	}
	return out
}

// Kinds returns the keys of a CountByKind result sorted by descending
// count, then by name.
func Kinds(counts map[string]int) []string {
	return slices.SortedFunc(maps.Keys(counts), func(a, b string) int {
		return cmp.Or(cmp.Compare(counts[b], counts[a]), cmp.Compare(a, b))
	})
}
