package semanal

import (
	"fmt"
	"slices"

	"github.com/jward/finegrain/internal/diag"
	"github.com/jward/finegrain/internal/nodes"
)

// Pass3 computes the MRO of every class defined outside functions in mods.
// Classes may inherit from each other across the given modules in any
// order. Inheritance cycles and inconsistent hierarchies are blocking.
func (a *Analyzer) Pass3(mods ...*nodes.Module) error {
	var classes []*nodes.TypeInfo
	for _, mod := range mods {
		classes = append(classes, topLevelClasses(mod)...)
	}
	return a.computeMROs(classes, "")
}

// RefreshPass3 recomputes the MROs of the classes owned by one target: the
// module-level classes for a module, local classes for a function.
func (a *Analyzer) RefreshPass3(mod *nodes.Module, node nodes.Node) error {
	switch n := node.(type) {
	case *nodes.Module:
		return a.computeMROs(topLevelClasses(n), "")
	case *nodes.FuncDef:
		var classes []*nodes.TypeInfo
		nodes.Inspect(n.Body, func(x nodes.Node) bool {
			if c, ok := x.(*nodes.ClassDef); ok && c.Info != nil {
				classes = append(classes, c.Info)
			}
			return true
		})
		return a.computeMROs(classes, n.FullName)
	}
	return nil
}

func topLevelClasses(mod *nodes.Module) []*nodes.TypeInfo {
	var out []*nodes.TypeInfo
	nodes.TopLevel(mod, func(n nodes.Node) bool {
		if c, ok := n.(*nodes.ClassDef); ok && c.Info != nil {
			out = append(out, c.Info)
		}
		return true
	})
	return out
}

type mroState int

const (
	mroPending mroState = iota + 1
	mroVisiting
)

func (a *Analyzer) computeMROs(classes []*nodes.TypeInfo, target string) error {
	state := make(map[*nodes.TypeInfo]mroState, len(classes))
	for _, info := range classes {
		state[info] = mroPending
	}
	for _, info := range classes {
		if err := a.calculateMRO(info, state, target); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) calculateMRO(info *nodes.TypeInfo, state map[*nodes.TypeInfo]mroState, target string) error {
	switch state[info] {
	case mroVisiting:
		return a.classError(info, target, "Cycle in inheritance hierarchy")
	case mroPending:
	default:
		return nil
	}
	state[info] = mroVisiting
	for _, base := range info.Bases {
		if err := a.calculateMRO(base.Info, state, target); err != nil {
			return err
		}
	}
	delete(state, info)

	// Compared by name: a base may still reference the replaced version of
	// this class until the new tree is merged.
	sameClass := func(t *nodes.TypeInfo) bool { return t.FullName == info.FullName }
	for _, base := range info.Bases {
		if sameClass(base.Info) || slices.ContainsFunc(base.Info.MRO, sameClass) {
			info.MRO = []*nodes.TypeInfo{info}
			return a.classError(info, target, "Cycle in inheritance hierarchy")
		}
	}
	mro, ok := linearize(info)
	if !ok {
		info.MRO = []*nodes.TypeInfo{info}
		return a.classError(info, target, fmt.Sprintf("Cannot determine consistent method resolution order (MRO) for \"%s\"", info.DefName))
	}
	info.MRO = mro
	return nil
}

func (a *Analyzer) classError(info *nodes.TypeInfo, target, msg string) *diag.CompileError {
	path := ""
	if mod, ok := a.modules[info.ModuleName]; ok {
		path = mod.Path
	}
	a.errs.SetFile(path, info.ModuleName)
	if target != "" {
		defer a.errs.EnterTarget(target)()
	}
	return a.errs.Blocker(info.Line(), msg)
}

// linearize computes the C3 linearization of info from the MROs of its
// bases.
func linearize(info *nodes.TypeInfo) ([]*nodes.TypeInfo, bool) {
	var seqs [][]*nodes.TypeInfo
	direct := make([]*nodes.TypeInfo, 0, len(info.Bases))
	for _, base := range info.Bases {
		mro := base.Info.MRO
		if len(mro) == 0 {
			mro = []*nodes.TypeInfo{base.Info}
		}
		seqs = append(seqs, slices.Clone(mro))
		direct = append(direct, base.Info)
	}
	seqs = append(seqs, direct)

	out := []*nodes.TypeInfo{info}
	for {
		seqs = slices.DeleteFunc(seqs, func(s []*nodes.TypeInfo) bool { return len(s) == 0 })
		if len(seqs) == 0 {
			return out, true
		}
		var head *nodes.TypeInfo
		for _, s := range seqs {
			if !inTail(s[0], seqs) {
				head = s[0]
				break
			}
		}
		if head == nil {
			return nil, false
		}
		out = append(out, head)
		for i, s := range seqs {
			if s[0] == head {
				seqs[i] = s[1:]
			}
		}
	}
}

func inTail(info *nodes.TypeInfo, seqs [][]*nodes.TypeInfo) bool {
	for _, s := range seqs {
		if slices.Contains(s[1:], info) {
			return true
		}
	}
	return false
}
