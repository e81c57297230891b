package semanal

import (
	"github.com/jward/finegrain/internal/nodes"
)

type frameKind int

const (
	classFrame frameKind = iota
	funcFrame
)

// frame is one level of the lexical scope stack.
type frame struct {
	kind   frameKind
	info   *nodes.TypeInfo // class frames, and the enclosing class of a method
	fn     *nodes.FuncDef
	locals nodes.SymbolTable
	self   *nodes.Var
}

// scope is the lexical state of a single traversal: the module being
// analyzed and a stack of class and function frames. Frames are entered
// with push and left by calling the returned function, so every enter has
// exactly one matching leave.
type scope struct {
	mod    *nodes.Module
	frames []*frame
}

func newScope(mod *nodes.Module) *scope {
	return &scope{mod: mod}
}

func (s *scope) push(f *frame) func() {
	s.frames = append(s.frames, f)
	n := len(s.frames)
	return func() {
		if len(s.frames) != n {
			panic("semanal: unbalanced scope")
		}
		s.frames = s.frames[:n-1]
	}
}

func (s *scope) top() *frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// classScope reports whether statements are directly inside a class body.
func (s *scope) classScope() bool {
	f := s.top()
	return f != nil && f.kind == classFrame
}

// function returns the innermost function frame, or nil at module or
// class level outside any function.
func (s *scope) function() *frame {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].kind == funcFrame {
			return s.frames[i]
		}
	}
	return nil
}

// inFunction reports whether the innermost non-class frame is a function.
func (s *scope) inFunction() bool {
	return !s.classScope() && s.function() != nil
}

// table returns the symbol table new definitions go into and the kind of
// entry they get.
func (s *scope) table() (nodes.SymbolTable, nodes.Kind) {
	f := s.top()
	switch {
	case f == nil:
		return s.mod.Names, nodes.GDEF
	case f.kind == classFrame:
		return f.info.Names, nodes.MDEF
	default:
		return f.locals, nodes.LDEF
	}
}

// qualify returns the full name of a definition made in the current scope.
func (s *scope) qualify(name string) string {
	f := s.top()
	switch {
	case f == nil:
		return s.mod.ID + "." + name
	case f.kind == classFrame:
		return f.info.FullName + "." + name
	default:
		return name
	}
}

// lookup resolves a bare name: the class body when directly inside one,
// then enclosing function locals, then module globals, then builtins.
func (s *scope) lookup(name string, builtins *nodes.Module) *nodes.SymbolTableNode {
	if f := s.top(); f != nil && f.kind == classFrame {
		if sym, ok := f.info.Names[name]; ok {
			return sym
		}
	}
	for i := len(s.frames) - 1; i >= 0; i-- {
		f := s.frames[i]
		if f.kind != funcFrame {
			continue
		}
		if sym, ok := f.locals[name]; ok {
			return sym
		}
	}
	if sym, ok := s.mod.Names[name]; ok {
		return sym
	}
	if builtins != nil {
		if sym, ok := builtins.Names[name]; ok && !nodes.IsImplicitModuleAttr(name) {
			return sym
		}
	}
	return nil
}
