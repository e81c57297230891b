package checker

import (
	"context"
	"log/slog"
	"slices"

	"github.com/jward/finegrain/internal/nodes"
)

// Plugin inspects every type checked function. Reports are recorded as
// errors of the function's target, so they follow the function through
// fine-grained updates like any other diagnostic.
type Plugin interface {
	Name() string
	CheckFunction(ctx context.Context, fn Function) ([]Report, error)
}

// Function is the plugin view of a checked function.
type Function struct {
	Module    string   `json:"module"`
	Name      string   `json:"name"`
	Fullname  string   `json:"fullname"`
	Class     string   `json:"class,omitempty"`
	Line      int      `json:"line"`
	EndLine   int      `json:"end_line"`
	Signature string   `json:"signature"`
	Args      []string `json:"args"`
	Calls     []string `json:"calls"`
	Decorated bool     `json:"decorated"`
}

// Report is a diagnostic produced by a plugin.
type Report struct {
	Line    int
	Message string
}

func (c *Checker) runPlugins(ctx context.Context, mod *nodes.Module, fn *nodes.FuncDef, types TypeMap) {
	if len(c.plugins) == 0 {
		return
	}
	info := describe(mod, fn, types)
	for _, p := range c.plugins {
		reports, err := p.CheckFunction(ctx, info)
		if err != nil {
			c.logger.Warn("plugin failed",
				slog.String("plugin", p.Name()),
				slog.String("function", fn.FullName),
				slog.Any("error", err))
			continue
		}
		for _, r := range reports {
			c.errs.Report(r.Line, r.Message)
		}
	}
}

func describe(mod *nodes.Module, fn *nodes.FuncDef, types TypeMap) Function {
	f := Function{
		Module:    mod.ID,
		Name:      fn.DefName,
		Fullname:  fn.FullName,
		Line:      fn.Line(),
		EndLine:   fn.EndLine,
		Decorated: fn.IsDecorated,
	}
	if fn.Info != nil {
		f.Class = fn.Info.FullName
	}
	if fn.Type != nil {
		f.Signature = fn.Type.String()
	}
	for _, a := range fn.Args {
		f.Args = append(f.Args, a.Name)
	}
	nodes.Inspect(fn.Body, func(n nodes.Node) bool {
		call, ok := n.(*nodes.CallExpr)
		if !ok {
			return true
		}
		if name := calledName(call.Callee, types); name != "" && !slices.Contains(f.Calls, name) {
			f.Calls = append(f.Calls, name)
		}
		return true
	})
	return f
}

// calledName is the full name of the definition a call expression invokes.
func calledName(callee nodes.Expression, types TypeMap) string {
	if n := boundNode(callee); n != nil {
		return n.Fullname()
	}
	m, ok := callee.(*nodes.MemberExpr)
	if !ok {
		return ""
	}
	if inst, ok := types[m.Expr].(*nodes.Instance); ok {
		return inst.Info.FullName + "." + m.Name
	}
	return ""
}
