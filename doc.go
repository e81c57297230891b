// Package finegrain keeps a type-checked Python program in memory and
// updates it after edits by reprocessing only what an edit can affect.
//
// # Model
//
// A target is a function, a method or the top level of a module. It is
// the unit of reprocessing. A trigger, written "<m.f>", names a
// definition and fires when the externally visible shape of that
// definition changes: its kind, its signature, its bases. The wildcard
// trigger "<m[wildcard]>" fires when any global of module m changes. The
// dependency map records which targets (and further triggers) must be
// reprocessed when a trigger fires. It only ever grows.
//
// # Update
//
// Update processes the changed modules one at a time:
//
//  1. The module is reparsed and analyzed in isolation. Modules it newly
//     imports are loaded too, one per step.
//  2. The new tree is merged into the old one so that definitions other
//     modules reference keep their identity.
//  3. The module is type checked and snapshots of its symbol table taken
//     before and after are compared. Every changed name fires a trigger.
//  4. The triggers are expanded through the dependency map into targets,
//     which are stripped, analyzed and checked again in place. Their
//     changes fire more triggers, until a fixed point is reached.
//
// Targets that held errors before an update are always reprocessed, so
// no diagnostic goes stale. A blocking error (a syntax error or a broken
// class hierarchy) stops the update and leaves the program as it was; the
// blocked module is retried first by the next update.
//
// # Usage
//
//	e := finegrain.New(os.DirFS(root), finegrain.WithSearchPaths("src"))
//	msgs, err := e.Build(ctx, sources)
//	...
//	msgs, err = e.Update(ctx, []finegrain.Source{{ID: "pkg.mod", Path: "src/pkg/mod.py"}}, nil)
package finegrain
