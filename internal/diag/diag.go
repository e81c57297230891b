// Package diag collects diagnostics attributed to files and targets.
package diag

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityNote  Severity = "note"
)

// Info is one recorded diagnostic.
type Info struct {
	Path     string
	Module   string
	Target   string
	Line     int
	Severity Severity
	Message  string
	Blocker  bool
}

// String formats the diagnostic as path:line: severity: message.
func (i Info) String() string {
	return fmt.Sprintf("%s:%d: %s: %s", i.Path, i.Line, i.Severity, i.Message)
}

// CompileError is a blocking error. Processing of the module stops and the
// messages are the only result of the current update.
type CompileError struct {
	Messages []string
	Module   string
}

func (e *CompileError) Error() string {
	return strings.Join(e.Messages, "\n")
}

// Errors records diagnostics for the whole program. Every diagnostic is
// attributed to the file set by SetFile and the innermost target entered.
type Errors struct {
	path    string
	module  string
	targets []string
	infos   map[string][]Info
}

// NewErrors returns an empty collector.
func NewErrors() *Errors {
	return &Errors{infos: make(map[string][]Info)}
}

// SetFile sets the file subsequent diagnostics belong to. The target scope
// is reset to the module top level.
func (e *Errors) SetFile(path, module string) {
	e.path = path
	e.module = module
	e.targets = e.targets[:0]
}

// File returns the current file path.
func (e *Errors) File() string { return e.path }

// EnterTarget makes target the current target until the returned function
// is called.
//
//	defer errs.EnterTarget("m.f")()
func (e *Errors) EnterTarget(target string) func() {
	e.targets = append(e.targets, target)
	n := len(e.targets)
	return func() {
		e.targets = e.targets[:n-1]
	}
}

// CurrentTarget returns the innermost target, or the module id at top level.
func (e *Errors) CurrentTarget() string {
	if len(e.targets) == 0 {
		return e.module
	}
	return e.targets[len(e.targets)-1]
}

// Report records a non-blocking error at line.
func (e *Errors) Report(line int, msg string) {
	e.add(Info{Line: line, Severity: SeverityError, Message: msg})
}

// Reportf is Report with formatting.
func (e *Errors) Reportf(line int, format string, args ...any) {
	e.Report(line, fmt.Sprintf(format, args...))
}

// Note records a note at line.
func (e *Errors) Note(line int, msg string) {
	e.add(Info{Line: line, Severity: SeverityNote, Message: msg})
}

// Blocker records a blocking error and returns the CompileError to raise.
func (e *Errors) Blocker(line int, msg string) *CompileError {
	info := Info{Line: line, Severity: SeverityError, Message: msg, Blocker: true}
	e.add(info)
	info.Path = e.path
	return &CompileError{Messages: []string{info.String()}, Module: e.module}
}

func (e *Errors) add(info Info) {
	info.Path = e.path
	info.Module = e.module
	info.Target = e.CurrentTarget()
	e.infos[e.path] = append(e.infos[e.path], info)
}

// ClearErrorsInTargets removes the diagnostics of path attributed to any
// of targets.
func (e *Errors) ClearErrorsInTargets(path string, targets []string) {
	infos, ok := e.infos[path]
	if !ok {
		return
	}
	kept := infos[:0]
	for _, info := range infos {
		if !slices.Contains(targets, info.Target) {
			kept = append(kept, info)
		}
	}
	if len(kept) == 0 {
		delete(e.infos, path)
		return
	}
	e.infos[path] = kept
}

// Reset drops every recorded diagnostic.
func (e *Errors) Reset() {
	clear(e.infos)
	e.targets = e.targets[:0]
}

// Targets returns the sorted set of targets that have diagnostics.
func (e *Errors) Targets() []string {
	set := make(map[string]struct{})
	for _, infos := range e.infos {
		for _, info := range infos {
			set[info.Target] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// HasErrors reports whether any diagnostic was recorded for path.
func (e *Errors) HasErrors(path string) bool {
	return len(e.infos[path]) > 0
}

// Count returns the number of recorded diagnostics.
func (e *Errors) Count() int {
	n := 0
	for _, infos := range e.infos {
		n += len(infos)
	}
	return n
}

// Infos returns all diagnostics ordered by path, line and message.
// Duplicates reported for the same line are collapsed.
func (e *Errors) Infos() []Info {
	var all []Info
	for _, path := range slices.Sorted(maps.Keys(e.infos)) {
		infos := slices.Clone(e.infos[path])
		slices.SortStableFunc(infos, func(a, b Info) int {
			return cmp.Or(
				cmp.Compare(a.Line, b.Line),
				cmp.Compare(a.Severity, b.Severity),
				cmp.Compare(a.Message, b.Message),
			)
		})
		all = append(all, slices.CompactFunc(infos, func(a, b Info) bool {
			return a.Line == b.Line && a.Severity == b.Severity && a.Message == b.Message
		})...)
	}
	return all
}

// Messages returns the formatted diagnostics in Infos order.
func (e *Errors) Messages() []string {
	infos := e.Infos()
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.String()
	}
	return out
}

// FileInfos returns the diagnostics recorded for path in recording order.
func (e *Errors) FileInfos(path string) []Info {
	return slices.Clone(e.infos[path])
}

// ClearFile removes every diagnostic of path.
func (e *Errors) ClearFile(path string) {
	delete(e.infos, path)
}

// Restore records previously saved diagnostics as they are, keeping their
// paths and targets.
func (e *Errors) Restore(infos []Info) {
	for _, info := range infos {
		e.infos[info.Path] = append(e.infos[info.Path], info)
	}
}
