package finegrain

import (
	"github.com/jward/finegrain/internal/build"
	"github.com/jward/finegrain/internal/checker"
	"github.com/jward/finegrain/internal/diag"
)

// Public aliases for the internal types that appear in the Engine API.
// They are identical to the internal types; no conversion is needed.

type Source = build.Source
type Cache = build.Cache
type CacheEntry = build.CacheEntry
type Plugin = checker.Plugin
type PluginFunction = checker.Function
type PluginReport = checker.Report
type Diagnostic = diag.Info
type CompileError = diag.CompileError
