package store

import "time"

// Module is the cached state of one analyzed module.
type Module struct {
	ID           int64
	Name         string
	Path         string
	Hash         string
	ModTime      time.Time
	Dependencies []string
	LastChecked  time.Time
}

// Diagnostic is one cached diagnostic. Ordinal keeps recording order.
type Diagnostic struct {
	ID       int64
	ModuleID int64
	Ordinal  int
	Path     string
	Module   string
	Target   string
	Line     int
	Severity string
	Message  string
	Blocker  bool
}

// Edge is one cached dependency edge contributed by a module.
type Edge struct {
	ID       int64
	ModuleID int64
	Trigger  string
	Target   string
}
