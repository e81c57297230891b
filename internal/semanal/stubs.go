package semanal

import (
	"embed"
	"io/fs"
)

//go:embed stubs/*.py
var stubs embed.FS

// StubModules lists the modules that are always present and served from
// the embedded stubs, in processing order.
var StubModules = []string{"builtins", "typing"}

// Stubs returns the embedded stub sources, one <id>.py file per module.
func Stubs() fs.FS {
	sub, err := fs.Sub(stubs, "stubs")
	if err != nil {
		panic(err)
	}
	return sub
}
