package build

import (
	"io/fs"
	"path"
	"strings"
)

// Finder maps module ids to source files under a set of search roots.
// Module a.b is found as a/b.py or as the package a/b/__init__.py.
type Finder struct {
	fsys  fs.FS
	roots []string
}

// NewFinder returns a finder over roots of fsys, in priority order.
func NewFinder(fsys fs.FS, roots ...string) *Finder {
	return &Finder{fsys: fsys, roots: roots}
}

// Find returns the path of module id.
func (f *Finder) Find(id string) (string, bool) {
	if isStub(id) {
		return stubPath(id), true
	}
	rel := strings.ReplaceAll(id, ".", "/")
	for _, root := range f.roots {
		base := path.Join(root, rel)
		for _, candidate := range []string{base + ".py", path.Join(base, "__init__.py")} {
			if info, err := fs.Stat(f.fsys, candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}
	}
	return "", false
}

// ModuleID returns the module id of a source path, relative to the first
// search root containing it.
func (f *Finder) ModuleID(p string) (string, bool) {
	if !strings.HasSuffix(p, ".py") {
		return "", false
	}
	for _, root := range f.roots {
		rel := p
		if root != "." {
			var ok bool
			rel, ok = strings.CutPrefix(p, strings.TrimSuffix(root, "/")+"/")
			if !ok {
				continue
			}
		}
		rel = strings.TrimSuffix(rel, ".py")
		rel = strings.TrimSuffix(rel, "/__init__")
		if rel == "__init__" || rel == "" {
			return "", false
		}
		return strings.ReplaceAll(rel, "/", "."), true
	}
	return "", false
}
