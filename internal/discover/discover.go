// Package discover finds the Python modules of a source tree.
package discover

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/finegrain/internal/build"
)

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	"vendor":        {},
	"venv":          {},
	"env":           {},
	"build":         {},
	"dist":          {},
	"egg-info":      {},
	".mypy_cache":   {},
	".pytest_cache": {},
}

// Files returns the .py files under root of fsys, sorted. Hidden files and
// directories, well-known tool directories, paths matched by root's
// .gitignore and paths matched by any exclude glob are skipped. Exclude
// globs use doublestar syntax and match paths relative to root.
func Files(fsys fs.FS, root string, exclude []string) ([]string, error) {
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("discover: invalid exclude pattern %q", pattern)
		}
	}
	gi, err := loadGitignore(fsys, root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		name := d.Name()
		rel := relative(root, p)
		if d.IsDir() {
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			if gi != nil && gi.MatchesPath(rel+"/") || excluded(exclude, rel) {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".py") {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) || excluded(exclude, rel) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover: walk %s: %w", root, err)
	}
	slices.Sort(files)
	return files, nil
}

// Sources returns the modules under root as build sources. Files that do
// not name a module under any of the finder's search roots are skipped.
func Sources(fsys fs.FS, finder *build.Finder, root string, exclude []string) ([]build.Source, error) {
	files, err := Files(fsys, root, exclude)
	if err != nil {
		return nil, err
	}
	var out []build.Source
	for _, p := range files {
		if id, ok := finder.ModuleID(p); ok {
			out = append(out, build.Source{ID: id, Path: p})
		}
	}
	return out, nil
}

func relative(root, p string) string {
	if root == "." {
		return p
	}
	return strings.TrimPrefix(p, root+"/")
}

func excluded(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func loadGitignore(fsys fs.FS, root string) (*ignore.GitIgnore, error) {
	data, err := fs.ReadFile(fsys, path.Join(root, ".gitignore"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("discover: read .gitignore: %w", err)
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return ignore.CompileIgnoreLines(lines...), nil
}
