package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/viper"

	"github.com/jward/finegrain"
	"github.com/jward/finegrain/internal/reach"
)

// checkResult is the JSON envelope of check and session results.
type checkResult struct {
	Command   string   `json:"command"`
	Messages  []string `json:"messages"`
	Blocked   string   `json:"blocked,omitempty"`
	Triggered []string `json:"triggered,omitempty"`
	Updated   []string `json:"updated,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// statsResult is the JSON form of one module's statistics.
type statsResult struct {
	Module  string         `json:"module"`
	Path    string         `json:"path"`
	Objects int            `json:"objects"`
	Kinds   map[string]int `json:"kinds"`
}

func textOutput() bool {
	return viper.GetString("format") == "text"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatMessagesText prints the diagnostics followed by a summary line.
func formatMessagesText(w io.Writer, msgs []string, modules int) {
	for _, m := range msgs {
		fmt.Fprintln(w, m)
	}
	if len(msgs) == 0 {
		fmt.Fprintf(w, "Success: no issues found in %d source %s\n", modules, plural(modules, "file"))
		return
	}
	files := make(map[string]bool)
	for _, m := range msgs {
		if path, _, ok := strings.Cut(m, ":"); ok {
			files[path] = true
		}
	}
	fmt.Fprintf(w, "Found %d %s in %d %s (checked %d source %s)\n",
		len(msgs), plural(len(msgs), "error"),
		len(files), plural(len(files), "file"),
		modules, plural(modules, "file"))
}

// formatStatsText prints one row per module, with its most frequent
// object kinds.
func formatStatsText(w io.Writer, stats []finegrain.ModuleStats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tPATH\tOBJECTS\tTOP KINDS")
	for _, s := range stats {
		kinds := topKinds(s.Kinds, 3)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Module, s.Path, s.Objects, strings.Join(kinds, ", "))
	}
	tw.Flush()
}

// topKinds returns the n most frequent kinds, without the package
// qualifier.
func topKinds(counts map[string]int, n int) []string {
	kinds := reach.Kinds(counts)
	if len(kinds) > n {
		kinds = kinds[:n]
	}
	for i, k := range kinds {
		kinds[i] = fmt.Sprintf("%s=%d", strings.TrimPrefix(k, "*nodes."), counts[k])
	}
	return kinds
}

func toStatsResults(stats []finegrain.ModuleStats) []statsResult {
	out := make([]statsResult, len(stats))
	for i, s := range stats {
		out[i] = statsResult{Module: s.Module, Path: s.Path, Objects: s.Objects, Kinds: s.Kinds}
	}
	return out
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// checkResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if textOutput() {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	_ = writeJSON(os.Stdout, checkResult{Command: command, Error: err.Error()})
	return err
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
