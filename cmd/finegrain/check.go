package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jward/finegrain"
)

var checkCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Type check every module under a directory",
	Long:  "Runs a full build of the Python modules under the directory and prints the diagnostics. With --cache, modules unchanged since the last run are taken from the cache.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

var flagPrefix []string

var depsCmd = &cobra.Command{
	Use:   "deps [dir]",
	Short: "Print the fine-grained dependency map",
	Long:  "Builds the program and prints every trigger with the targets it fires, one trigger per line.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDeps,
}

var statsCmd = &cobra.Command{
	Use:   "stats [dir]",
	Short: "Count the objects held for each module",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStats,
}

func init() {
	depsCmd.Flags().StringSliceVar(&flagPrefix, "prefix", nil, "only triggers whose name starts with one of these")
}

// buildWorkspace opens a workspace over the directory in args and runs the
// initial build.
func buildWorkspace(ctx context.Context, command string, args []string) (*workspace, []string, int, error) {
	dir, err := resolveTargetDir(args)
	if err != nil {
		return nil, nil, 0, outputError(command, err)
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, nil, 0, outputError(command, err)
	}
	w, err := openWorkspace(dir, cfg, os.Stderr)
	if err != nil {
		return nil, nil, 0, outputError(command, err)
	}
	sources, err := w.sources()
	if err != nil {
		w.Close()
		return nil, nil, 0, outputError(command, err)
	}
	msgs, err := w.engine.Build(ctx, sources)
	if err != nil {
		w.Close()
		return nil, nil, 0, outputError(command, err)
	}
	return w, msgs, len(sources), nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	start := time.Now()
	w, msgs, n, err := buildWorkspace(cmd.Context(), "check", args)
	if err != nil {
		return err
	}
	defer w.Close()

	if textOutput() {
		formatMessagesText(os.Stdout, msgs, n)
		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Checked %s in %s\n", w.dir, time.Since(start).Round(time.Millisecond))
		}
	} else {
		result := checkResult{Command: "check", Messages: msgs}
		if blocked, ok := w.engine.Blocked(); ok {
			result.Blocked = blocked.ID
		}
		if err := writeJSON(os.Stdout, result); err != nil {
			return err
		}
	}
	if len(msgs) > 0 {
		return errDiagnostics
	}
	return nil
}

func runDeps(cmd *cobra.Command, args []string) error {
	w, _, _, err := buildWorkspace(cmd.Context(), "deps", args)
	if err != nil {
		return err
	}
	defer w.Close()

	lines := w.engine.Deps(flagPrefix...)
	if !textOutput() {
		return writeJSON(os.Stdout, lines)
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	w, _, _, err := buildWorkspace(cmd.Context(), "stats", args)
	if err != nil {
		return err
	}
	defer w.Close()

	stats, err := loadedStats(cmd.Context(), w)
	if err != nil {
		return outputError("stats", err)
	}
	if !textOutput() {
		return writeJSON(os.Stdout, toStatsResults(stats))
	}
	formatStatsText(os.Stdout, stats)
	return nil
}

// loadedStats makes sure every module is loaded, since modules taken from
// the cache have no tree, and returns their statistics.
func loadedStats(ctx context.Context, w *workspace) ([]finegrain.ModuleStats, error) {
	if err := w.engine.LoadAll(ctx); err != nil {
		return nil, err
	}
	return w.engine.Stats()
}
