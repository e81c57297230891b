package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// errDiagnostics makes the process exit non-zero when errors were found.
var errDiagnostics = errors.New("errors found")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled && !errors.Is(err, errDiagnostics) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "finegrain",
	Short:         "Incremental type checking for Python programs",
	Long:          "Finegrain type checks a Python program once and then keeps it up to date, reprocessing only the functions and module top levels an edit can affect.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := readConfig(cmd, args); err != nil {
			return err
		}
		return validateFormat(viper.GetString("format"))
	},
	// No Run: prints help by default.
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: finegrain.yaml in the directory or repo root)")
	flags.String("format", "text", "output format: json|text")
	flags.StringSlice("search-path", []string{"."}, "directories imports are resolved against, in priority order")
	flags.StringSlice("exclude", nil, "glob patterns of files to skip, relative to the directory")
	flags.String("cache", "", "cache database path (default: no cache)")
	flags.String("plugins", "", "directory of plugin scripts")
	flags.Int("max-iterations", 0, "propagation round limit (default: engine default)")
	flags.Int("workers", 0, "files parsed concurrently (default: one)")
	flags.BoolP("verbose", "v", false, "log update steps to stderr")

	for key, flag := range map[string]string{
		"format":         "format",
		"search_paths":   "search-path",
		"exclude":        "exclude",
		"cache":          "cache",
		"plugins":        "plugins",
		"max_iterations": "max-iterations",
		"workers":        "workers",
		"verbose":        "verbose",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
	viper.SetEnvPrefix("FINEGRAIN")
	viper.AutomaticEnv()

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(statsCmd)
}

// resolveTargetDir returns the absolute path of the directory to check:
// the argument, the configured root or the working directory.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if root := viper.GetString("root"); root != "" {
		dir = root
	}
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}
