package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/finegrain/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the cache database",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info [dir]",
	Short: "Print the number of cached modules, diagnostics and dependency edges",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openCache(args)
		if err != nil {
			return outputError("cache info", err)
		}
		defer s.Close()
		modules, diagnostics, edges, err := s.Counts()
		if err != nil {
			return outputError("cache info", err)
		}
		if !textOutput() {
			return writeJSON(os.Stdout, map[string]int{
				"modules":     modules,
				"diagnostics": diagnostics,
				"edges":       edges,
			})
		}
		fmt.Printf("Modules: %d\nDiagnostics: %d\nEdges: %d\n", modules, diagnostics, edges)
		return nil
	},
}

var cacheAffectedCmd = &cobra.Command{
	Use:   "affected <trigger>...",
	Short: "Print the cached modules with a dependency on any of the triggers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openCache(nil)
		if err != nil {
			return outputError("cache affected", err)
		}
		defer s.Close()
		names, err := s.ModulesTriggeredBy(args)
		if err != nil {
			return outputError("cache affected", err)
		}
		if !textOutput() {
			if names == nil {
				names = []string{}
			}
			return writeJSON(os.Stdout, names)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheAffectedCmd)
	rootCmd.AddCommand(cacheCmd)
}

// openCache opens the configured cache database of the directory in args.
func openCache(args []string) (*store.Store, error) {
	dir, err := resolveTargetDir(args)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, err
	}
	if cfg.Cache == "" {
		return nil, errors.New("no cache configured (set --cache or cache in finegrain.yaml)")
	}
	if _, err := os.Stat(cfg.Cache); err != nil {
		return nil, fmt.Errorf("cache not found: %s (run 'finegrain check --cache' first)", cfg.Cache)
	}
	return store.NewStore(cfg.Cache)
}
