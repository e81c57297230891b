package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// config is the merged configuration: flags, FINEGRAIN_* environment
// variables and the config file, in that order of precedence.
type config struct {
	Format        string   `mapstructure:"format"`
	SearchPaths   []string `mapstructure:"search_paths"`
	Exclude       []string `mapstructure:"exclude"`
	Cache         string   `mapstructure:"cache"`
	Plugins       string   `mapstructure:"plugins"`
	MaxIterations int      `mapstructure:"max_iterations"`
	Workers       int      `mapstructure:"workers"`
	Verbose       bool     `mapstructure:"verbose"`
}

// readConfig reads the config file named by --config or, failing that,
// finegrain.yaml from the target directory or its repository root. A
// missing default config file is not an error.
func readConfig(cmd *cobra.Command, args []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
		return nil
	}

	dir, err := resolveTargetDir(args)
	if err != nil {
		// Reported by the command itself.
		return nil
	}
	viper.SetConfigName("finegrain")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(dir)
	viper.AddConfigPath(findRepoRoot(dir))
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// loadConfig returns the configuration for a run in dir. Relative cache
// and plugin paths are resolved against dir.
func loadConfig(dir string) (config, error) {
	var cfg config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	if len(cfg.SearchPaths) == 0 {
		cfg.SearchPaths = []string{"."}
	}
	for i, p := range cfg.SearchPaths {
		cfg.SearchPaths[i] = filepath.ToSlash(filepath.Clean(p))
	}
	if cfg.Cache != "" && !filepath.IsAbs(cfg.Cache) {
		cfg.Cache = filepath.Join(dir, cfg.Cache)
	}
	if cfg.Plugins != "" && !filepath.IsAbs(cfg.Plugins) {
		cfg.Plugins = filepath.Join(dir, cfg.Plugins)
	}
	return cfg, nil
}
