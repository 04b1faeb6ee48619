package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

const configFileName = "meshc.toml"

type meshcConfig struct {
	Run   runConfig   `toml:"run"`
	Cache cacheConfig `toml:"cache"`
	Trace traceConfig `toml:"trace"`
}

type runConfig struct {
	Program string   `toml:"program"`
	Graphs  []string `toml:"graphs"`
	Jobs    int      `toml:"jobs"`
}

type cacheConfig struct {
	Dir     string `toml:"dir"`
	Enabled *bool  `toml:"enabled"`
}

type traceConfig struct {
	Level  string `toml:"level"`
	Output string `toml:"output"`
}

// loadedConfig is the configuration of the running command, nil when no
// meshc.toml was found.
var loadedConfig *projectConfig

type projectConfig struct {
	Path   string
	Root   string
	Config meshcConfig
}

func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadConfig(path string) (meshcConfig, error) {
	var cfg meshcConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return meshcConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return meshcConfig{}, fmt.Errorf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if cfg.Run.Jobs < 0 {
		return meshcConfig{}, fmt.Errorf("%s: [run].jobs must not be negative", path)
	}
	return cfg, nil
}

// resolve makes a path from the config file relative to its directory.
func (p *projectConfig) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Root, filepath.FromSlash(path))
}

// loadConfigInto reads meshc.toml, from --config or found by walking up,
// and fills every flag the user left unset from it.
func loadConfigInto(cmd *cobra.Command) error {
	loadedConfig = nil
	pf := cmd.Root().PersistentFlags()
	path, err := pf.GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	if path == "" {
		found, ok, err := findConfig(".")
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		path = found
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	pc := &projectConfig{Path: path, Root: filepath.Dir(path), Config: cfg}
	loadedConfig = pc

	fill := func(flags interface {
		Changed(string) bool
		Set(string, string) error
	}, name, value string) error {
		if value == "" || flags.Changed(name) {
			return nil
		}
		return flags.Set(name, value)
	}
	if err := fill(pf, "cache-dir", pc.resolve(cfg.Cache.Dir)); err != nil {
		return err
	}
	if cfg.Cache.Enabled != nil && !*cfg.Cache.Enabled {
		if err := fill(pf, "no-cache", "true"); err != nil {
			return err
		}
	}
	if err := fill(pf, "trace-level", cfg.Trace.Level); err != nil {
		return err
	}
	if err := fill(pf, "trace", pc.resolve(cfg.Trace.Output)); err != nil {
		return err
	}
	if f := cmd.Flags(); f.Lookup("program") != nil {
		if err := fill(f, "program", cfg.Run.Program); err != nil {
			return err
		}
	}
	if f := cmd.Flags(); f.Lookup("jobs") != nil && cfg.Run.Jobs > 0 {
		if err := fill(f, "jobs", strconv.Itoa(cfg.Run.Jobs)); err != nil {
			return err
		}
	}
	return nil
}

// configGraphs returns the [run].graphs documents resolved against the
// config directory.
func configGraphs() []string {
	if loadedConfig == nil {
		return nil
	}
	out := make([]string, len(loadedConfig.Config.Run.Graphs))
	for i, g := range loadedConfig.Config.Run.Graphs {
		out[i] = loadedConfig.resolve(g)
	}
	return out
}
