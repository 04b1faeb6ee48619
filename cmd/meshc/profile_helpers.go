package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meshc/internal/prof"
)

// setupProfiling starts the profilers selected by the persistent profiling
// flags.
func setupProfiling(cmd *cobra.Command) (*prof.Session, error) {
	pf := cmd.Root().PersistentFlags()
	var cfg prof.Config
	var err error
	if cfg.CPU, err = pf.GetString("cpu-profile"); err != nil {
		return nil, fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	if cfg.Heap, err = pf.GetString("mem-profile"); err != nil {
		return nil, fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	if cfg.Trace, err = pf.GetString("runtime-trace"); err != nil {
		return nil, fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	return prof.Start(cfg)
}
