package main

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"meshc/internal/observ"
	"meshc/internal/pe"
)

// openIndexCache returns the disk cache selected by --cache-dir, or nil
// with --no-cache.
func openIndexCache(cmd *cobra.Command) (*pe.DiskCache, error) {
	pf := cmd.Root().PersistentFlags()
	disabled, err := pf.GetBool("no-cache")
	if err != nil {
		return nil, fmt.Errorf("failed to get no-cache flag: %w", err)
	}
	if disabled {
		return nil, nil
	}
	dir, err := pf.GetString("cache-dir")
	if err != nil {
		return nil, fmt.Errorf("failed to get cache-dir flag: %w", err)
	}
	c, err := pe.OpenDiskCache(dir)
	if err != nil {
		return nil, fmt.Errorf("open index cache: %w", err)
	}
	return c, nil
}

// newMetrics returns metrics on a fresh registry.
func newMetrics() (*observ.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return observ.NewMetrics(reg), reg
}

// writeMetrics honors --metrics-out.
func writeMetrics(cmd *cobra.Command, reg *prometheus.Registry) (err error) {
	path, err := cmd.Root().PersistentFlags().GetString("metrics-out")
	if err != nil {
		return fmt.Errorf("failed to get metrics-out flag: %w", err)
	}
	if path == "" {
		return nil
	}
	var w io.Writer = cmd.OutOrStdout()
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("metrics output: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}
	return observ.WriteText(w, reg)
}

func rootBool(cmd *cobra.Command, name string) (bool, error) {
	v, err := cmd.Root().PersistentFlags().GetBool(name)
	if err != nil {
		return false, fmt.Errorf("failed to get %s flag: %w", name, err)
	}
	return v, nil
}
