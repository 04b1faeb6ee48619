package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"meshc/internal/prof"
	"meshc/internal/trace"
	"meshc/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "meshc",
	Short: "Sparse graph runtime driver",
	Long:  `meshc binds graph documents to compiled programs, builds their path indices and runs them`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyColorMode(cmd); err != nil {
			return err
		}
		if err := loadConfigInto(cmd); err != nil {
			return err
		}
		cleanup, err := setupTracing(cmd)
		if err != nil {
			return err
		}
		traceCleanup = cleanup
		profiling, err = setupProfiling(cmd)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if traceCleanup != nil {
			traceCleanup()
			traceCleanup = nil
		}
		err := profiling.Stop()
		profiling = nil
		return err
	},
	SilenceUsage: true,
}

var (
	traceCleanup func()
	profiling    *prof.Session
)

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.Bool("quiet", false, "suppress non-essential output")
	pf.Bool("timings", false, "show phase timings")
	pf.String("config", "", "path to meshc.toml (default: search upward from the working directory)")
	pf.String("cache-dir", "", "path index cache directory")
	pf.Bool("no-cache", false, "disable the path index cache")
	pf.String("metrics-out", "", "write metrics in text exposition format to this file (- for stdout)")

	pf.String("trace", "", "trace output file (- for stderr)")
	pf.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	pf.String("trace-mode", "stream", "trace storage mode (stream|ring|both)")
	pf.String("trace-format", "auto", "trace output format (auto|text|ndjson)")
	pf.Int("trace-ring-size", trace.DefaultRingSize, "ring buffer size for ring trace mode")
	pf.Duration("trace-heartbeat", 0, "emit heartbeat events at this interval (0 disables)")

	pf.String("cpu-profile", "", "write a CPU profile to this file")
	pf.String("mem-profile", "", "write a heap profile to this file on exit")
	pf.String("runtime-trace", "", "write a Go runtime trace to this file")

}

// main executes the root command. A failed command exits with status 1.
func main() {
	err := rootCmd.Execute()
	if err != nil {
		dumpTraceRings(os.Stderr)
	}
	if traceCleanup != nil {
		traceCleanup()
	}
	if err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
