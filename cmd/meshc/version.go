package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"meshc/internal/version"
)

// buildInfo is the version command's JSON document. Commit and date are
// included when requested and reported as "unknown" when not stamped.
type buildInfo struct {
	Tool      string   `json:"tool"`
	Version   string   `json:"version"`
	Go        string   `json:"go"`
	Programs  []string `json:"programs"`
	GitCommit string   `json:"git_commit,omitempty"`
	BuildDate string   `json:"build_date,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show meshc build information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().Bool("hash", false, "include git commit hash")
	versionCmd.Flags().Bool("date", false, "include build timestamp")
	versionCmd.Flags().Bool("full", false, "include all build metadata")
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	format, _ := flags.GetString("format")
	full, _ := flags.GetBool("full")
	withHash, _ := flags.GetBool("hash")
	withDate, _ := flags.GetBool("date")
	withHash = withHash || full
	withDate = withDate || full

	info := buildInfo{
		Tool:     "meshc",
		Version:  stamped(version.Version, "dev"),
		Go:       runtime.Version(),
		Programs: programNames(),
	}
	if withHash {
		info.GitCommit = stamped(version.GitCommit, "unknown")
	}
	if withDate {
		info.BuildDate = stamped(version.BuildDate, "unknown")
	}

	out := cmd.OutOrStdout()
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "pretty":
		fmt.Fprintf(out, "meshc %s (%s)\n", version.Colored(), info.Go)
		fmt.Fprintf(out, "programs: %s\n", strings.Join(info.Programs, ", "))
		if withHash {
			fmt.Fprintf(out, "commit:   %s\n", info.GitCommit)
		}
		if withDate {
			fmt.Fprintf(out, "built:    %s\n", info.BuildDate)
		}
		return nil
	}
	return fmt.Errorf("unsupported format %q (want pretty or json)", format)
}

func stamped(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
