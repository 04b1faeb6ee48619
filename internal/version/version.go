package version

import (
	"strings"

	"github.com/fatih/color"
)

// Build information for the meshc CLI.
// These variables can be overridden at build time via -ldflags.

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)

	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

// Colored renders Version with its major, minor and patch components in
// distinct colors. Pre-release and build suffixes are left plain. Color is
// dropped when color.NoColor is set.
func Colored() string {
	core, suffix := Version, ""
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core, suffix = core[:i], core[i:]
	}
	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return Version
	}
	return versionMajorColor.Sprint(parts[0]) + "." +
		versionMinorColor.Sprint(parts[1]) + "." +
		versionPatchColor.Sprint(parts[2]) + suffix
}
