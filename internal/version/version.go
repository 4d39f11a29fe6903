package version

import "fmt"

// Version is the assetforge release, set at link time:
// go build -ldflags "-X git.home.luguber.info/inful/assetforge/internal/version.Version=v1.0.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the tool version for --version output.
func String() string {
	return fmt.Sprintf("assetforge %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
