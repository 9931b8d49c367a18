package version

import "fmt"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/newtron-network/flowmesh/pkg/version.Version=v1.0.0 \
//	  -X github.com/newtron-network/flowmesh/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/flowmesh/pkg/version.BuildDate=2026-01-01"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info renders a single-line version string for CLI output.
func Info() string {
	if Version == "dev" {
		return "dev build (no version info embedded)"
	}
	return fmt.Sprintf("%s (%s, built %s)", Version, GitCommit, BuildDate)
}
