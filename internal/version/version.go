// Package version holds build identification, stamped by the linker via
// -ldflags "-X github.com/banshee-data/validation.report/internal/version.Version=...".
package version

import "fmt"

var (
	// Version is the release version, or "dev" for unstamped builds.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns a single-line build identifier for startup logs.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
