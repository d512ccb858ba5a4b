package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// UserAgent identifies the planner to the public backends it queries.
func UserAgent() string {
	return fmt.Sprintf("roadtrip/%s (+%s)", Version, GitSHA)
}

// String describes the build for -version output.
func String() string {
	return fmt.Sprintf("roadtrip %s (%s, built %s)", Version, GitSHA, BuildTime)
}
