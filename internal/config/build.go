package config

import "fmt"

// Linker-injected build metadata, for example:
//
//	go build -ldflags "-X simplenotes/internal/config.version=1.2.3 \
//	    -X simplenotes/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X simplenotes/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// String renders the build as "version (commit, buildTime)".
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (%s, %s)", b.Version, b.Commit, b.BuildTime)
}
