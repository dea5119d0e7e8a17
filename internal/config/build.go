package config

// Set at link time:
//
//	go build -ldflags "-X pgist/internal/config.version=1.2.3 \
//	    -X pgist/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X pgist/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/pgist
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
