// Package version holds build-time identifiers injected via -ldflags.
package version

// Version, Commit, and BuildDate are overridden at build time, e.g.:
//
//	go build -ldflags "-X github.com/guimove/clusterfit-scaler/pkg/version.Version=1.2.0 \
//	  -X github.com/guimove/clusterfit-scaler/pkg/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/guimove/clusterfit-scaler/pkg/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)
