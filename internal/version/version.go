package version

// Version contains the application version information.
// Set via build-time ldflags:
// go build -ldflags "-X github.com/tabdulradi/pan-tut/internal/version.Version=v1.0.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)
