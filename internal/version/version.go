package version

// Version is the assetpipe release, set at build time:
// go build -ldflags "-X git.home.luguber.info/inful/assetpipe/internal/version.Version=v0.3.0".
var Version = "dev"

// Build metadata, also set via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the version line printed by --version.
func String() string {
	return "assetpipe " + Version + " (commit " + GitCommit + ", built " + BuildTime + ")"
}
