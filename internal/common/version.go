package common

// Version information, overridable at build time via
// -ldflags "-X .../internal/common.Version=x.y.z".
var (
	Version = "0.0.0-dev"
	Build   = "unknown"
)

// GetVersion returns the version string for banners and --version output.
func GetVersion() string {
	return Version
}
