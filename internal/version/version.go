package version

// Version is the current version of marketboard.
// This value is set at build time using ldflags:
// -ldflags "-X github.com/rxtech-lab/marketboard/internal/version.Version=1.2.3"
// The value "main" indicates a development build.
var Version = "main"

// ProxyAPIVersion is the version of the proxy JSON contract this build speaks.
const ProxyAPIVersion = "1.0.0"

// GetVersion returns the current version of the binary.
func GetVersion() string {
	return Version
}
