package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/marketboard/pkg/errors"
)

// CheckProxyCompatibility checks whether a proxy advertising proxyVersion can
// serve a client that speaks clientVersion of the contract.
//
// Compatibility Rules:
//   - If either version is "main" (development build), the check is skipped
//   - Major versions must match exactly
//   - The proxy minor version must be at least the client minor version,
//     since minor releases only add fields
//   - Patch versions can differ
//
// Examples:
//   - Client 1.0.0, Proxy 1.0.3 -> OK
//   - Client 1.0.0, Proxy 1.4.0 -> OK (proxy is ahead)
//   - Client 1.2.0, Proxy 1.1.0 -> ERROR (proxy lacks fields)
//   - Client 1.0.0, Proxy 2.0.0 -> ERROR (major differs)
func CheckProxyCompatibility(clientVersion, proxyVersion string) error {
	clientVersion = strings.TrimPrefix(strings.TrimSpace(clientVersion), "v")
	proxyVersion = strings.TrimPrefix(strings.TrimSpace(proxyVersion), "v")

	if clientVersion == "main" || proxyVersion == "main" {
		return nil
	}

	client, err := semver.NewVersion(clientVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid client version '%s'", clientVersion)
	}

	proxy, err := semver.NewVersion(proxyVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid proxy version '%s'", proxyVersion)
	}

	if client.Major() != proxy.Major() {
		return errors.Newf(errors.ErrCodeIncompatibleSource,
			"major version mismatch: client speaks %d.x.x but proxy serves %d.x.x",
			client.Major(), proxy.Major())
	}

	if proxy.Minor() < client.Minor() {
		return errors.Newf(errors.ErrCodeIncompatibleSource,
			"proxy %d.%d.x is older than client %d.%d.x",
			proxy.Major(), proxy.Minor(), client.Major(), client.Minor())
	}

	return nil
}
