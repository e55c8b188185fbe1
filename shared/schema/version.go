package schema

// Protocol versions understood by this implementation, oldest first.
const (
	PROTOCOL_VERSION_2025_03_26 = "2025-03-26"
	PROTOCOL_VERSION_2025_06_18 = "2025-06-18"

	// LATEST_PROTOCOL_VERSION is the newest version this implementation speaks.
	LATEST_PROTOCOL_VERSION = PROTOCOL_VERSION_2025_06_18

	// OLDEST_PROTOCOL_VERSION is what the server falls back to when the client
	// requests a version it does not know.
	OLDEST_PROTOCOL_VERSION = PROTOCOL_VERSION_2025_03_26
)

// SupportedVersions lists the protocol versions the server accepts.
var SupportedVersions = []string{
	PROTOCOL_VERSION_2025_03_26,
	PROTOCOL_VERSION_2025_06_18,
}

// IsSupportedVersion reports whether the given protocol version is known.
func IsSupportedVersion(version string) bool {
	for _, v := range SupportedVersions {
		if v == version {
			return true
		}
	}
	return false
}

// NegotiateVersion implements the initialize handshake rule: a supported
// requested version is echoed back; anything else gets the oldest supported
// version, the most likely to be understood by an out-of-date client.
func NegotiateVersion(requested string) string {
	if IsSupportedVersion(requested) {
		return requested
	}
	return OLDEST_PROTOCOL_VERSION
}

// VersionRequiresHeader reports whether the MCP-Protocol-Version header is
// mandatory on non-initialize requests for the given negotiated version.
func VersionRequiresHeader(version string) bool {
	return version >= PROTOCOL_VERSION_2025_06_18
}

// VersionAllowsBatch reports whether JSON array batches are accepted.
// 2025-06-18 removed batch support from the protocol.
func VersionAllowsBatch(version string) bool {
	return version < PROTOCOL_VERSION_2025_06_18
}
