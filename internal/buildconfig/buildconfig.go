// Package buildconfig carries the hirescreen build identity, stamped at link
// time via -ldflags "-X .../internal/buildconfig.version=...".
package buildconfig

var (
	version = "0.0.0-dev"
	commit  = "unknown"
)

// Version returns the stamped release version, or the dev placeholder.
func Version() string {
	return version
}

// Commit returns the stamped git commit hash.
func Commit() string {
	return commit
}

// String renders the identity for startup logs, e.g. "0.0.0-dev (unknown)".
func String() string {
	return version + " (" + commit + ")"
}
