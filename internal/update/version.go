// Package update checks whether a newer jobrunr release has been published and
// keeps the dashboard's new-version notification in line with the answer.
package update

import "runtime/debug"

// ProductName is used in the User-Agent of outbound version checks.
const ProductName = "JobRunr"

// Version is set at build time via -ldflags.
var Version = "dev"

// CurrentVersion returns the version of the running binary. Builds without
// ldflags fall back to the main module version recorded by the Go toolchain.
func CurrentVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return trimV(v)
		}
	}
	return Version
}
