// SPDX-License-Identifier: MIT

// Package version carries build information injected via ldflags.
package version

import "fmt"

var (
	// Version is the release tag, populated by the build system.
	Version = "v0.3.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String returns a single-line description of the build.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
