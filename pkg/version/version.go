// Package version carries the build identity of the freecaster-grid
// binary. The values are stamped via ldflags -X at release time.
package version

var (
	// Version is the semantic version of the binary.
	Version = "dev"

	// Commit is the git commit hash the binary was built from.
	Commit = "none"

	// Date is the build date of the binary.
	Date = "unknown"
)
