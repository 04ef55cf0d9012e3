// Package kobold holds identifying information shared across kobold's
// commands and packages.
package kobold

import "fmt"

const (
	// VersionMajor is kobold's current major version.
	VersionMajor = 0
	// VersionMinor is kobold's current minor version.
	VersionMinor = 1
	// VersionPatch is kobold's current patch version.
	VersionPatch = 0
)

// Version is the formatted version string, computed once at package init.
var Version string

func init() {
	Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}
