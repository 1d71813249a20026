// Package buildinfo holds version metadata stamped in at link time.
package buildinfo

// Set via -ldflags "-X github.com/hassrename/hren/internal/buildinfo.Version=...".
// Empty for local builds; "hren version" then falls back to debug.ReadBuildInfo.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)
