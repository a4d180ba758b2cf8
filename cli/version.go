package cli

import "runtime/debug"

// version is set with -ldflags "-X github.com/brimdata/docpipe/cli.version=...".
var version string

// Version returns the linker-provided version, falling back to the main
// module version recorded in the build info ("(devel)" for local builds).
func Version() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.Main.Version
	}
	return "unknown"
}
