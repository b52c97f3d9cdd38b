// Package version carries build metadata stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/rcmesh/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/rcmesh/internal/version.Commit=abc123
//	  -X github.com/soyeahso/rcmesh/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns the long form printed by `rcmesh version`.
func Info() string {
	return fmt.Sprintf("rcmesh %s (commit: %s, built: %s, %s/%s)",
		Version, Short(), Date, runtime.GOOS, runtime.GOARCH)
}

// Product names a component for peers: "rcmesh-irc/1.0.0+abc1234".
// An empty component yields plain "rcmesh".
func Product(component string) string {
	name := "rcmesh"
	if component != "" {
		name += "-" + component
	}
	if Commit == "unknown" || Commit == "" {
		return name + "/" + Version
	}
	return name + "/" + Version + "+" + Short()
}

// Short returns the abbreviated commit hash.
func Short() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
