package main

import (
	"fmt"
	"runtime/debug"
)

const baseVersion = "0.1.0"

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("rabbit", Version())
	return nil
}

// Version returns the module version when installed with go install, and
// devel-{base}+{revision} for development builds.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return baseVersion
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return "devel-" + baseVersion + "+" + s.Value[:7]
		}
	}
	return "devel-" + baseVersion
}
