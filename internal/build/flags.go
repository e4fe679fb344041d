// SPDX-License-Identifier: MIT
//
// Package build holds build metadata embedded at compile time with linker
// flags, for example:
//
//	go build -ldflags "-X lantern/internal/build.buildVersion=0.3.0 \
//	  -X lantern/internal/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X lantern/internal/build.buildTime=$(date -u +%FT%TZ)"
//
// A binary built without them reports itself as a development build.
package build

import (
	"fmt"

	"github.com/google/uuid"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
	// RunID identifies this process in logs. It is generated at startup.
	RunID string
}

// String returns a one-line version summary.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Package-level variables for build information. These are populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = &Info{
		Name:        "lantern",
		Description: "Audio-reactive controller for BLE light strips",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies the linker-provided values into the build info. A release
// build, one that sets a version, must also set the commit and build time.
func Initialize() error {
	if buildVersion != "" {
		if buildCommit == "" {
			return fmt.Errorf("BuildCommit is required")
		}
		if buildTime == "" {
			return fmt.Errorf("BuildTime is required")
		}
		buildInfo.Version = buildVersion
		buildInfo.Commit = buildCommit
		buildInfo.Time = buildTime
	}
	if buildName != "" {
		buildInfo.Name = buildName
	}
	buildInfo.RunID = uuid.NewString()
	return nil
}

// Get returns the current build information.
func Get() *Info {
	return buildInfo
}
