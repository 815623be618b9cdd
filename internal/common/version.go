package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	toml "github.com/pelletier/go-toml/v2"
)

// Version variables injected at build time via ldflags
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// VersionFileName is the build metadata file read next to the binary.
const VersionFileName = "stockfetch.version"

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version string `json:"version"`
	Build   string `json:"build"`
	Commit  string `json:"commit"`
	Go      string `json:"go"`
}

// String formats the info for banners and the CLI
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (build: %s, commit: %s, %s)", b.Version, b.Build, b.Commit, b.Go)
}

// GetBuildInfo returns the current build metadata
func GetBuildInfo() BuildInfo {
	return BuildInfo{Version: Version, Build: Build, Commit: GitCommit, Go: runtime.Version()}
}

// GetVersion returns the semantic version string
func GetVersion() string {
	return Version
}

// GetBuild returns the build timestamp
func GetBuild() string {
	return Build
}

// GetGitCommit returns the short git commit hash
func GetGitCommit() string {
	return GitCommit
}

// GetFullVersion returns a formatted version string with all build info
func GetFullVersion() string {
	return GetBuildInfo().String()
}

// versionFile is the TOML written by the release script:
//
//	version = "0.3.1"
//	build = "2024-05-01T10:00:00Z"
//	commit = "a1b2c3d"
type versionFile struct {
	Version string `toml:"version"`
	Build   string `toml:"build"`
	Commit  string `toml:"commit"`
}

// LoadVersionFromFile reads stockfetch.version next to the binary. Values only
// fill variables still at their defaults, so ldflags win.
func LoadVersionFromFile() {
	exe, err := os.Executable()
	if err != nil {
		return
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(exe), VersionFileName))
	if err != nil {
		return
	}
	_ = applyVersionFile(data)
}

func applyVersionFile(data []byte) error {
	var vf versionFile
	if err := toml.Unmarshal(data, &vf); err != nil {
		return fmt.Errorf("parse %s: %w", VersionFileName, err)
	}
	if Version == "dev" && vf.Version != "" {
		Version = vf.Version
	}
	if Build == "unknown" && vf.Build != "" {
		Build = vf.Build
	}
	if GitCommit == "unknown" && vf.Commit != "" {
		GitCommit = vf.Commit
	}
	return nil
}
