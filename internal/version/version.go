package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const productName = "CRM Mailbox"

var (
	// Version is the semantic version number
	Version = "0.3.0-dev"

	// GitCommit is the git commit hash (injected at build time)
	GitCommit = "unknown"

	// BuildDate is the build date (injected at build time)
	BuildDate = "unknown"
)

// Info contains version information
type Info struct {
	Version     string `json:"version"`
	GitCommit   string `json:"git_commit"`
	BuildDate   string `json:"build_date"`
	BuildMethod string `json:"build_method"`
	GoVersion   string `json:"go_version"`
	Platform    string `json:"platform"`
}

// GetVersion returns the version string
func GetVersion() string {
	return Version
}

// GetInfo returns version information. Values not injected with -ldflags are
// taken from the module build info when available.
func GetInfo() Info {
	info := Info{
		Version:     Version,
		GitCommit:   GitCommit,
		BuildDate:   BuildDate,
		BuildMethod: "ldflags",
		GoVersion:   runtime.Version(),
		Platform:    fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if GitCommit != "unknown" {
		return info
	}

	info.BuildMethod = "go build"
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.GitCommit = s.Value
			case "vcs.time":
				info.BuildDate = s.Value
			}
		}
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			info.Version = v
			info.BuildMethod = "go install"
		}
	}
	return info
}

// GetVersionString returns a formatted version string
func GetVersionString() string {
	info := GetInfo()
	if info.GitCommit == "unknown" {
		return fmt.Sprintf("%s %s", productName, info.Version)
	}
	return fmt.Sprintf("%s %s (%s)", productName, info.Version, shortCommit(info.GitCommit))
}

// GetDetailedVersionString returns a detailed version string for --version output
func GetDetailedVersionString() string {
	info := GetInfo()

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", productName, info.Version)
	fmt.Fprintf(&b, "Git commit: %s\n", info.GitCommit)
	fmt.Fprintf(&b, "Build date: %s\n", info.BuildDate)
	fmt.Fprintf(&b, "Build method: %s\n", info.BuildMethod)
	fmt.Fprintf(&b, "Go version: %s\n", info.GoVersion)
	fmt.Fprintf(&b, "Platform: %s", info.Platform)
	return b.String()
}

// IsRelease returns true if this is a release version (not a dev build)
func IsRelease() bool {
	return Version != "" && GitCommit != "unknown" && !strings.Contains(Version, "dev")
}

// IsDevelopment returns true if this is a development build
func IsDevelopment() bool {
	return !IsRelease()
}

func shortCommit(c string) string {
	if len(c) > 8 {
		return c[:8]
	}
	return c
}
