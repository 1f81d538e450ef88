// Package version reports the build of upnpctl.
//
// The values are set at build time through ldflags:
//
//	go build -ldflags "-X github.com/InfraSecConsult/upnp-control-go/internal/version.Version=v0.3.0 \
//	  -X github.com/InfraSecConsult/upnp-control-go/internal/version.CommitHash=$(git rev-parse --short HEAD)" ./cmd/upnpctl
//
// Without ldflags the version is read from a VERSION file, or is "dev".
package version

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Product is the product token announced to devices.
const Product = "upnpctl"

var (
	Version    = ""
	CommitHash = ""
	BuildTime  = ""
)

// Info describes the running build.
type Info struct {
	Version    string `json:"version" yaml:"version"`
	CommitHash string `json:"commit_hash,omitempty" yaml:"commit_hash,omitempty"`
	BuildTime  string `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	GoVersion  string `json:"go_version" yaml:"go_version"`
	Platform   string `json:"platform" yaml:"platform"`
}

// GetVersion returns the ldflags version, then the VERSION file content, then "dev".
func GetVersion() string {
	if Version != "" {
		return Version
	}
	for _, path := range []string{"VERSION", "../VERSION", "../../VERSION"} {
		if content, err := os.ReadFile(path); err == nil {
			if v := strings.TrimSpace(string(content)); v != "" {
				return v
			}
		}
	}
	return "dev"
}

// GetFullVersion appends the commit hash when known.
func GetFullVersion() string {
	v := GetVersion()
	if CommitHash != "" {
		v += "+" + CommitHash
	}
	return v
}

// Get returns the build information.
func Get() Info {
	return Info{
		Version:    GetVersion(),
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	s := fmt.Sprintf("%s %s", Product, i.Version)
	if i.CommitHash != "" {
		s += " (" + i.CommitHash + ")"
	}
	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return s + " " + i.GoVersion + " " + i.Platform
}

// UserAgent is the value sent in USER-AGENT headers: "OS/version UPnP/1.1 product/version".
func UserAgent() string {
	return fmt.Sprintf("%s/1.0 UPnP/1.1 %s/%s", runtime.GOOS, Product, GetVersion())
}
