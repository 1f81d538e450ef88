package version

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuild(t *testing.T, version, commit, buildTime string) {
	t.Helper()
	origVersion, origCommit, origBuildTime := Version, CommitHash, BuildTime
	Version, CommitHash, BuildTime = version, commit, buildTime
	t.Cleanup(func() {
		Version, CommitHash, BuildTime = origVersion, origCommit, origBuildTime
	})
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	origDir, err := os.Getwd()
	require.NoError(t, err)
	tmpDir := t.TempDir()
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return tmpDir
}

// TestGetVersion_DefaultsToDev tests the fallback without ldflags or VERSION file
func TestGetVersion_DefaultsToDev(t *testing.T) {
	withBuild(t, "", "", "")
	chdirTemp(t)
	assert.Equal(t, "dev", GetVersion())
}

// TestGetVersion_UsesBuildTimeVersion tests the ldflags value
func TestGetVersion_UsesBuildTimeVersion(t *testing.T) {
	withBuild(t, "v1.2.3", "", "")
	assert.Equal(t, "v1.2.3", GetVersion())
}

// TestGetVersion_ReadsVersionFile tests the VERSION file fallback
func TestGetVersion_ReadsVersionFile(t *testing.T) {
	withBuild(t, "", "", "")
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VERSION"), []byte("v2.0.0\n"), 0644))
	assert.Equal(t, "v2.0.0", GetVersion())
}

// TestGetFullVersion tests the commit suffix
func TestGetFullVersion(t *testing.T) {
	withBuild(t, "v1.0.0", "abc1234", "")
	assert.Equal(t, "v1.0.0+abc1234", GetFullVersion())

	CommitHash = ""
	assert.Equal(t, "v1.0.0", GetFullVersion())
}

// TestGet tests the build information and its rendering
func TestGet(t *testing.T) {
	withBuild(t, "v3.0.0", "def5678", "2024-01-01T00:00:00Z")

	info := Get()
	assert.Equal(t, "v3.0.0", info.Version)
	assert.Equal(t, "def5678", info.CommitHash)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Contains(t, info.String(), "upnpctl v3.0.0 (def5678) built 2024-01-01T00:00:00Z")
}

// TestUserAgent tests the announced product token
func TestUserAgent(t *testing.T) {
	withBuild(t, "v0.1.0", "", "")
	assert.Equal(t, runtime.GOOS+"/1.0 UPnP/1.1 upnpctl/v0.1.0", UserAgent())
}
