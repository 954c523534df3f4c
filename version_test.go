package cachecoordinator

import (
	"strings"
	"testing"
)

func TestGetVersionInfo(t *testing.T) {
	versionInfo := GetVersionInfo()

	if versionInfo.Version != Version {
		t.Errorf("Expected version %s, got %s", Version, versionInfo.Version)
	}

	if !strings.HasPrefix(versionInfo.GoVersion, "go") && !strings.HasPrefix(versionInfo.GoVersion, "devel") {
		t.Errorf("Unexpected GoVersion %s", versionInfo.GoVersion)
	}
}

func TestVersionConstant(t *testing.T) {
	if Version == "" {
		t.Error("Version constant should not be empty")
	}

	// Version should follow semantic versioning format (basic check)
	if !strings.HasPrefix(Version, "v") || strings.Count(Version, ".") != 2 {
		t.Errorf("Version %s should look like 'v1.0.0'", Version)
	}
}
