package project

import (
	"fmt"
	"testing"
)

// TestVersionFormat tests that Version is formatted as expected given
// VersionMajor, VersionMinor, VersionPatch and VersionTag.
func TestVersionFormat(t *testing.T) {
	var expected string
	if VersionTag != "" {
		expected = fmt.Sprintf("%d.%d.%d-%s", VersionMajor, VersionMinor, VersionPatch, VersionTag)
	} else {
		expected = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
	}
	if Version != expected {
		t.Error("version string mismatch:", Version, "!=", expected)
	}
}
