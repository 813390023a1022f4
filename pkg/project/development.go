package project

import (
	"os"
)

// DevelopmentModeEnabled controls whether or not development mode is
// enabled. It is set automatically based on the WATCHMAN_DEVELOPMENT
// environment variable.
var DevelopmentModeEnabled bool

func init() {
	DevelopmentModeEnabled = os.Getenv("WATCHMAN_DEVELOPMENT") == "1"
}
