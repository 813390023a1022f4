package project

import (
	"os"
)

// DebugEnabled controls whether or not debug logging is enabled. It is set
// automatically based on the WATCHMAN_DEBUG environment variable.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("WATCHMAN_DEBUG") == "1"
}
