//go:build windows

package must

import (
	"golang.org/x/sys/windows"

	"github.com/Server-perf/watchman/pkg/logging"
)

func CloseWindowsHandle(wh windows.Handle, logger *logging.Logger) {
	err := windows.CloseHandle(wh)
	if err != nil {
		logger.Warnf("Unable to close handle %d: %s", wh, err.Error())
	}
}
