package main

import (
	"os"

	rootcmd "github.com/Server-perf/watchman/cmd"
	"github.com/Server-perf/watchman/pkg/cmd"
)

func main() {
	rootcmd.HandleTerminalCompatibility()

	if err := cmd.NewWatchmanCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
