package cmd

import (
	"os"
	"os/signal"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Server-perf/watchman/cmd"
	"github.com/Server-perf/watchman/pkg/logging"
	"github.com/Server-perf/watchman/pkg/root"
)

var watchCommand = &cobra.Command{
	Use:   "watch <path>",
	Short: "Watch a filesystem tree until interrupted",
	Args:  cobra.ExactArgs(1),
	Run: func(command *cobra.Command, arguments []string) {
		runWatch(arguments[0])
	},
}

func runWatch(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		cmd.Fatal(errors.Wrap(err, "unable to resolve path"))
	}

	r := root.New(absPath, logging.RootLogger.Sublogger("watch"))
	if err := r.Start(); err != nil {
		cmd.Fatal(errors.Wrap(err, "unable to start watch"))
	}
	defer r.Stop()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, cmd.TerminationSignals...)
	<-signals
}
