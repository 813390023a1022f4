package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Server-perf/watchman/cmd"
	"github.com/Server-perf/watchman/pkg/configuration"
	"github.com/Server-perf/watchman/pkg/watch"
)

func rootMain(command *cobra.Command, arguments []string) error {
	// If no commands were given, then print help information and bail. We
	// don't have to worry about warning about arguments being present here
	// (which would be incorrect usage) because arguments can't even reach
	// this point (they will be mistaken for subcommands and an error will be
	// displayed).
	command.Help()

	// Success.
	return nil
}

// loadWatcherTuning loads the watcher's configuration values and applies
// them before any command constructs a Backend. Errors loading
// configuration are non-fatal: the watcher falls back to its defaults.
func loadWatcherTuning() {
	configPath, err := configuration.ConfigurationPath()
	if err != nil {
		return
	}
	envPath, err := configuration.EnvironmentPath()
	if err != nil {
		return
	}
	cfg, err := configuration.Load(configPath, envPath)
	if err != nil {
		if !cmd.PerformingShellCompletion {
			cmd.Warning("unable to load configuration, using defaults: " + err.Error())
		}
		return
	}
	watch.Configure(cfg.HintNumDirs, cfg.BatchLimit)
}

// NewWatchmanCommand creates the root command for the CLI.
func NewWatchmanCommand() *cobra.Command {
	var rootCommand = &cobra.Command{
		Use:   "watchman",
		Short: "Watchman watches filesystem trees and answers queries about what changed.",
		Run:   cmd.Mainify(rootMain),
		PersistentPreRun: func(*cobra.Command, []string) {
			loadWatcherTuning()
		},
	}

	var rootConfiguration struct {
		// help indicates whether or not help information should be shown for
		// the command.
		help bool
	}

	// Grab a handle for the command line flags.
	flags := rootCommand.Flags()

	// Manually add a help flag to override the default message. Cobra will
	// still implement its logic automatically.
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")

	// Disable Cobra's command sorting behavior. By default, it sorts
	// commands alphabetically in the help output.
	cobra.EnableCommandSorting = false

	// Disable Cobra's use of mousetrap. This breaks daemon registration on
	// Windows because it tries to enforce that the CLI only be launched from
	// a console, which it's not when running automatically.
	cobra.MousetrapHelpText = ""

	// Register commands. We do this here (rather than in individual init
	// functions) so that we can control the order.
	rootCommand.AddCommand(
		watchCommand,
		queryCommand,
		versionCommand,
		legalCommand,
	)

	return rootCommand
}
