package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Server-perf/watchman/pkg/project"
)

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(command *cobra.Command, arguments []string) {
		fmt.Println(project.Version)
	},
}
