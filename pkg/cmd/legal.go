package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Server-perf/watchman/pkg/project"
)

var legalCommand = &cobra.Command{
	Use:   "legal",
	Short: "Show legal information",
	Run: func(command *cobra.Command, arguments []string) {
		fmt.Println(project.LegalNotice)
	},
}
