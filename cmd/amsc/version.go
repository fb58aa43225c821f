package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/amsc/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		common.LoadVersionFromFile()
		fmt.Fprintf(cmd.OutOrStdout(), "amsc version %s\n", common.GetFullVersion())
	},
}
