package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ternarybob/amsc/internal/scenario"
	"github.com/ternarybob/amsc/internal/services/vocab"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab <microservice>",
	Short: "Resolve a microservice name to its group",
	Long: `Prints how a microservice name is normalized for the configured
dashboard version and which job group(s) it belongs to. Use
"name|group" to pick a group explicitly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := vocab.New(vocab.Version(config.Dashboard.Version), logger,
			vocab.WithStrictGroups(config.Vocabulary.StrictGroups),
			vocab.WithOverlayFile(config.Vocabulary.File),
		)
		if err != nil {
			return err
		}

		name, group, err := v.Resolve(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "version:      %s\n", v.Version())
		fmt.Fprintf(w, "microservice: %s\n", name)
		fmt.Fprintf(w, "group:        %s\n", group)
		if groups, err := v.Groups(name); err == nil && len(groups) > 1 {
			fmt.Fprintf(w, "all groups:   %s\n", strings.Join(groups, ", "))
		}
		return nil
	},
}

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the step actions scenarios can use",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range scenario.NewRunner(nil, logger).Actions() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}
