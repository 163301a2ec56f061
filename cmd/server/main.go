package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "coachd",
		Short:         "Back office for postpartum coaching: intake forms, courses and memberships",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, serveOptions{})
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./coachd.yaml when present)")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newMigrateCommand(&configPath))
	root.AddCommand(newExportCommand(&configPath))
	root.AddCommand(newAuditCommand(&configPath))
	root.AddCommand(newMembersCommand(&configPath))
	root.AddCommand(newTokenCommand(&configPath))
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "coachd:", err)
		os.Exit(1)
	}
}
