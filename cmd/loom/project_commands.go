package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/project"
)

func newProjectCommand(app *appContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Manage loom projects",
	}

	initCmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Create a new project directory with default settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := app.projectDir(args[0])
			if err != nil {
				return err
			}
			proj, err := project.Init(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized project %s at %s\n", args[0], proj.Dir)
			return nil
		},
	}

	projectCmd.AddCommand(initCmd)
	return projectCmd
}
