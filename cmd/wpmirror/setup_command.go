package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/njoerd114/wpmirror/internal/setup"
)

func newSetupCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:         "setup",
		Short:       "Interactive setup wizard",
		Annotations: noConfig,
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := app.resolvedConfigPath()
			if err != nil {
				return err
			}
			return setup.NewWizard(os.Stdin, cmd.OutOrStdout(), path, app.logger).Run(cmd.Context())
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Annotations: noConfig,
		Args:        cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "wpmirror", version)
		},
	}
}
