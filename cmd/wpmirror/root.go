package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() (*cobra.Command, *appContext) {
	app := &appContext{}

	root := &cobra.Command{
		Use:           "wpmirror",
		Short:         "Mirror a WordPress collection locally and manage posts against it",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app.setupLogger(cmd.ErrOrStderr())
			if skipConfig(cmd) {
				return nil
			}
			return app.loadConfig(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&app.configPath, "config", "c", "", "path to config.yaml (default ~/.config/wpmirror/config.yaml)")
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&app.collectionFlag, "collection", "", "override the configured collection (posts or photos)")

	root.AddCommand(
		newSyncCommand(app),
		newStatusCommand(app),
		newTaxonomyCommand(app),
		newPostCommand(app),
		newMediaCommand(app),
		newConfigCommand(app),
		newSetupCommand(app),
		newVersionCommand(),
	)
	return root, app
}

// skipConfig reports whether cmd or a parent is annotated to run without a
// loaded config.
func skipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfig"] == "true" {
			return true
		}
	}
	return false
}

var noConfig = map[string]string{"skipConfig": "true"}
