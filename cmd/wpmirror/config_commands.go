package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/njoerd114/wpmirror/internal/config"
)

func newConfigCommand(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Configuration utilities",
		Annotations: noConfig,
	}
	cmd.AddCommand(
		newConfigSetCommand(app),
		newConfigPathCommand(app),
		newConfigValidateCommand(app),
	)
	return cmd
}

func newConfigSetCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <[section.]option> <value>",
		Short: "Set one option in config.yaml, keeping comments",
		Example: `  wpmirror config set site_url https://example.com
  wpmirror config set redis.url redis://localhost:6379/0`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.resolvedConfigPath()
			if err != nil {
				return err
			}
			section, option, ok := strings.Cut(args[0], ".")
			if !ok {
				section, option = "", args[0]
			}
			if err := config.SetOption(path, section, option, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], path)
			return nil
		},
	}
}

func newConfigPathCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := app.resolvedConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigValidateCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load config.yaml and report problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := app.resolvedConfigPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK: %s\n", path)
			fmt.Fprintf(out, "  site %s, collection %s, backend %s\n", cfg.SiteURL, cfg.Collection, cfg.CacheBackend)
			if _, err := cfg.CredentialProvider().Credentials(); err != nil {
				fmt.Fprintf(out, "  warning: %v\n", err)
			}
			return nil
		},
	}
}
