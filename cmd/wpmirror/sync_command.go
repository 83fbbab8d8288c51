package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCommand(app *appContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring the local cache up to date with the site",
		Long: `Builds the cache from scratch when there is none (or with --force),
otherwise fetches only the pages that can hold new items. An incremental
merge that does not add up is replaced by one full rebuild.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := app.open(ctx, openOptions{remote: true, lock: true})
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			res, err := svc.engine.Sync(ctx, force)
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			svc.log.Info("sync complete",
				"mode", res.Mode,
				"added", res.Added,
				"pages", res.Pages,
				"total", res.Total,
				"persisted", res.Persisted,
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d item(s), %d added (%s)\n",
				app.collection, len(svc.engine.Items()), res.Added, res.Mode)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rebuild the cache from scratch")
	return cmd
}
