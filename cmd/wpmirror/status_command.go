package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/njoerd114/wpmirror/internal/cache"
	"github.com/njoerd114/wpmirror/internal/config"
)

func newStatusCommand(app *appContext) *cobra.Command {
	var runs int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache metadata, recent sync runs and the last created post",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			svc, err := app.open(ctx, openOptions{})
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			cfg := app.cfg
			fmt.Fprintf(out, "Site:        %s\n", cfg.SiteURL)
			fmt.Fprintf(out, "Collection:  %s\n", app.collection)
			if cfg.CacheBackend == config.BackendRedis {
				fmt.Fprintf(out, "Cache:       redis %s\n", cfg.Redis.URL)
			} else {
				fmt.Fprintf(out, "Cache:       %s%s\n", cfg.CachePath, fileSize(cfg.CachePath))
			}

			switch err := svc.engine.Load(ctx); {
			case errors.Is(err, cache.ErrColdStart):
				fmt.Fprintf(out, "State:       cold (run 'wpmirror sync')\n")
			case err != nil:
				return err
			default:
				meta := svc.engine.Metadata()
				fmt.Fprintf(out, "State:       %s, %d item(s) over %d page(s), updated %s\n",
					svc.engine.State(), meta.TotalItems, meta.CachedPages, meta.LastUpdated)
			}

			if h, err := svc.ledger.LatestHandle(ctx, string(app.collection)); err != nil {
				return err
			} else if h != nil {
				fmt.Fprintf(out, "Last post:   #%d %s (%s)\n", h.PostID, h.Slug, h.Status)
			}
			if h, err := svc.ledger.LatestPublished(ctx, string(app.collection)); err != nil {
				return err
			} else if h != nil && h.Link != "" {
				fmt.Fprintf(out, "Last live:   %s\n", h.Link)
			}

			recent, err := svc.ledger.RecentSyncRuns(ctx, string(app.collection), runs)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(recent))
			for _, r := range recent {
				result := "ok"
				if r.Error != "" {
					result = truncate(r.Error, 48)
				} else if !r.Persisted {
					result = "unchanged"
				}
				rows = append(rows, []string{
					r.StartedAt.Local().Format(time.DateTime),
					r.Mode,
					strconv.Itoa(r.Added),
					strconv.Itoa(r.Items),
					strconv.Itoa(r.Pages),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
					result,
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "Mode", "Added", "Items", "Pages", "Took", "Result"},
				rows, 2, 3, 4, 5,
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&runs, "runs", 5, "number of recent sync runs to show")
	return cmd
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return " (missing)"
	}
	return " (" + humanSize(info.Size()) + ")"
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
