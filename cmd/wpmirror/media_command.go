package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/njoerd114/wpmirror/internal/model"
)

func newMediaCommand(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Manage the media library",
	}
	cmd.AddCommand(newMediaUploadCommand(app))
	return cmd
}

func newMediaUploadCommand(app *appContext) *cobra.Command {
	var (
		attrs  model.MediaAttributes
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload files and attach alt text, caption and description",
		Long: `Each file is uploaded on its own. A file the server does not accept is
reported and skipped; the remaining files are still uploaded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := app.open(ctx, openOptions{remote: true})
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			results := make([]mediaUpload, 0, len(args))
			var skipped int
			for _, path := range args {
				res, err := svc.client.UploadMedia(ctx, path, attrs)
				if err != nil {
					return err
				}
				if !res.Uploaded() {
					skipped++
				}
				results = append(results, mediaUpload{
					File:      path,
					Status:    res.Status,
					MediaID:   res.MediaID,
					SourceURL: res.SourceURL,
					Attached:  res.Attached,
				})
			}

			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					id := "skipped"
					if r.MediaID != 0 {
						id = fmt.Sprint(r.MediaID)
					}
					rows = append(rows, []string{r.File, fmt.Sprint(r.Status), id, r.SourceURL})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"File", "Status", "Media ID", "URL"}, rows, 1, 2))
			}
			if skipped > 0 {
				return fmt.Errorf("%d of %d file(s) not uploaded", skipped, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&attrs.AltText, "alt", "", "alt text")
	cmd.Flags().StringVar(&attrs.Caption, "caption", "", "caption")
	cmd.Flags().StringVar(&attrs.Description, "description", "", "description")
	cmd.Flags().BoolVar(&asJSON, "json", false, "write JSON instead of a table")
	return cmd
}

type mediaUpload struct {
	File      string `json:"file"`
	Status    int    `json:"status"`
	MediaID   int    `json:"media_id,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Attached  bool   `json:"attached"`
}
