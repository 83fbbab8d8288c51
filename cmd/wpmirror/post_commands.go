package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/njoerd114/wpmirror/internal/lifecycle"
	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/taxonomy"
)

func newPostCommand(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create, publish, delete and track posts",
	}
	cmd.AddCommand(
		newPostCreateCommand(app),
		newPostPublishCommand(app),
		newPostDeleteCommand(app),
		newPostPollCommand(app),
	)
	return cmd
}

type createFlags struct {
	title, slug, content, excerpt string
	tags, models, categories      []string
	photoTags                     []string
	ignoreCase                    bool
	featuredImage                 string
	media                         model.MediaAttributes
	publish                       bool
	wait                          bool
}

// termRequests pairs each taxonomy with the labels requested for it.
func (f *createFlags) termRequests() map[model.Taxonomy][]string {
	out := make(map[model.Taxonomy][]string)
	for t, labels := range map[model.Taxonomy][]string{
		model.TaxonomyTag:      f.tags,
		model.TaxonomyModel:    f.models,
		model.TaxonomyCategory: f.categories,
		model.TaxonomyPhotoTag: f.photoTags,
	} {
		if len(labels) > 0 {
			out[t] = labels
		}
	}
	return out
}

func newPostCreateCommand(app *appContext) *cobra.Command {
	var f createFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft, creating any missing taxonomy terms first",
		Long: `Create syncs the cache, maps the requested labels to term ids and
creates the terms the site does not have yet. With --featured-image the
image is uploaded and attached after the post exists; if that cannot be
done the post is deleted again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			svc, err := app.open(ctx, openOptions{remote: true, lock: true})
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if _, err := svc.engine.Sync(ctx, false); err != nil {
				return fmt.Errorf("sync before create: %w", err)
			}
			idx := taxonomy.New(svc.engine.Items(), app.cfg.SiteURL)
			if f.slug != "" && idx.HasSlug(f.slug) {
				return fmt.Errorf("slug %q is already in use", f.slug)
			}

			payload := model.PostPayload{
				Slug:    f.slug,
				Status:  "draft",
				Title:   f.title,
				Excerpt: f.excerpt,
				Content: f.content,
			}
			resolveTerms(ctx, out, svc.log, idx, f.termRequests(), svc.client, f.ignoreCase, &payload)

			h, err := svc.manager.Create(ctx, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Created post #%d %s\n", h.ID, h.Slug)

			if f.featuredImage != "" {
				err := svc.manager.RunDependent(ctx, h, 0, func(ctx context.Context, h model.PostHandle) error {
					return attachFeaturedImage(ctx, svc, app.collection, h.ID, f.featuredImage, f.media)
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Attached %s\n", f.featuredImage)
			}

			if !f.publish {
				return nil
			}
			if err := svc.manager.Publish(ctx, h.ID); err != nil {
				return err
			}
			fmt.Fprintf(out, "Published post #%d\n", h.ID)
			if f.wait {
				return waitPublished(ctx, cmd, svc, h.Slug, app.cfg.PollBackoff, 0)
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.title, "title", "", "post title")
	fl.StringVar(&f.slug, "slug", "", "post slug (default derived by WordPress)")
	fl.StringVar(&f.content, "content", "", "post content (HTML)")
	fl.StringVar(&f.excerpt, "excerpt", "", "post excerpt")
	fl.StringSliceVar(&f.tags, "tags", nil, "tag labels, comma separated")
	fl.StringSliceVar(&f.models, "models", nil, "model labels, comma separated")
	fl.StringSliceVar(&f.categories, "categories", nil, "category labels, comma separated")
	fl.StringSliceVar(&f.photoTags, "photo-tags", nil, "photo tag labels, comma separated")
	fl.BoolVarP(&f.ignoreCase, "ignore-case", "i", false, "match labels case-insensitively")
	fl.StringVar(&f.featuredImage, "featured-image", "", "image file to upload and set as featured media")
	fl.StringVar(&f.media.AltText, "alt", "", "alt text for the featured image")
	fl.StringVar(&f.media.Caption, "caption", "", "caption for the featured image")
	fl.BoolVar(&f.publish, "publish", false, "publish the post once created")
	fl.BoolVar(&f.wait, "wait", false, "with --publish, poll until the post shows up in the cache")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

// resolveTerms maps the requested labels of every taxonomy to ids on
// payload, creating missing terms. A term that cannot be created is logged
// and left off the post; it does not stop the create.
func resolveTerms(ctx context.Context, out io.Writer, log *slog.Logger, idx *taxonomy.Indexer,
	requests map[model.Taxonomy][]string, creator taxonomy.TermCreator, ignoreCase bool, payload *model.PostPayload,
) {
	for t, labels := range requests {
		res, err := taxonomy.Resolve(ctx, t, idx.MapMarkerToID(t), labels, creator, ignoreCase)
		if err != nil {
			log.Warn("some terms could not be created, continuing without them",
				"taxonomy", t, "failed", res.Failed, "error", err)
		}
		for name, id := range res.Created {
			fmt.Fprintf(out, "Created %s %q (id %d)\n", t, name, id)
		}
		payload.SetTermIDs(t, res.IDs)
	}
}

// attachFeaturedImage uploads path and points the post's featured_media at
// it. An upload the server did not accept is an error so the step retries.
func attachFeaturedImage(ctx context.Context, svc *services, collection model.Collection, postID int, path string, attrs model.MediaAttributes) error {
	res, err := svc.client.UploadMedia(ctx, path, attrs)
	if err != nil {
		return err
	}
	if !res.Uploaded() {
		return fmt.Errorf("uploading %s: status %d", path, res.Status)
	}
	return svc.client.UpdatePost(ctx, collection, postID, map[string]any{"featured_media": res.MediaID})
}

func newPostPublishCommand(app *appContext) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "publish [id]",
		Short: "Publish a post (default: the last one created)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := app.open(ctx, openOptions{remote: true, lock: wait})
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			id, slug, err := postTarget(ctx, svc, app, args)
			if err != nil {
				return err
			}
			if err := svc.manager.Publish(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published post #%d\n", id)
			if !wait {
				return nil
			}
			if slug == "" {
				return errors.New("--wait needs the slug; use 'wpmirror post poll <slug>'")
			}
			return waitPublished(ctx, cmd, svc, slug, app.cfg.PollBackoff, 0)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the post shows up in the cache")
	return cmd
}

func newPostDeleteCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a post (default: the last one created)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := app.open(ctx, openOptions{remote: true})
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			id, _, err := postTarget(ctx, svc, app, args)
			if err != nil {
				return err
			}
			if err := svc.manager.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted post #%d\n", id)
			return nil
		},
	}
}

func newPostPollCommand(app *appContext) *cobra.Command {
	var (
		backoff int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "poll [slug]",
		Short: "Sync until a slug appears in the cache and print its link",
		Long: `Poll re-syncs the cache until an item with the slug shows up, waiting
a shrinking number of poll units between rounds. Without a slug the last
post created through wpmirror is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := app.open(ctx, openOptions{remote: true, lock: true})
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			var slug string
			if len(args) == 1 {
				slug = args[0]
			} else {
				h, err := svc.ledger.LatestHandle(ctx, string(app.collection))
				if err != nil {
					return err
				}
				if h == nil {
					return errors.New("no slug given and no post created yet")
				}
				slug = h.Slug
			}
			if backoff <= 0 {
				backoff = app.cfg.PollBackoff
			}
			return waitPublished(ctx, cmd, svc, slug, backoff, timeout)
		},
	}
	cmd.Flags().IntVar(&backoff, "backoff", 0, "initial wait in poll units (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits until interrupted)")
	return cmd
}

func waitPublished(ctx context.Context, cmd *cobra.Command, svc *services, slug string, backoff int, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	link, err := svc.manager.PollUntilPublished(ctx, slug, backoff)
	if errors.Is(err, lifecycle.ErrPollTimeout) {
		return fmt.Errorf("%q not live after %s: %w", slug, timeout, err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), link)
	return nil
}

// postTarget resolves the post id from args, falling back to the last post
// created through wpmirror.
func postTarget(ctx context.Context, svc *services, app *appContext, args []string) (int, string, error) {
	if len(args) == 1 {
		id, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
		if err != nil || id <= 0 {
			return 0, "", fmt.Errorf("invalid post id %q", args[0])
		}
		return id, "", nil
	}
	h, err := svc.ledger.LatestHandle(ctx, string(app.collection))
	if err != nil {
		return 0, "", err
	}
	if h == nil {
		return 0, "", errors.New("no post id given and no post created yet")
	}
	return h.PostID, h.Slug, nil
}
