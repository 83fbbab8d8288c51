package main

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/taxonomy"
)

// taxonomyFlags are shared by every taxonomy subcommand.
type taxonomyFlags struct {
	name   string
	asJSON bool
}

func (f *taxonomyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "taxonomy", "t", "tag", "taxonomy to inspect (tag, category, model, photo-tag)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "write JSON instead of a table")
}

func (f *taxonomyFlags) taxonomy() (model.Taxonomy, error) {
	return model.ParseTaxonomy(f.name)
}

func newTaxonomyCommand(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "taxonomy",
		Aliases: []string{"tax"},
		Short:   "Query taxonomy labels in the local cache",
		Long: `Taxonomy queries read the cache only; run 'wpmirror sync' first to
bring it up to date.`,
	}
	cmd.AddCommand(
		newTaxonomyCountCommand(app),
		newTaxonomyMapCommand(app),
		newTaxonomyGroupCommand(app),
		newTaxonomyMissingCommand(app),
		newTaxonomyCoOccurCommand(app),
	)
	return cmd
}

// indexer loads the cache offline and indexes it.
func (a *appContext) indexer(cmd *cobra.Command) (*taxonomy.Indexer, error) {
	svc, err := a.open(cmd.Context(), openOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = svc.Close() }()
	if err := svc.loadCache(cmd.Context()); err != nil {
		return nil, err
	}
	return taxonomy.New(svc.engine.Items(), a.cfg.SiteURL), nil
}

func newTaxonomyCountCommand(app *appContext) *cobra.Command {
	var flags taxonomyFlags
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count the items carrying each label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := flags.taxonomy()
			if err != nil {
				return err
			}
			idx, err := app.indexer(cmd)
			if err != nil {
				return err
			}
			counts := idx.CountMarker(t)
			if flags.asJSON {
				return writeJSON(cmd, counts)
			}

			labels := slices.SortedFunc(maps.Keys(counts), func(a, b string) int {
				return cmp.Or(cmp.Compare(counts[b], counts[a]), cmp.Compare(a, b))
			})
			rows := make([][]string, 0, len(labels))
			for _, l := range labels {
				rows = append(rows, []string{l, strconv.Itoa(counts[l])})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Label", "Items"}, rows, 1))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newTaxonomyMapCommand(app *appContext) *cobra.Command {
	var flags taxonomyFlags
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Show the term id behind each label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := flags.taxonomy()
			if err != nil {
				return err
			}
			idx, err := app.indexer(cmd)
			if err != nil {
				return err
			}
			ids := idx.MapMarkerToID(t)
			if flags.asJSON {
				return writeJSON(cmd, ids)
			}

			rows := make([][]string, 0, len(ids))
			for _, l := range slices.Sorted(maps.Keys(ids)) {
				rows = append(rows, []string{l, strconv.Itoa(ids[l])})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Label", "Term ID"}, rows, 1))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newTaxonomyGroupCommand(app *appContext) *cobra.Command {
	var (
		flags  taxonomyFlags
		byPost bool
	)
	cmd := &cobra.Command{
		Use:   "group",
		Short: "List the items under each label, or the labels of each item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := flags.taxonomy()
			if err != nil {
				return err
			}
			idx, err := app.indexer(cmd)
			if err != nil {
				return err
			}

			if byPost {
				groups := idx.GroupLabelsByPost(t)
				if flags.asJSON {
					return writeJSON(cmd, groups)
				}
				slugs := idx.PostSlugs(false)
				rows := make([][]string, 0, len(groups))
				for _, id := range slices.Sorted(maps.Keys(groups)) {
					rows = append(rows, []string{strconv.Itoa(id), slugs[id], strings.Join(groups[id], ", ")})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Slug", "Labels"}, rows, 0))
				return nil
			}

			groups := idx.GroupPostsByLabel(t)
			if flags.asJSON {
				return writeJSON(cmd, groups)
			}
			rows := make([][]string, 0, len(groups))
			for _, l := range slices.Sorted(maps.Keys(groups)) {
				ids := make([]string, len(groups[l]))
				for i, id := range groups[l] {
					ids[i] = strconv.Itoa(id)
				}
				rows = append(rows, []string{l, strings.Join(ids, ", ")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Label", "Item IDs"}, rows))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&byPost, "by-post", false, "group labels by item instead of items by label")
	return cmd
}

func newTaxonomyMissingCommand(app *appContext) *cobra.Command {
	var (
		flags           taxonomyFlags
		caseInsensitive bool
	)
	cmd := &cobra.Command{
		Use:   "missing <label>...",
		Short: "Report which labels have no known term id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := flags.taxonomy()
			if err != nil {
				return err
			}
			idx, err := app.indexer(cmd)
			if err != nil {
				return err
			}
			known := idx.MapMarkerToID(t)
			resolved := taxonomy.Lookup(known, args, caseInsensitive)
			missing := taxonomy.IdentifyMissing(known, args, resolved, caseInsensitive)
			if flags.asJSON {
				return writeJSON(cmd, map[string]any{"resolved": resolved, "missing": missing})
			}

			out := cmd.OutOrStdout()
			if len(missing) == 0 {
				fmt.Fprintf(out, "All %d label(s) known: %v\n", len(args), resolved)
				return nil
			}
			for _, l := range missing {
				fmt.Fprintln(out, l)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&caseInsensitive, "ignore-case", "i", false, "match labels case-insensitively")
	return cmd
}

func newTaxonomyCoOccurCommand(app *appContext) *cobra.Command {
	var (
		flags   taxonomyFlags
		compare string
	)
	cmd := &cobra.Command{
		Use:   "cooccur",
		Short: "For each label of --compare, list the --taxonomy labels seen with it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			match, err := flags.taxonomy()
			if err != nil {
				return err
			}
			cmpTax, err := model.ParseTaxonomy(compare)
			if err != nil {
				return err
			}
			idx, err := app.indexer(cmd)
			if err != nil {
				return err
			}
			pairs := idx.CoOccurrence(match, cmpTax)
			if flags.asJSON {
				return writeJSON(cmd, pairs)
			}
			rows := make([][]string, 0, len(pairs))
			for _, l := range slices.Sorted(maps.Keys(pairs)) {
				rows = append(rows, []string{l, strings.Join(pairs[l], ", ")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{cmpTax.String(), match.String()}, rows))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&compare, "compare", "model", "taxonomy whose labels form the rows")
	return cmd
}
