package wordpress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/njoerd114/wpmirror/internal/model"
)

const (
	headerTotal      = "X-WP-Total"
	headerTotalPages = "X-WP-TotalPages"

	codeInvalidPage = "rest_post_invalid_page_number"
)

// Page is one page of a collection plus the pagination headers that came
// with it.
type Page struct {
	Number     int
	Items      []model.CachedItem
	Total      int
	TotalPages int

	// HasPagination is false when the response lacked either header.
	HasPagination bool
}

// FetchPage GETs a single page. A 400 with code rest_post_invalid_page_number
// (WordPress's answer past the last page) maps to ErrNoMorePages; any other
// 400 is a *StatusError.
func (c *Client) FetchPage(ctx context.Context, collection model.Collection, page int) (Page, error) {
	path := fmt.Sprintf("/%s?page=%d", collection, page)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Page{}, err
	}

	status, header, body, err := c.do(req)
	if err != nil {
		return Page{}, err
	}

	switch {
	case status == http.StatusBadRequest && gjson.GetBytes(body, "code").String() == codeInvalidPage:
		return Page{}, fmt.Errorf("page %d: %w", page, ErrNoMorePages)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Page{}, statusError("fetch page", status, body, ErrAuth)
	case status < 200 || status >= 300:
		return Page{}, statusError("fetch page", status, body, nil)
	}

	var items []model.CachedItem
	if err := json.Unmarshal(body, &items); err != nil {
		return Page{}, &StatusError{Op: "fetch page", Status: status, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	p := Page{Number: page, Items: items}
	totalStr, pagesStr := header.Get(headerTotal), header.Get(headerTotalPages)
	if totalStr != "" && pagesStr != "" {
		if p.Total, err = strconv.Atoi(totalStr); err != nil {
			return Page{}, fmt.Errorf("parsing %s %q: %w", headerTotal, totalStr, err)
		}
		if p.TotalPages, err = strconv.Atoi(pagesStr); err != nil {
			return Page{}, fmt.Errorf("parsing %s %q: %w", headerTotalPages, pagesStr, err)
		}
		p.HasPagination = true
	}

	c.log.Debug("fetched page", "collection", collection, "page", page, "items", len(items))
	return p, nil
}

// FetchFirstPage fetches page 1 and requires the pagination headers.
func (c *Client) FetchFirstPage(ctx context.Context, collection model.Collection) (Page, error) {
	first, err := c.FetchPage(ctx, collection, 1)
	if err != nil {
		return Page{}, err
	}
	if !first.HasPagination {
		return Page{}, fmt.Errorf("fetching %s: %w", collection, ErrAuth)
	}
	return first, nil
}

// FetchAll walks pages 1..TotalPages. Page 1 is fetched alone for its
// headers; the rest run on a pool of at most Concurrency requests. Each
// worker returns its page into its own slot and the slots are concatenated
// after Wait, so the result is in page order whatever the completion order.
// An item repeated across a page boundary is kept once (first seen wins).
//
// The returned Page is page 1 and carries Total and TotalPages.
func (c *Client) FetchAll(ctx context.Context, collection model.Collection) ([]model.CachedItem, Page, error) {
	first, err := c.FetchFirstPage(ctx, collection)
	if err != nil {
		return nil, Page{}, err
	}

	pages := max(first.TotalPages, 1)
	slots := make([][]model.CachedItem, pages)
	slots[0] = first.Items

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for n := 2; n <= pages; n++ {
		g.Go(func() error {
			p, err := c.FetchPage(gctx, collection, n)
			if errors.Is(err, ErrNoMorePages) {
				// The collection shrank since page 1 was read.
				return nil
			}
			if err != nil {
				return err
			}
			slots[n-1] = p.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Page{}, fmt.Errorf("fetching %s: %w", collection, err)
	}

	items := make([]model.CachedItem, 0, first.Total)
	seen := make(map[int]bool, first.Total)
	for _, slot := range slots {
		for _, it := range slot {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			items = append(items, it)
		}
	}

	c.log.Info("fetched collection", "collection", collection, "pages", pages, "items", len(items), "total", first.Total)
	return items, first, nil
}
