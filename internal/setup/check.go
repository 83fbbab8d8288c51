package setup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/wordpress"
)

// SiteInfo is what a successful connectivity check learns about a site.
type SiteInfo struct {
	APIBase    string
	Total      int
	TotalPages int
}

// SiteChecker verifies that the credentials can read the collection.
type SiteChecker func(ctx context.Context, site, username, password string, collection model.Collection) (SiteInfo, error)

// CheckSite fetches the first page of collection. Missing pagination headers
// come back as [wordpress.ErrAuth], which almost always means a wrong
// application password.
func CheckSite(ctx context.Context, site, username, password string, collection model.Collection) (SiteInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := wordpress.NewClient(wordpress.Config{
		SiteURL:  site,
		Username: username,
		Password: password,
	}, slog.New(slog.DiscardHandler))

	page, err := client.FetchFirstPage(ctx, collection)
	if err != nil {
		return SiteInfo{}, fmt.Errorf("reading %s from %s: %w", collection, client.APIBase(), err)
	}
	return SiteInfo{APIBase: client.APIBase(), Total: page.Total, TotalPages: page.TotalPages}, nil
}
