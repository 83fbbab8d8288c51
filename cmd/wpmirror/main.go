// wpmirror keeps a local mirror of a WordPress posts or photos collection and
// drives post creation against the live site.
//
// Usage:
//
//	wpmirror setup                       # interactive first-run wizard
//	wpmirror sync [--force]              # bring the cache up to date
//	wpmirror status                      # cache metadata and recent runs
//	wpmirror taxonomy count --taxonomy tag
//	wpmirror post create --title ... --tags "A,B" --publish
//	wpmirror post poll <slug>            # wait until a post is live
//	wpmirror media upload <file>
//	wpmirror config set concurrency 8
//	wpmirror version
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("fatal error", "error", err)
		}
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	root, app := newRootCommand()
	defer app.shutdown()
	return root.ExecuteContext(ctx)
}
