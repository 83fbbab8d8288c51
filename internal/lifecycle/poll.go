package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/njoerd114/wpmirror/internal/state"
	"github.com/njoerd114/wpmirror/internal/taxonomy"
)

// DefaultPollBackoff is the initial number of backoff steps between polls.
const DefaultPollBackoff = 5

// ErrPollTimeout is returned when the context deadline passes before the
// post shows up in the cache.
var ErrPollTimeout = errors.New("post not published before deadline")

type pollStep int

const (
	stepSync pollStep = iota
	stepCheck
	stepWait
)

// PollUntilPublished syncs the cache until slug appears in it and returns the
// post's permalink.
//
// Between rounds it waits initialBackoff poll units, then one unit less each
// round down to zero, then starts over at initialBackoff. The loop ends only
// on a hit, a sync error or ctx. A hit is written to the ledger before
// returning and is available from LastPublished afterwards.
func (m *Manager) PollUntilPublished(ctx context.Context, slug string, initialBackoff int) (string, error) {
	if initialBackoff <= 0 {
		initialBackoff = DefaultPollBackoff
	}
	ctx, span := m.tracer.Start(ctx, "lifecycle.poll")
	defer span.End()
	span.SetAttributes(attribute.String("post.slug", slug))

	start := time.Now()
	backoff := initialBackoff
	rounds := 0
	step := stepSync

	for {
		switch step {
		case stepSync:
			if _, err := m.syncer.Sync(ctx, false); err != nil {
				if ctx.Err() != nil {
					return "", m.pollAborted(ctx, slug, rounds)
				}
				span.RecordError(err)
				return "", fmt.Errorf("polling for %q: %w", slug, err)
			}
			step = stepCheck

		case stepCheck:
			link, ok := taxonomy.New(m.syncer.Items(), "").LinkForSlug(slug)
			if ok {
				m.recordPublished(ctx, slug, link)
				m.log.Info("post is live",
					"slug", slug, "link", link,
					"rounds", rounds, "elapsed", time.Since(start).Round(time.Second))
				span.SetAttributes(attribute.Int("poll.rounds", rounds))
				return link, nil
			}
			step = stepWait

		case stepWait:
			m.log.Debug("post not live yet", "slug", slug, "wait", backoff)
			if err := m.sleep(ctx, time.Duration(backoff)*m.unit); err != nil {
				return "", m.pollAborted(ctx, slug, rounds)
			}
			if backoff > 0 {
				backoff--
			} else {
				backoff = initialBackoff
			}
			rounds++
			step = stepSync
		}
	}
}

func (m *Manager) pollAborted(ctx context.Context, slug string, rounds int) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %q after %d rounds", ErrPollTimeout, slug, rounds)
	}
	return fmt.Errorf("polling for %q: %w", slug, ctx.Err())
}

// recordPublished stores the detection in memory and in the ledger. The
// ledger write ignores ctx cancellation so the hit is never lost.
func (m *Manager) recordPublished(ctx context.Context, slug, link string) {
	m.mu.Lock()
	m.published = link
	m.mu.Unlock()

	if m.ledger == nil {
		return
	}
	err := m.ledger.MarkPublishedBySlug(context.WithoutCancel(ctx), string(m.collection), slug, link)
	switch {
	case errors.Is(err, state.ErrNotFound):
		m.log.Debug("published post not created by this tool", "slug", slug)
	case err != nil:
		m.log.Warn("recording published post", "slug", slug, "error", err)
	}
}

// LastPublished returns the link of the most recent post PollUntilPublished
// found.
func (m *Manager) LastPublished() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.published != ""
}
