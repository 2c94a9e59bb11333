// Package refresh keeps the published ruleset up to date: it downloads the
// rules document, builds a new RuleSet, publishes it atomically, and persists
// the document so restarts do not wait on the network.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linkscrub/linkscrub/cache"
	"github.com/linkscrub/linkscrub/logger"
	"github.com/linkscrub/linkscrub/ratelimit"
	"github.com/linkscrub/linkscrub/retry"
	"github.com/linkscrub/linkscrub/ruleset"
)

// ErrThrottled indicates an on-demand refresh was requested too soon after
// the previous one.
var ErrThrottled = errors.New("refresh throttled")

// Options configures a Refresher.
type Options struct {
	// SourceURL is the rules document location.
	SourceURL string
	// Interval between background refreshes.
	Interval time.Duration
	// Retrier downloads the document.
	Retrier *retry.Retrier
	// Store receives each successfully built RuleSet.
	Store *ruleset.Store
	// Snapshots persists the raw document; defaults to an in-memory store.
	Snapshots cache.Store
	// Throttle limits on-demand refreshes; nil means unlimited.
	Throttle *ratelimit.Throttle
	// Logger defaults to a noop logger.
	Logger logger.Logger
}

// Refresher fetches, builds, and publishes rulesets.
type Refresher struct {
	retrier   *retry.Retrier
	store     *ruleset.Store
	snapshots cache.Store
	throttle  *ratelimit.Throttle
	log       logger.Logger
	interval  time.Duration

	mu        sync.Mutex
	sourceURL string
}

// New creates a Refresher from the given options.
func New(opts Options) *Refresher {
	log := opts.Logger
	if log == nil {
		log = logger.Noop()
	}
	snapshots := opts.Snapshots
	if snapshots == nil {
		snapshots = cache.NewMemoryStore()
	}
	return &Refresher{
		retrier:   opts.Retrier,
		store:     opts.Store,
		snapshots: snapshots,
		throttle:  opts.Throttle,
		log:       log,
		interval:  opts.Interval,
		sourceURL: opts.SourceURL,
	}
}

// SourceURL returns the current rules document location.
func (r *Refresher) SourceURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sourceURL
}

// Refresh downloads the rules document, builds a RuleSet, and publishes it.
// An empty overrideURL refreshes from the configured source; a non-empty one
// is adopted as the new source after a successful refresh. On any failure the
// previously published RuleSet stays live.
func (r *Refresher) Refresh(ctx context.Context, overrideURL string) (*ruleset.RuleSet, error) {
	sourceURL := r.SourceURL()
	if overrideURL != "" {
		sourceURL = overrideURL
	}

	r.log.Debug("downloading rules document", "url", sourceURL)

	resp, err := r.retrier.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("fetch rules document: %w", err)
	}

	rs, err := r.buildAndPublish(resp.Body, sourceURL, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if overrideURL != "" {
		r.mu.Lock()
		r.sourceURL = overrideURL
		r.mu.Unlock()
	}

	snap := &cache.Snapshot{SourceURL: sourceURL, Body: resp.Body, FetchedAt: rs.FetchedAt}
	if err := r.snapshots.Set(ctx, snap); err != nil {
		r.log.Warn("failed to persist rules snapshot", "error", err)
	}

	r.log.Info("rules updated",
		"url", sourceURL,
		"providers", rs.Len(),
		"invalid_providers", len(rs.Diagnostics()))
	return rs, nil
}

// Trigger runs an on-demand refresh, subject to the throttle.
func (r *Refresher) Trigger(ctx context.Context, overrideURL string) (*ruleset.RuleSet, error) {
	if !r.throttle.Allow() {
		return nil, ErrThrottled
	}
	return r.Refresh(ctx, overrideURL)
}

// Bootstrap publishes the persisted snapshot if one exists, then falls back
// to a live refresh. A stale-but-valid snapshot counts as success so the
// service can start cleaning links while the network is unavailable.
func (r *Refresher) Bootstrap(ctx context.Context) error {
	snap, err := r.snapshots.Get(ctx)
	if err != nil {
		r.log.Warn("failed to load rules snapshot", "error", err)
	}
	if snap != nil {
		if rs, err := r.buildAndPublish(snap.Body, snap.SourceURL, snap.FetchedAt); err != nil {
			r.log.Warn("persisted rules snapshot is unusable", "error", err)
		} else {
			r.log.Info("rules restored from snapshot",
				"url", snap.SourceURL,
				"fetched_at", snap.FetchedAt,
				"providers", rs.Len())
			return nil
		}
	}

	_, err = r.Refresh(ctx, "")
	return err
}

// Run refreshes on the configured interval until the context ends.
func (r *Refresher) Run(ctx context.Context) {
	interval := r.interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx, ""); err != nil {
				r.log.Error("scheduled rules refresh failed", "error", err)
			}
		}
	}
}

func (r *Refresher) buildAndPublish(body []byte, sourceURL string, fetchedAt time.Time) (*ruleset.RuleSet, error) {
	doc, err := ruleset.ParseDocument(body)
	if err != nil {
		return nil, err
	}

	rs, err := ruleset.Build(doc, r.log)
	if err != nil {
		return nil, err
	}
	rs.SourceURL = sourceURL
	rs.FetchedAt = fetchedAt

	r.store.Publish(rs)
	return rs, nil
}
