package refresh

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkscrub/linkscrub/cache"
	"github.com/linkscrub/linkscrub/config"
	"github.com/linkscrub/linkscrub/fetcher"
	"github.com/linkscrub/linkscrub/ratelimit"
	"github.com/linkscrub/linkscrub/retry"
	"github.com/linkscrub/linkscrub/ruleset"
)

const testDocument = `{"providers": {
	"example": {"urlPattern": "^https://example\\.com", "rules": ["^utm_"]}
}}`

func newTestRefresher(url string, opts Options) *Refresher {
	opts.SourceURL = url
	if opts.Retrier == nil {
		opts.Retrier = retry.New(fetcher.New(config.FetchConfig{Timeout: 5 * time.Second}), config.RetryConfig{})
	}
	if opts.Store == nil {
		opts.Store = ruleset.NewStore()
	}
	return New(opts)
}

func TestRefresh(t *testing.T) {
	t.Run("publishes built ruleset and snapshot", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(testDocument))
		}))
		defer srv.Close()

		store := ruleset.NewStore()
		snapshots := cache.NewMemoryStore()
		r := newTestRefresher(srv.URL, Options{Store: store, Snapshots: snapshots})

		rs, err := r.Refresh(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, 1, rs.Len())
		assert.Equal(t, srv.URL, rs.SourceURL)
		assert.False(t, rs.FetchedAt.IsZero())

		require.Same(t, rs, store.Load())

		snap, err := snapshots.Get(context.Background())
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, testDocument, string(snap.Body))
	})

	t.Run("transport failure keeps previous ruleset", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		store := ruleset.NewStore()
		previous := &ruleset.RuleSet{}
		store.Publish(previous)

		r := newTestRefresher(srv.URL, Options{Store: store})
		_, err := r.Refresh(context.Background(), "")
		require.Error(t, err)
		assert.Same(t, previous, store.Load())
	})

	t.Run("malformed document keeps previous ruleset", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[1, 2, 3]`))
		}))
		defer srv.Close()

		store := ruleset.NewStore()
		previous := &ruleset.RuleSet{}
		store.Publish(previous)

		r := newTestRefresher(srv.URL, Options{Store: store})
		_, err := r.Refresh(context.Background(), "")
		require.ErrorIs(t, err, ruleset.ErrMalformedDocument)
		assert.Same(t, previous, store.Load())
	})

	t.Run("override url is adopted after success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(testDocument))
		}))
		defer srv.Close()

		r := newTestRefresher("https://unused.example/rules.json", Options{})
		_, err := r.Refresh(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, srv.URL, r.SourceURL())
	})

	t.Run("override url is not adopted after failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		r := newTestRefresher("https://original.example/rules.json", Options{})
		_, err := r.Refresh(context.Background(), srv.URL)
		require.Error(t, err)
		assert.Equal(t, "https://original.example/rules.json", r.SourceURL())
	})
}

func TestTrigger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testDocument))
	}))
	defer srv.Close()

	r := newTestRefresher(srv.URL, Options{Throttle: ratelimit.NewThrottle(time.Hour)})

	_, err := r.Trigger(context.Background(), "")
	require.NoError(t, err)

	_, err = r.Trigger(context.Background(), "")
	require.True(t, errors.Is(err, ErrThrottled), "second trigger should be throttled, got %v", err)
}

func TestBootstrap(t *testing.T) {
	t.Run("restores from snapshot without fetching", func(t *testing.T) {
		var fetched atomic.Bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fetched.Store(true)
			w.Write([]byte(testDocument))
		}))
		defer srv.Close()

		snapshots := cache.NewMemoryStore()
		fetchedAt := time.Now().UTC().Add(-time.Hour)
		require.NoError(t, snapshots.Set(context.Background(), &cache.Snapshot{
			SourceURL: "https://rules.example/data.minify.json",
			Body:      []byte(testDocument),
			FetchedAt: fetchedAt,
		}))

		store := ruleset.NewStore()
		r := newTestRefresher(srv.URL, Options{Store: store, Snapshots: snapshots})

		require.NoError(t, r.Bootstrap(context.Background()))
		assert.False(t, fetched.Load(), "bootstrap should not fetch when a snapshot exists")

		rs := store.Load()
		require.NotNil(t, rs)
		assert.Equal(t, 1, rs.Len())
		assert.Equal(t, "https://rules.example/data.minify.json", rs.SourceURL)
		assert.True(t, rs.FetchedAt.Equal(fetchedAt))
	})

	t.Run("falls back to fetch without snapshot", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(testDocument))
		}))
		defer srv.Close()

		store := ruleset.NewStore()
		r := newTestRefresher(srv.URL, Options{Store: store})

		require.NoError(t, r.Bootstrap(context.Background()))
		require.NotNil(t, store.Load())
	})

	t.Run("unusable snapshot falls back to fetch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(testDocument))
		}))
		defer srv.Close()

		snapshots := cache.NewMemoryStore()
		require.NoError(t, snapshots.Set(context.Background(), &cache.Snapshot{
			SourceURL: "https://rules.example/data.minify.json",
			Body:      []byte("corrupt"),
		}))

		store := ruleset.NewStore()
		r := newTestRefresher(srv.URL, Options{Store: store, Snapshots: snapshots})

		require.NoError(t, r.Bootstrap(context.Background()))
		rs := store.Load()
		require.NotNil(t, rs)
		assert.Equal(t, srv.URL, rs.SourceURL)
	})
}

func TestRun(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(testDocument))
	}))
	defer srv.Close()

	r := newTestRefresher(srv.URL, Options{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	assert.GreaterOrEqual(t, calls.Load(), int32(2), "Run should refresh repeatedly")
}
