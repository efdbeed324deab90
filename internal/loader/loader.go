// Package loader fetches search shards on demand. Each shard is fetched at
// most once at a time, retried with exponential backoff on transient
// failures, and cached once decoded. A slow or failing shard never blocks
// requests for other shards.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/jcdickinson/symdex/internal/artifact"
	"github.com/jcdickinson/symdex/internal/metrics"
	"github.com/jcdickinson/symdex/internal/query"
	"github.com/jcdickinson/symdex/internal/shard"
	"github.com/jcdickinson/symdex/internal/symtab"
)

const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 100 * time.Millisecond
)

// Loader caches decoded shards from a Source.
type Loader struct {
	src            Source
	keyFn          shard.KeyFunc
	maxRetries     uint64
	initialBackoff time.Duration

	group singleflight.Group

	mu     sync.RWMutex
	shards map[string][]shard.Entry
	keys   []string
}

// Option configures a Loader.
type Option func(*Loader)

// WithMaxRetries bounds how often a failing fetch is retried.
func WithMaxRetries(n int) Option {
	return func(l *Loader) {
		if n >= 0 {
			l.maxRetries = uint64(n)
		}
	}
}

// WithInitialBackoff sets the delay before the first retry.
func WithInitialBackoff(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.initialBackoff = d
		}
	}
}

// WithKeyFunc sets the key function the shards were built with.
func WithKeyFunc(fn shard.KeyFunc) Option {
	return func(l *Loader) {
		if fn != nil {
			l.keyFn = fn
		}
	}
}

func New(src Source, opts ...Option) *Loader {
	l := &Loader{
		src:            src,
		keyFn:          shard.DefaultKey,
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
		shards:         make(map[string][]shard.Entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Keys returns the shard keys of the source, fetching them once.
func (l *Loader) Keys(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	keys := l.keys
	l.mu.RUnlock()
	if keys != nil {
		return keys, nil
	}

	v, err := l.do(ctx, "\x00keys", func(ctx context.Context) (any, error) {
		keys, err := retryWithData(ctx, l, "keys", func() ([]string, error) {
			return l.src.Keys(ctx)
		})
		if err != nil {
			return nil, err
		}
		if keys == nil {
			keys = []string{}
		}
		l.mu.Lock()
		l.keys = keys
		l.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Shard returns the decoded entries of the shard with the given key. A
// missing shard fails with symtab.ErrNotFound and is not retried.
func (l *Loader) Shard(ctx context.Context, key string) ([]shard.Entry, error) {
	l.mu.RLock()
	entries, ok := l.shards[key]
	l.mu.RUnlock()
	if ok {
		metrics.ShardLoads.WithLabelValues("hit").Inc()
		return entries, nil
	}

	v, err := l.do(ctx, key, func(ctx context.Context) (any, error) {
		data, err := retryWithData(ctx, l, key, func() ([]byte, error) {
			return l.src.Fetch(ctx, key)
		})
		if err != nil {
			return nil, err
		}
		rows, err := artifact.DecodeShard(data)
		if err != nil {
			return nil, fmt.Errorf("shard %q: %w", key, err)
		}
		entries := make([]shard.Entry, len(rows))
		for i, r := range rows {
			entries[i] = r.Entry()
		}
		slices.SortStableFunc(entries, shard.CompareEntries)

		l.mu.Lock()
		l.shards[key] = entries
		l.mu.Unlock()
		return entries, nil
	})
	switch {
	case err == nil:
		metrics.ShardLoads.WithLabelValues("loaded").Inc()
	case errors.Is(err, symtab.ErrNotFound):
		metrics.ShardLoads.WithLabelValues("missing").Inc()
	default:
		metrics.ShardLoads.WithLabelValues("error").Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.([]shard.Entry), nil
}

// do runs fn once per key across concurrent callers. Every caller waits
// under its own ctx; if the caller that started the fetch gives up, a
// caller that is still interested starts a new one.
func (l *Loader) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	for {
		ch := l.group.DoChan(key, func() (any, error) {
			return fn(ctx)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil && isContextErr(res.Err) && ctx.Err() == nil {
				continue
			}
			return res.Val, res.Err
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func retryWithData[T any](ctx context.Context, l *Loader, what string, op func() (T, error)) (T, error) {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithInitialInterval(l.initialBackoff)), l.maxRetries),
		ctx,
	)
	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := op()
		if err != nil && (errors.Is(err, symtab.ErrNotFound) || isContextErr(err)) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, b, func(err error, next time.Duration) {
		metrics.ShardRetries.Inc()
		slog.Warn("shard fetch failed, retrying", "shard", what, "error", err, "backoff", next)
	})
}

// Lookup answers a prefix query from shards loaded on demand, with the same
// matching rules as query.Index.Lookup. Only shards related to the query
// are fetched. Shards that fail to load fail the lookup; missing ones are
// skipped.
func (l *Loader) Lookup(ctx context.Context, text string, limit int) ([]query.Match, error) {
	m, ok := query.NewMatcher(text, l.keyFn)
	if !ok {
		return nil, nil
	}
	keys, err := l.Keys(ctx)
	if err != nil {
		return nil, err
	}

	var hits []shard.Entry
	for _, key := range keys {
		if !m.Related(key) {
			continue
		}
		entries, err := l.Shard(ctx, key)
		if errors.Is(err, symtab.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		m.Scan(entries, func(e shard.Entry) bool {
			hits = append(hits, e)
			return true
		})
	}
	slices.SortFunc(hits, shard.CompareEntries)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]query.Match, len(hits))
	for i, e := range hits {
		out[i] = query.MatchOf(e)
	}
	return out, nil
}

// Cached reports how many shards are held in memory.
func (l *Loader) Cached() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.shards)
}
