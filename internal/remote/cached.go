package remote

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-console/internal/listsync"
	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
)

// CachedFetcher deduplicates identical concurrent list requests and keeps
// responses in the versioned Redis cache. A disabled store only deduplicates.
type CachedFetcher struct {
	next   listsync.Fetcher
	store  *cache.Store
	group  singleflight.Group
	logger *slog.Logger
}

// NewCachedFetcher wraps next. store may be nil.
func NewCachedFetcher(next listsync.Fetcher, store *cache.Store, logger *slog.Logger) *CachedFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFetcher{next: next, store: store, logger: logger}
}

// FetchList implements listsync.Fetcher.
func (f *CachedFetcher) FetchList(ctx context.Context, resource string, params listsync.Params) (listsync.Result, error) {
	query := params.Encode()
	key, err := f.store.BuildKey(ctx, "console", "lists", resource, query)
	if err != nil {
		f.logger.Warn("list cache unavailable", slog.String("resource", resource), slog.Any("error", err))
		key = "console:lists:" + resource + ":" + query
	}

	// Shared work ignores the caller's cancellation; each caller still
	// returns as soon as its own ctx is done.
	shared := context.WithoutCancel(ctx)
	resultChan := f.group.DoChan(key, func() (interface{}, error) {
		return f.load(shared, key, resource, params)
	})
	select {
	case <-ctx.Done():
		return listsync.Result{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return listsync.Result{}, res.Err
		}
		return res.Val.(listsync.Result), nil
	}
}

func (f *CachedFetcher) load(ctx context.Context, key, resource string, params listsync.Params) (listsync.Result, error) {
	if !f.store.Enabled() {
		return f.next.FetchList(ctx, resource, params)
	}
	var (
		fetched   listsync.Result
		loaded    bool
		loaderErr error
		result    listsync.Result
	)
	err := f.store.FetchJSON(ctx, key, &result, func(ctx context.Context) (any, error) {
		loaded = true
		fetched, loaderErr = f.next.FetchList(ctx, resource, params)
		return fetched, loaderErr
	})
	switch {
	case err == nil:
		return result, nil
	case loaded && loaderErr != nil:
		return listsync.Result{}, loaderErr
	case loaded:
		f.logger.Warn("list cache write failed", slog.String("resource", resource), slog.Any("error", err))
		return fetched, nil
	}
	f.logger.Warn("list cache read failed", slog.String("resource", resource), slog.Any("error", err))
	return f.next.FetchList(ctx, resource, params)
}

// Invalidate drops every cached list response.
func (f *CachedFetcher) Invalidate(ctx context.Context) error {
	return f.store.Bump(ctx)
}
