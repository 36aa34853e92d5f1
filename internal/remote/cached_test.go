package remote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-console/internal/listsync"
	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
)

type stubFetcher struct {
	calls   atomic.Int32
	gate    chan struct{}
	err     error
	results []listsync.Result
}

func (s *stubFetcher) FetchList(ctx context.Context, resource string, params listsync.Params) (listsync.Result, error) {
	n := s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return listsync.Result{}, s.err
	}
	idx := int(n) - 1
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	return s.results[idx], nil
}

func newStore(t *testing.T) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewStore(client, time.Minute), mr
}

func page(ids ...string) listsync.Result {
	items := make([]listsync.Row, 0, len(ids))
	for _, id := range ids {
		items = append(items, listsync.Row{"id": id})
	}
	return listsync.Result{Items: items, Total: len(ids)}
}

var firstPage = listsync.Params{{Key: "page", Value: "1"}, {Key: "limit", Value: "10"}}

func TestCachedFetcherServesRepeatsFromCache(t *testing.T) {
	store, _ := newStore(t)
	next := &stubFetcher{results: []listsync.Result{page("a", "b")}}
	fetcher := NewCachedFetcher(next, store, nil)
	ctx := context.Background()

	first, err := fetcher.FetchList(ctx, "/admin/orders", firstPage)
	require.NoError(t, err)
	second, err := fetcher.FetchList(ctx, "/admin/orders", firstPage)
	require.NoError(t, err)

	require.Equal(t, int32(1), next.calls.Load())
	require.Equal(t, first.Total, second.Total)
	require.Equal(t, "a", second.Items[0]["id"])
}

func TestCachedFetcherKeysOnParams(t *testing.T) {
	store, _ := newStore(t)
	next := &stubFetcher{results: []listsync.Result{page("a"), page("b")}}
	fetcher := NewCachedFetcher(next, store, nil)
	ctx := context.Background()

	_, err := fetcher.FetchList(ctx, "/admin/orders", firstPage)
	require.NoError(t, err)
	second, err := fetcher.FetchList(ctx, "/admin/orders", listsync.Params{{Key: "page", Value: "2"}})
	require.NoError(t, err)

	require.Equal(t, int32(2), next.calls.Load())
	require.Equal(t, "b", second.Items[0]["id"])
}

func TestCachedFetcherInvalidate(t *testing.T) {
	store, _ := newStore(t)
	next := &stubFetcher{results: []listsync.Result{page("old"), page("new")}}
	fetcher := NewCachedFetcher(next, store, nil)
	ctx := context.Background()

	_, err := fetcher.FetchList(ctx, "/admin/orders", firstPage)
	require.NoError(t, err)
	require.NoError(t, fetcher.Invalidate(ctx))

	result, err := fetcher.FetchList(ctx, "/admin/orders", firstPage)
	require.NoError(t, err)
	require.Equal(t, "new", result.Items[0]["id"])
}

func TestCachedFetcherDoesNotCacheFailures(t *testing.T) {
	store, _ := newStore(t)
	boom := errors.New("boom")
	next := &stubFetcher{err: boom}
	fetcher := NewCachedFetcher(next, store, nil)
	ctx := context.Background()

	_, err := fetcher.FetchList(ctx, "/admin/orders", firstPage)
	require.ErrorIs(t, err, boom)
	_, err = fetcher.FetchList(ctx, "/admin/orders", firstPage)
	require.ErrorIs(t, err, boom)
	require.Equal(t, int32(2), next.calls.Load())
}

func TestCachedFetcherFallsBackWhenRedisIsDown(t *testing.T) {
	store, mr := newStore(t)
	next := &stubFetcher{results: []listsync.Result{page("a")}}
	fetcher := NewCachedFetcher(next, store, nil)
	mr.Close()

	result, err := fetcher.FetchList(context.Background(), "/admin/orders", firstPage)
	require.NoError(t, err)
	require.Equal(t, "a", result.Items[0]["id"])
}

func TestCachedFetcherDeduplicatesConcurrentRequests(t *testing.T) {
	next := &stubFetcher{gate: make(chan struct{}), results: []listsync.Result{page("a")}}
	fetcher := NewCachedFetcher(next, nil, nil)

	var wg sync.WaitGroup
	results := make([]listsync.Result, 3)
	errs := make([]error, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fetcher.FetchList(context.Background(), "/admin/orders", firstPage)
		}(i)
	}

	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Give the remaining callers time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(next.gate)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, "a", results[i].Items[0]["id"])
	}
	require.Equal(t, int32(1), next.calls.Load())
}

func TestCachedFetcherReturnsOnCallerCancel(t *testing.T) {
	next := &stubFetcher{gate: make(chan struct{}), results: []listsync.Result{page("a")}}
	fetcher := NewCachedFetcher(next, nil, nil)
	defer close(next.gate)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := fetcher.FetchList(ctx, "/admin/orders", firstPage)
		done <- err
	}()

	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("fetch did not return after cancellation")
	}
}
