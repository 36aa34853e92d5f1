package screens

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-console/internal/listsync"
)

type fetchCall struct {
	resource string
	params   listsync.Params
}

// stubFetcher answers every request with rows derived from the resource.
type stubFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	err   error
	total int
}

func (s *stubFetcher) FetchList(ctx context.Context, resource string, params listsync.Params) (listsync.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fetchCall{resource: resource, params: params})
	if s.err != nil {
		return listsync.Result{}, s.err
	}
	total := s.total
	if total == 0 {
		total = 1
	}
	return listsync.Result{Items: []listsync.Row{{"resource": resource}}, Total: total}, nil
}

func (s *stubFetcher) last() (fetchCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return fetchCall{}, false
	}
	return s.calls[len(s.calls)-1], true
}

func (s *stubFetcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func loadDefaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	return catalog
}

func newTestManager(t *testing.T, fetcher listsync.Fetcher) *Manager {
	t.Helper()
	manager, err := NewManager(ManagerConfig{
		Catalog:  loadDefaultCatalog(t),
		Fetcher:  fetcher,
		Defaults: EngineDefaults{Debounce: 20 * time.Millisecond, Location: time.UTC},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})
	return manager
}

func waitSettled(t *testing.T, sess *Session) listsync.Snapshot {
	t.Helper()
	var snap listsync.Snapshot
	require.Eventually(t, func() bool {
		snap = sess.Engine().Snapshot()
		return snap.Status == listsync.StatusSuccess || snap.Status == listsync.StatusError
	}, time.Second, 5*time.Millisecond)
	return snap
}
