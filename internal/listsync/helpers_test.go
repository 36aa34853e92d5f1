package listsync

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward, firing due timers in order on the caller's goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type stubReply struct {
	result Result
	err    error
}

type stubCall struct {
	resource string
	params   Params
	reply    chan stubReply
}

func (c *stubCall) resolve(result Result) {
	c.reply <- stubReply{result: result}
}

func (c *stubCall) reject(err error) {
	c.reply <- stubReply{err: err}
}

func (c *stubCall) param(key string) string {
	v, _ := c.params.Get(key)
	return v
}

type stubFetcher struct {
	calls chan *stubCall
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{calls: make(chan *stubCall, 32)}
}

func (s *stubFetcher) FetchList(ctx context.Context, resource string, params Params) (Result, error) {
	call := &stubCall{resource: resource, params: params, reply: make(chan stubReply, 1)}
	s.calls <- call
	select {
	case r := <-call.reply:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *stubFetcher) next(t *testing.T) *stubCall {
	t.Helper()
	select {
	case call := <-s.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("expected a list fetch to be issued")
		return nil
	}
}

func (s *stubFetcher) none(t *testing.T) {
	t.Helper()
	select {
	case call := <-s.calls:
		t.Fatalf("unexpected list fetch: %s", call.params.Encode())
	case <-time.After(20 * time.Millisecond):
	}
}

type countingLoader struct {
	mu    sync.Mutex
	shows int
	hides int
}

func (l *countingLoader) Show() {
	l.mu.Lock()
	l.shows++
	l.mu.Unlock()
}

func (l *countingLoader) Hide() {
	l.mu.Lock()
	l.hides++
	l.mu.Unlock()
}

func (l *countingLoader) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shows, l.hides
}

type recordingNotifier struct {
	mu   sync.Mutex
	errs []error
}

func (n *recordingNotifier) Error(err error) {
	n.mu.Lock()
	n.errs = append(n.errs, err)
	n.mu.Unlock()
}

func (n *recordingNotifier) errors() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]error(nil), n.errs...)
}

func rows(ids ...int) []Row {
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		out = append(out, Row{"id": id})
	}
	return out
}
