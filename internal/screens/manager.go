package screens

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-console/internal/listsync"
)

// DefaultIdleTTL is how long an untouched session survives.
const DefaultIdleTTL = 15 * time.Minute

// Session is one mounted screen: a list-sync engine plus the latest
// snapshot it published.
type Session struct {
	ID        string
	Screen    Screen
	CreatedAt time.Time

	engine      *listsync.Engine
	lastSeen    atomic.Int64
	unsubscribe func()

	mu      sync.Mutex
	latest  listsync.Snapshot
	changed chan struct{}
}

// Engine returns the session's engine.
func (s *Session) Engine() *listsync.Engine {
	return s.engine
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) observe(snap listsync.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Version <= s.latest.Version {
		return
	}
	s.latest = snap
	close(s.changed)
	s.changed = make(chan struct{})
}

// Latest returns the newest published snapshot.
func (s *Session) Latest() listsync.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// WaitNewer blocks until a snapshot newer than after is published or ctx is
// done, and returns the newest snapshot either way.
func (s *Session) WaitNewer(ctx context.Context, after uint64) listsync.Snapshot {
	for {
		s.mu.Lock()
		snap, changed := s.latest, s.changed
		s.mu.Unlock()
		if snap.Version > after {
			return snap
		}
		select {
		case <-ctx.Done():
			return snap
		case <-changed:
		}
	}
}

// ManagerConfig groups the collaborators shared by every session.
type ManagerConfig struct {
	Catalog  *Catalog
	Fetcher  listsync.Fetcher
	Loader   listsync.Loader
	Notifier listsync.Notifier
	Defaults EngineDefaults
	IdleTTL  time.Duration
	Logger   *slog.Logger
}

// Manager owns the open sessions.
type Manager struct {
	catalog  *Catalog
	fetcher  listsync.Fetcher
	loader   listsync.Loader
	notifier listsync.Notifier
	defaults EngineDefaults
	idleTTL  time.Duration
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager constructs a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("screens: catalog required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("screens: fetcher required")
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Defaults.Logger == nil {
		cfg.Defaults.Logger = cfg.Logger
	}
	return &Manager{
		catalog:  cfg.Catalog,
		fetcher:  cfg.Fetcher,
		loader:   cfg.Loader,
		notifier: cfg.Notifier,
		defaults: cfg.Defaults,
		idleTTL:  cfg.IdleTTL,
		logger:   cfg.Logger,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		sessions: make(map[string]*Session),
	}, nil
}

// Catalog returns the screens the manager can open.
func (m *Manager) Catalog() *Catalog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.catalog
}

// SetCatalog swaps the catalog. Open sessions keep the screen they were
// opened with.
func (m *Manager) SetCatalog(catalog *Catalog) {
	if catalog == nil {
		return
	}
	m.mu.Lock()
	m.catalog = catalog
	m.mu.Unlock()
}

// Open mounts a screen: it builds an engine and issues the initial fetch.
func (m *Manager) Open(name string) (*Session, error) {
	screen, err := m.Catalog().Lookup(name)
	if err != nil {
		return nil, err
	}
	engine, err := listsync.New(screen.EngineConfig(m.defaults), m.fetcher, m.loader, m.notifier)
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := &Session{
		ID:        m.newID(),
		Screen:    screen,
		CreatedAt: now,
		engine:    engine,
		changed:   make(chan struct{}),
	}
	sess.touch(now)
	sess.latest = engine.Snapshot()
	sess.unsubscribe = engine.Subscribe(sess.observe)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sess.unsubscribe()
		engine.Dispose()
		return nil, errors.New("screens: manager closed")
	}
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	if err := engine.Refresh(); err != nil {
		m.Close(sess.ID)
		return nil, err
	}
	m.logger.Info("screen session opened",
		slog.String("session", sess.ID),
		slog.String("screen", screen.Name))
	return sess, nil
}

// Get returns the open session id and marks it used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(m.now())
	return sess, nil
}

// Close unmounts a session. It reports whether the session existed.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.dispose(sess)
	m.logger.Info("screen session closed", slog.String("session", id))
	return true
}

// Sessions lists the open sessions, oldest first.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Sweep closes sessions idle for longer than the idle TTL and returns how
// many it closed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.idleTTL)
	m.mu.Lock()
	var stale []*Session
	for id, sess := range m.sessions {
		if sess.LastSeen().Before(cutoff) {
			stale = append(stale, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, sess := range stale {
		m.dispose(sess)
	}
	if len(stale) > 0 {
		m.logger.Info("idle screen sessions closed", slog.Int("count", len(stale)))
	}
	return len(stale)
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Shutdown disposes every session and waits for their fetches to settle or
// ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		m.dispose(sess)
	}
	done := make(chan struct{})
	go func() {
		for _, sess := range sessions {
			sess.engine.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) dispose(sess *Session) {
	sess.unsubscribe()
	sess.engine.Dispose()
}
