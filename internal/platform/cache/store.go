package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	versionKey = "console:lists:version"
	// BumpChannel carries version bumps between console instances.
	BumpChannel = "console.lists.bump"
)

// localVersionTTL bounds how long a listener-fed version is trusted before
// Redis is read again, covering bumps lost while the subscription reconnects.
const localVersionTTL = 30 * time.Second

// Store is a versioned JSON cache. Bumping the version invalidates every key
// built before the bump. A nil Store or client passes straight to the loader.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time

	// While a listener runs, the version is served from memory and kept
	// current by published bumps.
	mu        sync.Mutex
	listening bool
	local     int64
	localAt   time.Time
}

// NewStore instantiates the cache helper.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, now: time.Now}
}

// Enabled reports whether a Redis client backs the store.
func (s *Store) Enabled() bool {
	return s != nil && s.client != nil
}

// Version returns the current cache version, initialising when missing.
func (s *Store) Version(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	if ver, ok := s.cachedVersion(); ok {
		return ver, nil
	}
	ver, err := s.readVersion(ctx)
	if err != nil {
		return 0, err
	}
	s.adopt(ver)
	return ver, nil
}

func (s *Store) readVersion(ctx context.Context) (int64, error) {
	ver, err := s.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := s.client.SetNX(ctx, versionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return s.client.Get(ctx, versionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := s.client.Set(ctx, versionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

func (s *Store) cachedVersion() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.listening || s.local <= 0 || s.now().Sub(s.localAt) >= localVersionTTL {
		return 0, false
	}
	return s.local, true
}

// adopt records ver as the local version while a listener runs. The local
// version only moves forward; an equal value refreshes its age.
func (s *Store) adopt(ver int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.listening || ver < s.local {
		return
	}
	s.local = ver
	s.localAt = s.now()
}

func (s *Store) setListening(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listening = on
	s.local = 0
}

// BuildKey composes the cache key with the current version.
func (s *Store) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if !s.Enabled() {
		return joined, nil
	}
	ver, err := s.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON loads a cached value into dest or populates it using the loader.
func (s *Store) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("platform/cache: loader required")
	}
	if s.Enabled() {
		payload, err := s.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return fmt.Errorf("platform/cache: get: %w", err)
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if s.Enabled() {
		if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
			return fmt.Errorf("platform/cache: set: %w", err)
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates the cache by incrementing the version and publishing it
// to every listening console instance.
func (s *Store) Bump(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	ver, err := s.client.Incr(ctx, versionKey).Result()
	if err != nil {
		return err
	}
	s.adopt(ver)
	return s.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation keeps the in-memory version current from bumps
// published on channel until ctx is cancelled. Without a running listener
// every Version call reads Redis.
func (s *Store) ListenForInvalidation(ctx context.Context, channel string) error {
	if !s.Enabled() {
		return nil
	}
	if channel == "" {
		channel = BumpChannel
	}
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("platform/cache: subscribe: %w", err)
	}
	s.setListening(true)
	go func() {
		defer func() { _ = pubsub.Close() }()
		defer s.setListening(false)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					// Unreadable bump: forget the local version so the next
					// call reads Redis.
					s.setListening(true)
					continue
				}
				s.adopt(ver)
			}
		}
	}()
	return nil
}
