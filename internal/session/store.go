// Package session keeps per-customer conversation state in memory.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jubot-ia/orderbot/internal/domain"
	"github.com/patrickmn/go-cache"
)

// DefaultTTL is how long an idle session is kept before eviction.
const DefaultTTL = 6 * time.Hour

// OrderLookup is the slice of the ledger needed to hydrate a session.
type OrderLookup interface {
	FindLatestByPhone(ctx context.Context, phone string) (*domain.LedgerOrder, error)
}

// Store maps canonical customer IDs to their live session.
type Store struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
}

// NewStore creates a session store evicting sessions idle for longer than ttl.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := cache.New(ttl, ttl/4)
	c.OnEvicted(func(id string, _ interface{}) {
		slog.Debug("Session evicted", "customer_id", id)
	})
	return &Store{cache: c, ttl: ttl}
}

// Get returns the session for id, creating it when absent. Every call
// restarts the idle timer.
func (s *Store) Get(id string) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache.Get(id); ok {
		sess := v.(*domain.Session)
		s.cache.Set(id, sess, cache.DefaultExpiration)
		return sess
	}

	sess := domain.NewSession(id)
	s.cache.Set(id, sess, cache.DefaultExpiration)
	slog.Debug("Session created", "customer_id", id)
	return sess
}

// Delete drops the session for id.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// Hydrate performs the one-time ledger lookup for a fresh session. It marks
// the session initialized whether or not the lookup succeeds, so a failing
// ledger is not queried again for the same session.
func Hydrate(ctx context.Context, sess *domain.Session, phone string, ledger OrderLookup) {
	if sess.Initialized {
		return
	}
	sess.Initialized = true

	if phone == "" || ledger == nil {
		return
	}

	last, err := ledger.FindLatestByPhone(ctx, phone)
	if err != nil {
		slog.Warn("Failed to load previous order", "customer_id", sess.CustomerID, "error", err)
		return
	}
	if last == nil {
		return
	}

	sess.LastKnownOrder = last.Snapshot()
	if sess.CustomerName == "" && last.HasKnownName() {
		sess.CustomerName = last.CustomerName
	}
	slog.Debug("Session hydrated from ledger", "customer_id", sess.CustomerID, "row", last.Row)
}
