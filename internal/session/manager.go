package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Manager keeps sessions in memory. A session expires after ttl without use.
type Manager struct {
	cache  *cache.Cache
	logger *zap.Logger
}

// NewManager creates a manager; expired sessions are purged every cleanup interval.
func NewManager(ttl, cleanup time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cache.New(ttl, cleanup)
	c.OnEvicted(func(id string, _ interface{}) {
		logger.Debug("session discarded", zap.String("session", id))
	})
	return &Manager{cache: c, logger: logger}
}

// Create starts a new empty session.
func (m *Manager) Create() *Session {
	s := New(uuid.NewString())
	m.cache.Set(s.ID, s, cache.DefaultExpiration)
	m.logger.Debug("session created", zap.String("session", s.ID))
	return s
}

// Get returns the session and extends its lifetime.
func (m *Manager) Get(id string) (*Session, bool) {
	x, found := m.cache.Get(id)
	if !found {
		return nil, false
	}
	s := x.(*Session)
	m.cache.Set(id, s, cache.DefaultExpiration)
	return s, true
}

// GetOrCreate returns the session with id, creating an empty one under that id if needed.
func (m *Manager) GetOrCreate(id string) *Session {
	if s, ok := m.Get(id); ok {
		return s
	}
	s := New(id)
	if err := m.cache.Add(id, s, cache.DefaultExpiration); err != nil {
		// Another caller created it first.
		if existing, ok := m.Get(id); ok {
			return existing
		}
	}
	return s
}

// Delete ends a session.
func (m *Manager) Delete(id string) {
	m.cache.Delete(id)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.cache.ItemCount()
}
