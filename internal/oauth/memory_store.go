package oauth

import (
	"context"
	"sync"
	"time"

	"gitscribe/pkg/logging"
)

// tokenExpiryMargin is the margin added when checking token expiration.
// This accounts for clock skew between systems and network latency.
const tokenExpiryMargin = 30 * time.Second

const memoryCleanupInterval = 5 * time.Minute

// MemoryTokenStore is a bounded, thread-safe in-memory token store. When
// the capacity is reached the entry with the oldest CreatedAt is evicted to
// make room. Expired tokens are dropped lazily on read and by a background
// sweep.
type MemoryTokenStore struct {
	mu       sync.RWMutex
	tokens   map[string]*Token
	capacity int

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewMemoryTokenStore creates a memory store holding at most capacity
// tokens. It starts a background goroutine for periodic cleanup of expired
// tokens.
func NewMemoryTokenStore(capacity int) *MemoryTokenStore {
	if capacity <= 0 {
		capacity = 100
	}
	s := &MemoryTokenStore{
		tokens:      make(map[string]*Token),
		capacity:    capacity,
		stopCleanup: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Put stores a token, evicting the oldest entry when the store is full.
func (s *MemoryTokenStore) Put(_ context.Context, sessionID string, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[sessionID]; !exists && len(s.tokens) >= s.capacity {
		s.evictOldestLocked()
	}
	s.tokens[sessionID] = token
	logging.Debug("TokenStore", "Stored token for session=%s (expires: %v)",
		logging.TruncateID(sessionID), token.ExpiresAt)
	return nil
}

// Get retrieves a live token. Expired entries are removed and reported as
// not found.
func (s *MemoryTokenStore) Get(_ context.Context, sessionID string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, exists := s.tokens[sessionID]
	if !exists {
		return nil, ErrTokenNotFound
	}
	if token.IsExpired(tokenExpiryMargin) {
		delete(s.tokens, sessionID)
		logging.Debug("TokenStore", "Token expired for session=%s", logging.TruncateID(sessionID))
		return nil, ErrTokenNotFound
	}
	return token, nil
}

// Delete removes a token. Deleting a missing token is not an error.
func (s *MemoryTokenStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, sessionID)
	return nil
}

// Count returns the number of stored tokens, expired ones included.
func (s *MemoryTokenStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens), nil
}

// Close stops the background cleanup goroutine.
func (s *MemoryTokenStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *MemoryTokenStore) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, t := range s.tokens {
		if oldestID == "" || t.CreatedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = t.CreatedAt
		}
	}
	if oldestID != "" {
		delete(s.tokens, oldestID)
		logging.Debug("TokenStore", "Evicted oldest token session=%s to stay within capacity %d",
			logging.TruncateID(oldestID), s.capacity)
	}
}

func (s *MemoryTokenStore) cleanupLoop() {
	ticker := time.NewTicker(memoryCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryTokenStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, token := range s.tokens {
		if token.IsExpired(0) {
			delete(s.tokens, id)
			count++
		}
	}
	if count > 0 {
		logging.Debug("TokenStore", "Cleaned up %d expired tokens", count)
	}
}
