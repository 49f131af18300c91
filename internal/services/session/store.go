package session

import (
	"context"
	"net/http"
	"time"

	"github.com/minebot-bridge-go/internal/models"
	"github.com/minebot-bridge-go/internal/services/botpress"
	"github.com/minebot-bridge-go/internal/services/cache"
	"github.com/sirupsen/logrus"
)

// Stats mirrors the session cache counters for the health endpoint.
type Stats struct {
	ActiveSessions    int        `json:"activeSessions"`
	TTLMillis         int64      `json:"ttlMs"`
	MaxEntries        int        `json:"maxEntries"`
	CleanupIntervalMs int64      `json:"cleanupIntervalMs"`
	CleanupRuns       int64      `json:"cleanupRuns"`
	StaleEvictions    int64      `json:"staleEvictions"`
	MaxEvictions      int64      `json:"maxEvictions"`
	LastCleanupAt     *time.Time `json:"lastCleanupAt"`
}

// Store caches one remote conversation per player UUID. Sessions are created
// lazily against the backend and evicted by TTL or capacity; nothing is
// persisted across restarts.
type Store struct {
	cache  *cache.Cache[*models.Session]
	client *botpress.Client
	logger *logrus.Logger
}

// NewStore builds a store around an injected clock so eviction is testable.
func NewStore(client *botpress.Client, ttl time.Duration, maxEntries int, now func() time.Time, logger *logrus.Logger) *Store {
	return &Store{
		cache: cache.New[*models.Session](cache.Config{
			Name:       "sessions",
			TTL:        ttl,
			MaxEntries: maxEntries,
		}, now, logger),
		client: client,
		logger: logger,
	}
}

// Close stops the cache's periodic sweeper.
func (s *Store) Close() {
	s.cache.Close()
}

// GetOrCreate returns the player's session, touching it, or provisions a new
// one: create the remote user keyed by the player UUID, then open a
// conversation with the returned chat key. Either call failing, or a missing
// chat key, surfaces as a backend error carrying status and body.
func (s *Store) GetOrCreate(ctx context.Context, playerUUID string) (*models.Session, error) {
	if existing, ok := s.cache.Get(playerUUID); ok {
		return existing, nil
	}

	user, chatKey, err := s.client.CreateUser(ctx, playerUUID)
	if err != nil {
		return nil, err
	}
	if chatKey == "" {
		return nil, &botpress.BackendError{
			Op:     "create user",
			Status: http.StatusOK,
			Body:   "response contained no chat key",
		}
	}

	conversation, err := s.client.CreateConversation(ctx, chatKey)
	if err != nil {
		return nil, err
	}

	sess := &models.Session{
		ChatKey:        chatKey,
		ConversationID: conversation.ID,
		UserID:         user.ID,
	}
	s.cache.Touch(playerUUID, sess)

	s.logger.WithFields(logrus.Fields{
		"playerUUID":     playerUUID,
		"conversationId": conversation.ID,
	}).Info("Session created")
	return sess, nil
}

// Touch refreshes the session's recency after activity on it.
func (s *Store) Touch(playerUUID string, sess *models.Session) {
	s.cache.Touch(playerUUID, sess)
}

// Reset drops one player's session, reporting whether one existed.
func (s *Store) Reset(playerUUID string) bool {
	return s.cache.Delete(playerUUID)
}

// ResetAll drops every session and returns the prior count.
func (s *Store) ResetAll() int {
	return s.cache.Flush()
}

// Stats snapshots the session cache for observability.
func (s *Store) Stats() Stats {
	cs := s.cache.Stats()
	return Stats{
		ActiveSessions:    cs.Entries,
		TTLMillis:         cs.TTLMillis,
		MaxEntries:        cs.MaxEntries,
		CleanupIntervalMs: cs.CleanupInterval,
		CleanupRuns:       cs.CleanupRuns,
		StaleEvictions:    cs.StaleEvictions,
		MaxEvictions:      cs.MaxEvictions,
		LastCleanupAt:     cs.LastCleanupAt,
	}
}

// Sweep runs one eviction pass at the given instant.
func (s *Store) Sweep(now time.Time) {
	s.cache.Sweep(now)
}
