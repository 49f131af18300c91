package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Entry is one recorded interaction. Mirrors the agent-side build history
// table so operators can correlate both sides.
type Entry struct {
	PlayerUUID      string    `json:"playerUuid"`
	PlayerName      string    `json:"playerName"`
	ActionType      string    `json:"actionType"`
	Request         string    `json:"request"`
	ResponseSummary string    `json:"responseSummary"`
	CommandCount    int       `json:"commandCount,omitempty"`
	At              time.Time `json:"at"`
}

// Recorder stores recent interactions per player. Recording is best effort:
// callers log failures and never let them affect the response path.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, playerUUID string, limit int) ([]Entry, error)
}

const maxEntriesPerPlayer = 50

// NewNop returns a recorder that stores nothing.
func NewNop() Recorder {
	return nopRecorder{}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Entry) error { return nil }
func (nopRecorder) Recent(context.Context, string, int) ([]Entry, error) {
	return nil, nil
}

// MemoryRecorder keeps a TTL-bounded ring of entries per player in process
// memory.
type MemoryRecorder struct {
	cache  *gocache.Cache
	logger *logrus.Logger
}

// NewMemoryRecorder builds an in-process recorder with the given retention.
func NewMemoryRecorder(ttl time.Duration, logger *logrus.Logger) *MemoryRecorder {
	return &MemoryRecorder{
		cache:  gocache.New(ttl, 2*ttl),
		logger: logger,
	}
}

func (r *MemoryRecorder) Record(_ context.Context, entry Entry) error {
	entries := []Entry{entry}
	if existing, found := r.cache.Get(entry.PlayerUUID); found {
		entries = append(entries, existing.([]Entry)...)
		if len(entries) > maxEntriesPerPlayer {
			entries = entries[:maxEntriesPerPlayer]
		}
	}
	r.cache.SetDefault(entry.PlayerUUID, entries)
	return nil
}

func (r *MemoryRecorder) Recent(_ context.Context, playerUUID string, limit int) ([]Entry, error) {
	existing, found := r.cache.Get(playerUUID)
	if !found {
		return nil, nil
	}
	entries := existing.([]Entry)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// RedisRecorder keeps a capped per-player list in redis so history survives
// bridge restarts.
type RedisRecorder struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisRecorder builds a recorder against the given redis instance and
// verifies connectivity.
func NewRedisRecorder(addr, password string, db int, ttl time.Duration, logger *logrus.Logger) (*RedisRecorder, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisRecorder{client: client, ttl: ttl, logger: logger}, nil
}

func historyKey(playerUUID string) string {
	return "history:" + playerUUID
}

func (r *RedisRecorder) Record(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}
	key := historyKey(entry.PlayerUUID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxEntriesPerPlayer-1)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

func (r *RedisRecorder) Recent(ctx context.Context, playerUUID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = maxEntriesPerPlayer
	}
	raw, err := r.client.LRange(ctx, historyKey(playerUUID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			r.logger.WithError(err).Warn("Skipping unreadable history entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
