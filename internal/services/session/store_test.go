package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minebot-bridge-go/internal/services/botpress"
	"github.com/sirupsen/logrus"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeBackend serves the user/conversation creation endpoints, issuing
// sequential ids.
func fakeBackend(t *testing.T) (*botpress.Client, *atomic.Int64) {
	t.Helper()
	var userCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/users"):
			n := userCalls.Add(1)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"key":  fmt.Sprintf("key-%d", n),
				"user": map[string]string{"id": fmt.Sprintf("user-%d", n)},
			})
		case strings.HasSuffix(r.URL.Path, "/conversations"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"conversation": map[string]string{"id": "conv-" + r.Header.Get("x-chat-key")},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return botpress.NewClient(srv.URL, "hook", 5*time.Second, testLogger()), &userCalls
}

func newTestStore(t *testing.T, client *botpress.Client, ttl time.Duration, maxEntries int, clock *fakeClock) *Store {
	t.Helper()
	s := NewStore(client, ttl, maxEntries, clock.Now, testLogger())
	t.Cleanup(s.Close)
	return s
}

func TestGetOrCreateProvisionsOnce(t *testing.T) {
	client, userCalls := fakeBackend(t)
	clock := newFakeClock()
	s := newTestStore(t, client, 30*time.Minute, 100, clock)

	first, err := s.GetOrCreate(context.Background(), "uuid-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first.ChatKey != "key-1" || first.UserID != "user-1" || first.ConversationID != "conv-key-1" {
		t.Fatalf("unexpected session: %#v", first)
	}

	second, err := s.GetOrCreate(context.Background(), "uuid-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if second != first {
		t.Fatal("expected cached session to be reused")
	}
	if userCalls.Load() != 1 {
		t.Fatalf("expected one backend user creation, got %d", userCalls.Load())
	}
}

func TestGetOrCreateMissingChatKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"user": map[string]string{"id": "user-1"},
		})
	}))
	t.Cleanup(srv.Close)
	client := botpress.NewClient(srv.URL, "hook", 5*time.Second, testLogger())
	s := newTestStore(t, client, 30*time.Minute, 100, newFakeClock())

	_, err := s.GetOrCreate(context.Background(), "uuid-1")
	var backendErr *botpress.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError for missing chat key, got %v", err)
	}
}

func TestGetOrCreateBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	t.Cleanup(srv.Close)
	client := botpress.NewClient(srv.URL, "hook", 5*time.Second, testLogger())
	s := newTestStore(t, client, 30*time.Minute, 100, newFakeClock())

	_, err := s.GetOrCreate(context.Background(), "uuid-1")
	var backendErr *botpress.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if backendErr.Status != http.StatusInternalServerError || backendErr.Body != "boom" {
		t.Fatalf("expected status and body preserved, got %#v", backendErr)
	}
	if s.Stats().ActiveSessions != 0 {
		t.Fatal("failed creation must not leave a session behind")
	}
}

func TestCapacityEvictionAfterInsert(t *testing.T) {
	client, _ := fakeBackend(t)
	clock := newFakeClock()
	s := newTestStore(t, client, time.Hour, 3, clock)

	for i := 0; i < 5; i++ {
		clock.Advance(time.Millisecond)
		if _, err := s.GetOrCreate(context.Background(), fmt.Sprintf("uuid-%d", i)); err != nil {
			t.Fatalf("GetOrCreate uuid-%d: %v", i, err)
		}
	}

	if got := s.Stats().ActiveSessions; got != 3 {
		t.Fatalf("expected capacity held at 3, got %d", got)
	}
	// The two oldest sessions are gone; recreating one calls the backend
	// again and is observable through the reset result.
	if s.Reset("uuid-0") {
		t.Fatal("expected uuid-0 to have been evicted")
	}
	if !s.Reset("uuid-4") {
		t.Fatal("expected uuid-4 to still be cached")
	}
}

func TestTTLEviction(t *testing.T) {
	client, _ := fakeBackend(t)
	clock := newFakeClock()
	s := newTestStore(t, client, time.Minute, 100, clock)

	if _, err := s.GetOrCreate(context.Background(), "uuid-1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	clock.Advance(61 * time.Second)
	s.Sweep(clock.Now())

	stats := s.Stats()
	if stats.ActiveSessions != 0 {
		t.Fatalf("expected stale session swept, got %d active", stats.ActiveSessions)
	}
	if stats.StaleEvictions != 1 {
		t.Fatalf("expected 1 stale eviction, got %d", stats.StaleEvictions)
	}
}

func TestResetAll(t *testing.T) {
	client, _ := fakeBackend(t)
	s := newTestStore(t, client, time.Hour, 100, newFakeClock())

	for i := 0; i < 4; i++ {
		if _, err := s.GetOrCreate(context.Background(), fmt.Sprintf("uuid-%d", i)); err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
	}
	if got := s.ResetAll(); got != 4 {
		t.Fatalf("expected 4 cleared, got %d", got)
	}
	if got := s.Stats().ActiveSessions; got != 0 {
		t.Fatalf("expected empty store, got %d", got)
	}
}
