package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/minebot-bridge-go/internal/config"
	"github.com/minebot-bridge-go/internal/i18n"
	"github.com/minebot-bridge-go/internal/middleware"
	"github.com/minebot-bridge-go/internal/services/botpress"
	"github.com/minebot-bridge-go/internal/services/bridge"
	"github.com/minebot-bridge-go/internal/services/history"
	"github.com/minebot-bridge-go/internal/services/pixelart"
	"github.com/minebot-bridge-go/internal/services/session"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type testEnv struct {
	router *mux.Router
	store  *session.Store
	// reply is the raw text the fake agent answers with.
	reply struct {
		sync.Mutex
		text string
	}
}

func (e *testEnv) setReply(text string) {
	e.reply.Lock()
	e.reply.text = text
	e.reply.Unlock()
}

func (e *testEnv) currentReply() string {
	e.reply.Lock()
	defer e.reply.Unlock()
	return e.reply.text
}

func newTestEnv(t *testing.T, cooldown time.Duration) *testEnv {
	t.Helper()
	env := &testEnv{}
	env.setReply("hello from the agent")

	var sendCount atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/users"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"key":  "key-1",
				"user": map[string]string{"id": "player-user"},
			})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/conversations"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"conversation": map[string]string{"id": "conv-1"},
			})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
			sendCount.Add(1)
			w.Write([]byte(`{}`))
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"messages": []map[string]interface{}{
					{
						"id":      fmt.Sprintf("bot-%d", sendCount.Load()),
						"userId":  "bot-user",
						"payload": map[string]string{"type": "text", "text": env.currentReply()},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(backend.Close)

	cfg := &config.Config{}
	cfg.I18n.DefaultLanguage = "en"
	cfg.PixelArt.MaxCommands = 500

	client := botpress.NewClient(backend.URL, "hook", 5*time.Second, testLogger())
	store := session.NewStore(client, time.Hour, 100, time.Now, testLogger())
	t.Cleanup(store.Close)

	replyBridge := bridge.New(client, store, bridge.Options{
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  2 * time.Second,
	}, testLogger())

	limiter := middleware.NewCooldownLimiter(cooldown, 5*time.Minute, time.Now, testLogger())
	t.Cleanup(limiter.Close)
	global := middleware.NewGlobalLimiter(0, 0, testLogger())
	compiler := pixelart.NewCompiler(5*time.Second, testLogger())
	localizer, err := i18n.NewLocalizer(&config.I18nConfig{DefaultLanguage: "en"})
	if err != nil {
		t.Fatalf("localizer: %v", err)
	}

	handler := NewChatHandler(cfg, store, replyBridge, limiter, global, compiler,
		history.NewMemoryRecorder(time.Minute, testLogger()), localizer, middleware.NewMetrics(), testLogger())

	env.router = mux.NewRouter()
	handler.Routes(env.router)
	env.store = store
	return env
}

func postChat(t *testing.T, router *mux.Router, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeAction(t *testing.T, resp *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var action map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &action); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return action
}

func chatBody(uuid string) map[string]interface{} {
	return map[string]interface{}{
		"playerName": "Steve",
		"playerUUID": uuid,
		"message":    "hello",
	}
}

func TestChatReturnsChatAction(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)

	resp := postChat(t, env.router, chatBody("uuid-1"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	action := decodeAction(t, resp)
	if action["type"] != "chat" || action["text"] != "hello from the agent" {
		t.Fatalf("unexpected action: %v", action)
	}
}

func TestChatInvalidBody(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)

	resp := postChat(t, env.router, map[string]interface{}{"playerName": "Steve"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if action := decodeAction(t, resp); action["type"] != "error" {
		t.Fatalf("expected error action, got %v", action)
	}
}

func TestChatRateLimited(t *testing.T) {
	env := newTestEnv(t, time.Minute)

	if resp := postChat(t, env.router, chatBody("uuid-1")); resp.Code != http.StatusOK {
		t.Fatalf("first request failed: %d", resp.Code)
	}
	resp := postChat(t, env.router, chatBody("uuid-1"))
	if resp.Code != http.StatusOK {
		t.Fatalf("rate limited reply should still be 200, got %d", resp.Code)
	}
	if action := decodeAction(t, resp); action["type"] != "error" {
		t.Fatalf("expected friendly error action, got %v", action)
	}
}

func TestChatDisallowedCommandBecomesErrorAction(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)
	env.setReply(`{"type":"command","command":"op Steve"}`)

	resp := postChat(t, env.router, chatBody("uuid-1"))
	action := decodeAction(t, resp)
	if action["type"] != "error" {
		t.Fatalf("expected error action, got %v", action)
	}
	if text, _ := action["text"].(string); !strings.Contains(text, "op") {
		t.Fatalf("rejection should name the command token, got %q", text)
	}
}

func TestChatPixelArtResolvedToWorldEdit(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 207, G: 213, B: 214, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	t.Cleanup(imgSrv.Close)

	env := newTestEnv(t, time.Millisecond)
	env.setReply(fmt.Sprintf(`{"type":"pixelart","url":%q}`, imgSrv.URL))

	resp := postChat(t, env.router, chatBody("uuid-1"))
	action := decodeAction(t, resp)
	if action["type"] != "worldedit" {
		t.Fatalf("expected pixelart resolved to worldedit, got %v", action)
	}
	commands, ok := action["commands"].([]interface{})
	if !ok || len(commands) != 8 {
		t.Fatalf("expected 8 fill commands, got %v", action["commands"])
	}
}

func TestResetEndpoints(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)

	if resp := postChat(t, env.router, chatBody("uuid-1")); resp.Code != http.StatusOK {
		t.Fatalf("chat failed: %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/reset/uuid-1", nil)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	var result struct {
		Status  string `json:"status"`
		Cleared bool   `json:"cleared"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != "ok" || !result.Cleared {
		t.Fatalf("unexpected reset result: %+v", result)
	}

	req = httptest.NewRequest(http.MethodPost, "/reset-all", nil)
	resp = httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	var all struct {
		Status  string `json:"status"`
		Cleared int    `json:"cleared"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if all.Status != "ok" || all.Cleared != 0 {
		t.Fatalf("unexpected reset-all result after single reset: %+v", all)
	}
}

func TestHealthShape(t *testing.T) {
	env := newTestEnv(t, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var health struct {
		Status  string `json:"status"`
		Cleanup struct {
			Sessions   map[string]interface{} `json:"sessions"`
			RateLimits map[string]interface{} `json:"rateLimits"`
		} `json:"cleanup"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" {
		t.Fatalf("unexpected status %q", health.Status)
	}
	for _, key := range []string{"activeSessions", "cleanupRuns"} {
		if _, ok := health.Cleanup.Sessions[key]; !ok {
			t.Fatalf("session stats missing %q", key)
		}
	}
	for _, key := range []string{"trackedPlayers", "cooldownMs"} {
		if _, ok := health.Cleanup.RateLimits[key]; !ok {
			t.Fatalf("rate limit stats missing %q", key)
		}
	}
}
