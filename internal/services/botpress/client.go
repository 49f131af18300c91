package botpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const chatKeyHeader = "x-chat-key"

// BackendError reports a failed call to the chat backend with enough detail
// for operator-side logs. The user-facing layer never exposes it directly.
type BackendError struct {
	Op     string
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("botpress %s failed with status %d: %s", e.Op, e.Status, e.Body)
}

// User is the remote identity created for a player.
type User struct {
	ID string `json:"id"`
}

// Conversation is a remote conversation handle.
type Conversation struct {
	ID string `json:"id"`
}

// Message is one conversation message. The backend returns messages newest
// first.
type Message struct {
	ID      string          `json:"id"`
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// Text extracts the payload's text field. The second return is false when
// the payload carries no text (card, image, etc).
func (m Message) Text() (string, bool) {
	var payload struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(m.Payload, &payload); err != nil || payload.Text == nil {
		return "", false
	}
	return *payload.Text, true
}

// Client talks to the hosted chat backend's webhook API.
type Client struct {
	baseURL    string
	webhookID  string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient builds a client for one webhook. baseURL is the API root without
// the webhook id segment.
func NewClient(baseURL, webhookID string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		webhookID:  webhookID,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s/%s%s", c.baseURL, c.webhookID, path)
}

func (c *Client) do(ctx context.Context, op, method, path, chatKey string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if chatKey != "" {
		req.Header.Set(chatKeyHeader, chatKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WithFields(logrus.Fields{
			"op":     op,
			"status": resp.StatusCode,
			"body":   string(respBody),
		}).Error("Backend call failed")
		return &BackendError{Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", op, err)
		}
	}
	return nil
}

// CreateUser registers the player with the backend using its UUID as the
// foreign id and returns the user plus the chat key that authenticates the
// rest of the session.
func (c *Client) CreateUser(ctx context.Context, playerUUID string) (User, string, error) {
	var result struct {
		Key  string `json:"key"`
		User User   `json:"user"`
	}
	body := map[string]string{"fid": playerUUID}
	if err := c.do(ctx, "create user", http.MethodPost, "/users", "", body, &result); err != nil {
		return User{}, "", err
	}
	return result.User, result.Key, nil
}

// CreateConversation opens a conversation authenticated with chatKey.
func (c *Client) CreateConversation(ctx context.Context, chatKey string) (Conversation, error) {
	var result struct {
		Conversation Conversation `json:"conversation"`
	}
	if err := c.do(ctx, "create conversation", http.MethodPost, "/conversations", chatKey, struct{}{}, &result); err != nil {
		return Conversation{}, err
	}
	return result.Conversation, nil
}

// CreateMessage posts a text message into a conversation.
func (c *Client) CreateMessage(ctx context.Context, chatKey, conversationID, text string) error {
	body := map[string]interface{}{
		"conversationId": conversationID,
		"payload": map[string]string{
			"type": "text",
			"text": text,
		},
	}
	return c.do(ctx, "create message", http.MethodPost, "/messages", chatKey, body, nil)
}

// ListMessages fetches the full message list for a conversation, newest
// first.
func (c *Client) ListMessages(ctx context.Context, chatKey, conversationID string) ([]Message, error) {
	var result struct {
		Messages []Message `json:"messages"`
	}
	path := fmt.Sprintf("/conversations/%s/messages", conversationID)
	if err := c.do(ctx, "list messages", http.MethodGet, path, chatKey, nil, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}
