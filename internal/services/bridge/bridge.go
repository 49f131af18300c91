package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/minebot-bridge-go/internal/models"
	"github.com/minebot-bridge-go/internal/services/botpress"
	"github.com/minebot-bridge-go/internal/services/session"
	"github.com/sirupsen/logrus"
)

// ErrReplyTimeout means the poll window elapsed without a qualifying new bot
// message.
var ErrReplyTimeout = errors.New("timed out waiting for bot reply")

// Options tune the poll loop. Zero values pick production defaults; Now and
// Sleep exist so tests can run the loop without real waiting.
type Options struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	Now          func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
}

const (
	defaultPollInterval = time.Second
	defaultPollTimeout  = 30 * time.Second
)

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type playerLock struct {
	mu   sync.Mutex
	refs int
}

// Bridge sends a message into a session's conversation and polls for the
// next bot reply. Calls for the same player UUID are serialized with a keyed
// mutex so overlapping requests cannot race on the session's last-seen
// message id; different players proceed independently.
type Bridge struct {
	client *botpress.Client
	store  *session.Store
	opts   Options
	logger *logrus.Logger

	mu    sync.Mutex
	locks map[string]*playerLock
}

// New builds a bridge with defaults filled in.
func New(client *botpress.Client, store *session.Store, opts Options, logger *logrus.Logger) *Bridge {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Bridge{
		client: client,
		store:  store,
		opts:   opts,
		logger: logger,
		locks:  make(map[string]*playerLock),
	}
}

func (b *Bridge) acquire(playerUUID string) func() {
	b.mu.Lock()
	l, ok := b.locks[playerUUID]
	if !ok {
		l = &playerLock{}
		b.locks[playerUUID] = l
	}
	l.refs++
	b.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		b.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(b.locks, playerUUID)
		}
		b.mu.Unlock()
	}
}

// AwaitReply sends message into the session's conversation and polls until a
// bot message newer than the one last delivered appears, or the timeout
// elapses. The timeout is wall-clock from the send, independent of how many
// poll attempts fit inside it.
func (b *Bridge) AwaitReply(ctx context.Context, playerUUID string, sess *models.Session, message string) (string, error) {
	release := b.acquire(playerUUID)
	defer release()

	previousLastSeen := sess.LastSeenMessageID

	if err := b.client.CreateMessage(ctx, sess.ChatKey, sess.ConversationID, message); err != nil {
		return "", err
	}

	deadline := b.opts.Now().Add(b.opts.PollTimeout)
	for {
		if err := b.opts.Sleep(ctx, b.opts.PollInterval); err != nil {
			return "", err
		}
		if b.opts.Now().After(deadline) {
			b.logger.WithField("playerUUID", playerUUID).Warn("No bot reply within poll window")
			return "", ErrReplyTimeout
		}

		messages, err := b.client.ListMessages(ctx, sess.ChatKey, sess.ConversationID)
		if err != nil {
			return "", err
		}

		reply, ok := newestBotMessage(messages, sess.UserID)
		if !ok || reply.ID == previousLastSeen {
			continue
		}

		sess.LastSeenMessageID = reply.ID
		b.store.Touch(playerUUID, sess)

		if text, ok := reply.Text(); ok {
			return text, nil
		}
		// Non-text payloads are passed through raw so the validator can
		// still try a structured parse.
		return string(reply.Payload), nil
	}
}

// newestBotMessage picks the most recent message not authored by the player.
// The backend lists messages newest first.
func newestBotMessage(messages []botpress.Message, playerUserID string) (botpress.Message, bool) {
	for _, m := range messages {
		if m.UserID != playerUserID {
			return m, true
		}
	}
	return botpress.Message{}, false
}
