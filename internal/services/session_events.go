package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const sessionChannelPrefix = "session:user:"

type SessionEventType string

const (
	SessionSignedIn        SessionEventType = "signed_in"
	SessionSignedOut       SessionEventType = "signed_out"
	SessionRefreshed       SessionEventType = "refreshed"
	SessionPasswordChanged SessionEventType = "password_changed"
	SessionDeactivated     SessionEventType = "deactivated"
)

// SessionEvent tells a user's open clients that their session state changed.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	UserID    string           `json:"userId"`
	Timestamp time.Time        `json:"timestamp"`
}

// SessionPublisher is what the session service needs from the event bus.
type SessionPublisher interface {
	Publish(ctx context.Context, event SessionEvent) error
}

// Subscription delivers events for one user until Close is called.
type Subscription struct {
	C <-chan SessionEvent

	c      chan SessionEvent
	userID string
	bus    *SessionEventBus
	once   sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.unsubscribe(s) })
}

// SessionEventBus fans session events out to local subscribers. With a Redis
// client, events travel through pub/sub so every instance sees them.
type SessionEventBus struct {
	client *redis.Client

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewSessionEventBus returns a bus. client may be nil for a single instance.
func NewSessionEventBus(client *redis.Client) *SessionEventBus {
	return &SessionEventBus{client: client, subs: make(map[string]map[*Subscription]struct{})}
}

func sessionChannel(userID string) string {
	return sessionChannelPrefix + userID
}

func (b *SessionEventBus) Publish(ctx context.Context, event SessionEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if b.client == nil {
		b.fanOut(event)
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, sessionChannel(event.UserID), data).Err(); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// Subscribe registers a local listener for userID.
func (b *SessionEventBus) Subscribe(userID string) *Subscription {
	c := make(chan SessionEvent, 8)
	sub := &Subscription{C: c, c: c, userID: userID, bus: b}

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*Subscription]struct{})
	}
	b.subs[userID][sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *SessionEventBus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.userID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.userID)
		}
	}
	close(sub.c)
}

func (b *SessionEventBus) fanOut(event SessionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[event.UserID] {
		select {
		case sub.c <- event:
		default:
			// slow consumer; it will resync on its next request
			log.Warn().Str("user_id", event.UserID).Msg("dropping session event for slow subscriber")
		}
	}
}

// Start subscribes to the Redis pattern and returns once the subscription is
// confirmed. The listener reconnects with backoff until ctx is cancelled.
func (b *SessionEventBus) Start(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	pubsub := b.client.PSubscribe(ctx, sessionChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe session events: %w", err)
	}
	log.Info().Str("pattern", sessionChannelPrefix+"*").Msg("session event subscriber started")
	go b.run(ctx, pubsub)
	return nil
}

func (b *SessionEventBus) run(ctx context.Context, pubsub *redis.PubSub) {
	backoff := time.Second
	for {
		err := b.listen(ctx, pubsub)
		pubsub.Close()
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Dur("backoff", backoff).Msg("session event subscriber error")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		pubsub = b.client.PSubscribe(ctx, sessionChannelPrefix+"*")
	}
}

func (b *SessionEventBus) listen(ctx context.Context, pubsub *redis.PubSub) error {
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		var event SessionEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("malformed session event")
			continue
		}
		if event.UserID == "" {
			event.UserID = strings.TrimPrefix(msg.Channel, sessionChannelPrefix)
		}
		b.fanOut(event)
	}
}
