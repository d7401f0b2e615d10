package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) SessionEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return SessionEvent{}
	}
}

func TestSessionEventBus_Local(t *testing.T) {
	bus := NewSessionEventBus(nil)
	require.NoError(t, bus.Start(context.Background()))

	alice := bus.Subscribe("alice")
	bob := bus.Subscribe("bob")
	defer bob.Close()

	require.NoError(t, bus.Publish(context.Background(), SessionEvent{Type: SessionSignedOut, UserID: "alice"}))

	ev := receive(t, alice)
	assert.Equal(t, SessionSignedOut, ev.Type)
	assert.False(t, ev.Timestamp.IsZero())

	select {
	case ev := <-bob.C:
		t.Fatalf("bob received %v", ev)
	default:
	}

	alice.Close()
	alice.Close()
	_, open := <-alice.C
	assert.False(t, open)
}

func TestSessionEventBus_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// two buses on one Redis behave like two server instances
	a := NewSessionEventBus(client)
	b := NewSessionEventBus(client)
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	sub := b.Subscribe("user-1")
	defer sub.Close()

	require.NoError(t, a.Publish(ctx, SessionEvent{Type: SessionPasswordChanged, UserID: "user-1"}))

	ev := receive(t, sub)
	assert.Equal(t, SessionPasswordChanged, ev.Type)
	assert.Equal(t, "user-1", ev.UserID)
}

func TestSessionEventBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewSessionEventBus(nil)
	sub := bus.Subscribe("u")
	defer sub.Close()

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(context.Background(), SessionEvent{Type: SessionRefreshed, UserID: "u"}))
	}
	assert.Len(t, sub.C, cap(sub.C))
}
