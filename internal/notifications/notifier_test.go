package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupNotifier(t *testing.T) *Notifier {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewNotifier(rdb)
}

func TestNotifier_BroadcastRoundtrip(t *testing.T) {
	n := setupNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 1)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(channel, payload string) {
		received <- payload
	}))

	// PSubscribe needs a moment to attach before the publish.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, n.PublishBroadcastChanged(ctx, "now-playing-changed", 42))

	select {
	case payload := <-received:
		var ev ChangeEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))
		assert.Equal(t, "now-playing-changed", ev.Kind)
		assert.Equal(t, uint(42), ev.SongID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestNotifier_SiteCommandRoundtrip(t *testing.T) {
	n := setupNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 1)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(channel, payload string) {
		if channel == ChannelCommand {
			received <- payload
		}
	}))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, n.PublishSiteCommand(ctx, "The Box is open."))

	select {
	case payload := <-received:
		assert.Equal(t, "The Box is open.", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestNotifier_NilRedisIsNoOp(t *testing.T) {
	n := NewNotifier(nil)
	ctx := context.Background()

	// Single-node deployments run without Redis; everything degrades quietly.
	assert.NoError(t, n.PublishBroadcastChanged(ctx, "now-playing-changed", 1))
	assert.NoError(t, n.PublishSongChanged(ctx, "song-uploaded", 1))
	assert.NoError(t, n.PublishSiteCommand(ctx, "line"))
	assert.NoError(t, n.StartPatternSubscriber(ctx, func(string, string) {}))
}
