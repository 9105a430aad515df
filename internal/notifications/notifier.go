package notifications

import (
	"context"
	"encoding/json"
	"log"
	"runtime/debug"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pub/sub channels. The game engine publishes on every broadcast-record or
// song-store mutation; every node's sync client and websocket hub subscribe.
const (
	ChannelBroadcast = "radio:broadcast"
	ChannelSongs     = "radio:songs"
	ChannelCommand   = "radio:command"
)

// ChangeEvent is the payload pushed on a mutation. Observers re-read the
// authoritative row; the event only says that something changed and why.
type ChangeEvent struct {
	Kind      string    `json:"kind"`
	SongID    uint      `json:"song_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier provides helpers to publish change notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishBroadcastChanged signals that the broadcast record was mutated.
func (n *Notifier) PublishBroadcastChanged(ctx context.Context, kind string, songID uint) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(ChangeEvent{Kind: kind, SongID: songID, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, ChannelBroadcast, payload).Err()
}

// PublishSongChanged signals a song-store mutation (status, stars, counters).
func (n *Notifier) PublishSongChanged(ctx context.Context, kind string, songID uint) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(ChangeEvent{Kind: kind, SongID: songID, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, ChannelSongs, payload).Err()
}

// PublishSiteCommand fans a one-shot site command out to observers.
func (n *Notifier) PublishSiteCommand(ctx context.Context, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, ChannelCommand, payload).Err()
}

// StartPatternSubscriber subscribes to the radio channels and calls onMessage
// for each incoming message. onMessage receives channel and payload.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "radio:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in PatternSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
