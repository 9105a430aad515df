package radiosync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"youniverse/internal/models"
	"youniverse/internal/notifications"
	"youniverse/internal/repository"
)

// Event kinds surfaced to the embedding process (UI, terminal listener, logs).
const (
	EventNowPlayingChanged = "now-playing-changed"
	EventRadioStateChanged = "radio-state-changed"
	EventPlaybackChanged   = "playback-state-changed"
	EventTimeUpdate        = "time-update"
	EventSongEnded         = "song-ended"
	EventVolumeChanged     = "volume-changed"
	EventLeaderChanged     = "leader-changed"
	EventAutoplayBlocked   = "autoplay-blocked"
	EventSiteCommand       = "site-command"
)

// driftTolerance is how far local playback may wander from the shared
// timeline before a hard seek. Below it, minor jitter is left alone because
// constant seeking sounds worse than half a second of drift.
const driftTolerance = 2 * time.Second

// timeUpdateThrottle caps how often EventTimeUpdate fires.
const timeUpdateThrottle = time.Second

// Event is a sync-client observation delivered to the OnEvent callback.
type Event struct {
	Type     string
	SongID   uint
	State    string
	Position time.Duration
	Payload  string
}

// Client reconciles a Player against the broadcast record. It never mutates
// shared state: followers and leaders alike only read here.
type Client struct {
	broadcasts repository.BroadcastRepository
	songs      repository.SongRepository
	notifier   *notifications.Notifier
	player     Player
	logger     *slog.Logger

	// OnEvent, if set, receives every observation. Called from the client
	// goroutine; keep it fast.
	OnEvent func(Event)

	// now is swappable for tests.
	now func() time.Time

	mu            sync.Mutex
	currentSongID uint
	lastState     string
	lastLeaderID  string
	lastCommandAt time.Time
	lastTimeEmit  time.Time
	muted         bool
	volume        float64
}

// NewClient creates a sync client around the given player.
func NewClient(
	broadcasts repository.BroadcastRepository,
	songs repository.SongRepository,
	notifier *notifications.Notifier,
	player Player,
	logger *slog.Logger,
) *Client {
	return &Client{
		broadcasts: broadcasts,
		songs:      songs,
		notifier:   notifier,
		player:     player,
		logger:     logger,
		now:        time.Now,
		volume:     1.0,
	}
}

// Run subscribes to change notifications and polls as a fallback until ctx is
// cancelled. Notifications trigger an immediate reconcile; the poll catches
// anything lost while the subscription was down.
func (c *Client) Run(ctx context.Context) error {
	if c.notifier != nil {
		err := c.notifier.StartPatternSubscriber(ctx, func(channel, payload string) {
			c.Reconcile(ctx)
		})
		if err != nil {
			return err
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	c.Reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Reconcile(ctx)
		}
	}
}

// Reconcile reads the broadcast record and drives the player toward it. Safe
// to call concurrently; internal state is guarded.
func (c *Client) Reconcile(ctx context.Context) {
	record, err := c.broadcasts.Get(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "radiosync: failed to read broadcast record",
			slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.observeLeader(record)
	c.observeState(record)
	c.observeCommand(record)

	if !record.Playing() {
		if c.currentSongID != 0 {
			prev := c.currentSongID
			c.currentSongID = 0
			if err := c.player.Pause(ctx); err != nil {
				c.logger.ErrorContext(ctx, "radiosync: pause failed", slog.String("error", err.Error()))
			}
			c.emit(Event{Type: EventSongEnded, SongID: prev})
		}
		return
	}

	target := record.Elapsed(c.now())

	if *record.CurrentSongID != c.currentSongID {
		c.loadAndPlay(ctx, record, target)
		return
	}

	pos, err := c.player.Position(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "radiosync: position read failed", slog.String("error", err.Error()))
		return
	}

	drift := pos - target
	if drift < 0 {
		drift = -drift
	}
	if drift > driftTolerance {
		if err := c.player.Seek(ctx, target); err != nil {
			c.logger.ErrorContext(ctx, "radiosync: drift correction seek failed", slog.String("error", err.Error()))
			return
		}
		c.logger.InfoContext(ctx, "radiosync: corrected drift",
			slog.Duration("drift", drift),
			slog.Uint64("song_id", uint64(c.currentSongID)))
		pos = target
	}

	if c.now().Sub(c.lastTimeEmit) >= timeUpdateThrottle {
		c.lastTimeEmit = c.now()
		c.emit(Event{Type: EventTimeUpdate, SongID: c.currentSongID, Position: pos})
	}
}

// loadAndPlay switches the player to the record's current song and joins the
// shared timeline at its live position, not at the beginning.
func (c *Client) loadAndPlay(ctx context.Context, record *models.BroadcastRecord, target time.Duration) {
	song, err := c.songs.GetByID(ctx, *record.CurrentSongID)
	if err != nil {
		c.logger.ErrorContext(ctx, "radiosync: failed to load song row", slog.String("error", err.Error()))
		return
	}

	if err := c.player.Load(ctx, song.AudioURL); err != nil {
		c.logger.ErrorContext(ctx, "radiosync: player load failed", slog.String("error", err.Error()))
		return
	}
	if target > 0 {
		if err := c.player.Seek(ctx, target); err != nil {
			c.logger.ErrorContext(ctx, "radiosync: join seek failed", slog.String("error", err.Error()))
		}
	}

	if err := c.player.Play(ctx); err != nil {
		if err == ErrAutoplayBlocked {
			// Start muted so the timeline keeps advancing; the embedder can
			// unmute on the first user gesture.
			c.muted = true
			if verr := c.player.SetVolume(ctx, 0); verr == nil {
				if perr := c.player.Play(ctx); perr != nil {
					c.logger.ErrorContext(ctx, "radiosync: muted play failed", slog.String("error", perr.Error()))
				}
			}
			c.emit(Event{Type: EventAutoplayBlocked, SongID: song.ID})
		} else {
			c.logger.ErrorContext(ctx, "radiosync: play failed", slog.String("error", err.Error()))
			return
		}
	}

	c.currentSongID = song.ID
	c.lastTimeEmit = c.now()
	c.emit(Event{Type: EventNowPlayingChanged, SongID: song.ID, Position: target})
}

// Unmute restores audible playback after an autoplay block.
func (c *Client) Unmute(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.muted {
		return nil
	}
	if err := c.player.SetVolume(ctx, c.volume); err != nil {
		return err
	}
	c.muted = false
	c.emit(Event{Type: EventVolumeChanged})
	return nil
}

// SetVolume adjusts the target volume; applied immediately unless muted.
func (c *Client) SetVolume(ctx context.Context, volume float64) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = volume
	if c.muted {
		return nil
	}
	if err := c.player.SetVolume(ctx, volume); err != nil {
		return err
	}
	c.emit(Event{Type: EventVolumeChanged})
	return nil
}

// CurrentSongID returns the song the client believes is on air, zero if none.
func (c *Client) CurrentSongID() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSongID
}

func (c *Client) observeLeader(record *models.BroadcastRecord) {
	if record.LeaderID != c.lastLeaderID {
		c.lastLeaderID = record.LeaderID
		c.emit(Event{Type: EventLeaderChanged, Payload: record.LeaderID})
	}
}

func (c *Client) observeState(record *models.BroadcastRecord) {
	if record.PlaybackState != c.lastState {
		c.lastState = record.PlaybackState
		c.emit(Event{Type: EventRadioStateChanged, State: record.PlaybackState})
	}
}

// observeCommand surfaces a fresh site command at most once. Stale commands
// are skipped entirely so a late joiner does not replay an old announcement.
func (c *Client) observeCommand(record *models.BroadcastRecord) {
	cmd := record.SiteCommand()
	if cmd == nil {
		return
	}
	if cmd.IsStale(c.now()) {
		return
	}
	if !cmd.Timestamp.After(c.lastCommandAt) {
		return
	}
	c.lastCommandAt = cmd.Timestamp
	c.emit(Event{Type: EventSiteCommand, Payload: cmd.Payload})
}

func (c *Client) emit(ev Event) {
	if c.OnEvent != nil {
		c.OnEvent(ev)
	}
}
