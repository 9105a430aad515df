// Package engine implements the box/playback state machine. It runs only on
// the node currently holding leadership and is the sole writer of playback
// transitions and song-lifecycle fields. Every mutation is best-effort
// idempotent: two briefly-overlapping leaders cannot corrupt state beyond
// what the next health-check cycle repairs.
package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"youniverse/internal/commentary"
	"youniverse/internal/middleware"
	"youniverse/internal/models"
	"youniverse/internal/notifications"
	"youniverse/internal/observability"
	"youniverse/internal/repository"
)

// Config carries the engine tunables. Box size and voting window are the two
// knobs that used to be forked station modes.
type Config struct {
	BoxSize          int
	StickyBox        bool
	VotingWindow     time.Duration
	RoundDebounce    time.Duration
	PostSongDelay    time.Duration
	EmptyRetry       time.Duration
	ZombieMargin     time.Duration
	DebutThreshold   int
	DebutRetryWindow time.Duration
	UserVoteWeight   int
	SimVoteInterval  time.Duration
}

// Engine drives the perpetual radio loop.
type Engine struct {
	songs      repository.SongRepository
	profiles   repository.ProfileRepository
	broadcasts repository.BroadcastRepository
	votes      repository.VoteRepository
	notifier   *notifications.Notifier
	commentary commentary.Generator
	cfg        Config
	log        *observability.EngineLogger

	// now and rng are swappable for tests.
	now func() time.Time
	rng *rand.Rand

	mu             sync.Mutex
	lastRoundStart time.Time
	rebooting      bool
}

// New creates an Engine. It does nothing until Start is called with a leader
// context.
func New(
	songs repository.SongRepository,
	profiles repository.ProfileRepository,
	broadcasts repository.BroadcastRepository,
	votes repository.VoteRepository,
	notifier *notifications.Notifier,
	gen commentary.Generator,
	cfg Config,
	log *observability.EngineLogger,
) *Engine {
	return &Engine{
		songs:      songs,
		profiles:   profiles,
		broadcasts: broadcasts,
		votes:      votes,
		notifier:   notifier,
		commentary: gen,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start launches the leader-only background loops: the simulation tick that
// watches for song end and voting deadline, and the simulated crowd. Both die
// when ctx is cancelled (demotion or shutdown). Called from the elector's
// OnElected hook.
func (e *Engine) Start(ctx context.Context) {
	e.log.LogTransition(ctx, "engine_started", nil)

	// A fresh leader first repairs whatever the previous one left behind.
	e.CheckRadioHealth(ctx)

	go e.tickLoop(ctx)
	go e.simVoteLoop(ctx)
}

// tickLoop is the leader's 1-second pulse: it detects end-of-track and
// voting-window expiry from persisted state alone, so a leader elected
// mid-round resumes the previous leader's deadlines.
func (e *Engine) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	record, err := e.broadcasts.Get(ctx)
	if err != nil {
		e.log.LogError(ctx, "tick_read", err)
		return
	}

	now := e.now()

	if record.Playing() {
		song, err := e.songs.GetByID(ctx, *record.CurrentSongID)
		if err != nil {
			e.log.LogError(ctx, "tick_song_read", err)
			return
		}
		if record.Elapsed(now) >= song.Duration() {
			e.HandleSongEnd(ctx, song.ID)
			return
		}
	}

	if record.PlaybackState == models.StateBoxVoting && record.RoundStartedAt != nil {
		deadline := record.RoundStartedAt.Add(e.cfg.VotingWindow)
		if now.After(deadline) {
			if err := e.EndVotingRound(ctx); err != nil {
				e.log.LogError(ctx, "end_voting_round", err)
			}
		}
	}
}

// simVoteLoop keeps rounds advancing when no real listener votes: background
// weight 1-5 against the user weight of 10 keeps outcomes steerable by people.
func (e *Engine) simVoteLoop(ctx context.Context) {
	if e.cfg.SimVoteInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.SimVoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.castSimulatedVote(ctx)
		}
	}
}

func (e *Engine) castSimulatedVote(ctx context.Context) {
	record, err := e.broadcasts.Get(ctx)
	if err != nil || record.PlaybackState != models.StateBoxVoting {
		return
	}
	candidates, err := e.songs.GetByStatus(ctx, models.SongStatusInBox)
	if err != nil || len(candidates) == 0 {
		return
	}

	pick := candidates[e.rng.Intn(len(candidates))]
	weight := 1 + e.rng.Intn(5)
	if err := e.votes.CastSimulatedVote(ctx, models.RoundKey(candidates), pick.ID, weight); err != nil {
		e.log.LogError(ctx, "sim_vote", err)
		return
	}
	middleware.VotesCast.WithLabelValues("simulated").Inc()
}

// narrate asks the commentary generator for a line and publishes it as a site
// command. Generation failures are invisible: the generator already degrades
// to a deterministic fallback, and publish errors are logged and dropped.
func (e *Engine) narrate(ctx context.Context, event string, c commentary.Context) {
	line, err := e.commentary.Line(ctx, event, c)
	if err != nil || line == "" {
		line = commentary.Fallback(event, c)
	}

	cmd := models.SiteCommand{
		Type:      "dj_line",
		Payload:   line,
		Timestamp: e.now(),
	}
	if err := e.broadcasts.SetSiteCommand(ctx, cmd); err != nil {
		e.log.LogError(ctx, "narrate_persist", err)
		return
	}
	if err := e.notifier.PublishSiteCommand(ctx, line); err != nil {
		e.log.LogError(ctx, "narrate_publish", err)
	}
}

// scheduleRoundStart arms a one-shot delayed round start bound to the leader
// context, so a demoted leader's pending timers fire into a cancelled context
// and do nothing.
func (e *Engine) scheduleRoundStart(ctx context.Context, delay time.Duration) {
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			if err := e.StartNextRound(ctx); err != nil {
				e.log.LogError(ctx, "scheduled_round_start", err)
			}
		}
	}()
}

// publishBroadcast pushes a change notification; errors are logged, never fatal.
func (e *Engine) publishBroadcast(ctx context.Context, kind string, songID uint) {
	if err := e.notifier.PublishBroadcastChanged(ctx, kind, songID); err != nil {
		e.log.LogError(ctx, "publish_broadcast", err)
	}
}

func (e *Engine) publishSong(ctx context.Context, kind string, songID uint) {
	if err := e.notifier.PublishSongChanged(ctx, kind, songID); err != nil {
		e.log.LogError(ctx, "publish_song", err)
	}
}
