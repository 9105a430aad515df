package engine

import (
	"context"
	"time"

	"youniverse/internal/commentary"
	"youniverse/internal/middleware"
	"youniverse/internal/models"
)

// upsellChance is the probability of tacking a premium-upsell line onto an
// ordinary song end. Cosmetic only.
const upsellChance = 0.15

// HandleSongEnd resolves the song that just finished and advances the loop.
// Leader-only; stale events (a follower reporting an already-replaced song)
// are ignored.
func (e *Engine) HandleSongEnd(ctx context.Context, songID uint) {
	record, err := e.broadcasts.Get(ctx)
	if err != nil {
		e.log.LogError(ctx, "song_end_read", err)
		return
	}
	if record.CurrentSongID == nil || *record.CurrentSongID != songID {
		return
	}

	song, err := e.songs.GetByID(ctx, songID)
	if err != nil {
		e.log.LogError(ctx, "song_end_song_read", err)
		return
	}

	roundActive := record.RoundStartedAt != nil
	nextID := record.NextSongID

	switch {
	case song.Status == models.SongStatusDebut:
		if err := e.resolveDebut(ctx, song); err != nil {
			e.log.LogError(ctx, "resolve_debut", err)
		}

	case song.Source == models.SongSourceAnnouncement:
		// Announcement clips play once and are never re-queued.
		if err := e.songs.UpdateFields(ctx, song.ID, map[string]interface{}{
			"status": models.SongStatusGraveyard,
		}); err != nil {
			e.log.LogError(ctx, "retire_announcement", err)
		}

	default:
		if err := e.songs.UpdateFields(ctx, song.ID, map[string]interface{}{
			"status": models.SongStatusPool,
		}); err != nil {
			e.log.LogError(ctx, "song_end_pool", err)
		}
		e.narrate(ctx, commentary.EventSongEnd, commentary.Context{
			SongTitle:  song.Title,
			ArtistName: song.ArtistName,
		})
		if e.rng.Float64() < upsellChance {
			e.narrate(ctx, commentary.EventUpsell, commentary.Context{})
		}
	}

	if err := e.broadcasts.UpdateFields(ctx, map[string]interface{}{
		"current_song_id": nil,
		"next_song_id":    nil,
		"song_started_at": nil,
		"playback_state":  models.StateDJTalking,
	}); err != nil {
		e.log.LogError(ctx, "song_end_clear", err)
	}
	e.publishBroadcast(ctx, "song-ended", songID)

	// A still-open box crowns immediately. Otherwise the staged next-play
	// slot takes the air, and only then does a fresh round get scheduled.
	if roundActive {
		if err := e.EndVotingRound(ctx); err != nil {
			e.log.LogError(ctx, "end_voting_round", err)
		}
		return
	}
	if nextID != nil && e.playStaged(ctx, *nextID) {
		return
	}
	e.scheduleRoundStart(ctx, e.cfg.PostSongDelay)
}

// CheckRadioHealth detects and repairs the two persisted failure classes
// without external input: zombie playback claims and an empty broadcast. It
// also resumes an expired voting window, which is how a leader elected
// mid-round inherits the previous leader's deadline. Invoked on every
// heartbeat while leading.
func (e *Engine) CheckRadioHealth(ctx context.Context) {
	record, err := e.broadcasts.Get(ctx)
	if err != nil {
		e.log.LogError(ctx, "health_read", err)
		return
	}

	now := e.now()

	if record.PlaybackState == models.StateReboot {
		return
	}

	if record.CurrentSongID != nil && record.SongStartedAt != nil {
		song, err := e.songs.GetByID(ctx, *record.CurrentSongID)
		if err != nil {
			e.log.LogError(ctx, "health_song_read", err)
			return
		}
		if record.Elapsed(now) > song.Duration()+e.cfg.ZombieMargin {
			e.log.LogRecovery(ctx, "zombie_playback", map[string]interface{}{
				"song_id": song.ID,
				"elapsed": record.Elapsed(now).Seconds(),
			})
			middleware.HealthRecoveries.WithLabelValues("zombie").Inc()
			e.HandleSongEnd(ctx, song.ID)
			return
		}
	} else {
		e.log.LogRecovery(ctx, "empty_broadcast", nil)
		middleware.HealthRecoveries.WithLabelValues("empty_broadcast").Inc()
		if err := e.StartNextRound(ctx); err != nil {
			e.log.LogError(ctx, "health_round_start", err)
		}
		return
	}

	if record.PlaybackState == models.StateBoxVoting && record.RoundStartedAt != nil {
		if now.After(record.RoundStartedAt.Add(e.cfg.VotingWindow)) {
			middleware.HealthRecoveries.WithLabelValues("stale_round").Inc()
			if err := e.EndVotingRound(ctx); err != nil {
				e.log.LogError(ctx, "health_end_round", err)
			}
		}
	}
}

// Reboot is the administrative hard reset: everything non-graveyard returns
// to the pool and the cycle restarts. Reentrancy-guarded so concurrent
// triggers collapse into one effective reset.
func (e *Engine) Reboot(ctx context.Context) error {
	e.mu.Lock()
	if e.rebooting {
		e.mu.Unlock()
		return nil
	}
	e.rebooting = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.rebooting = false
		e.mu.Unlock()
	}()

	e.log.LogTransition(ctx, "reboot", nil)

	if err := e.broadcasts.UpdateFields(ctx, map[string]interface{}{
		"playback_state": models.StateReboot,
	}); err != nil {
		return err
	}
	e.publishBroadcast(ctx, "reboot", 0)

	if _, err := e.songs.UpdateStatusAll(ctx, []string{
		models.SongStatusInBox,
		models.SongStatusNowPlaying,
		models.SongStatusNextPlay,
		models.SongStatusDebut,
	}, models.SongStatusPool); err != nil {
		return err
	}

	if err := e.broadcasts.UpdateFields(ctx, map[string]interface{}{
		"current_song_id":  nil,
		"next_song_id":     nil,
		"song_started_at":  nil,
		"round_started_at": nil,
		"playback_state":   models.StateIdle,
	}); err != nil {
		return err
	}

	e.narrate(ctx, commentary.EventReboot, commentary.Context{})

	// Reset the debounce so the restart is immediate.
	e.mu.Lock()
	e.lastRoundStart = time.Time{}
	e.mu.Unlock()

	return e.StartNextRound(ctx)
}
