package engine

import (
	"context"

	"youniverse/internal/commentary"
	"youniverse/internal/middleware"
	"youniverse/internal/models"
)

// StartNextRound opens the next play cycle: staged announcements first, then
// priority debuts, then the regular box round. Debounced so duplicate
// triggers from concurrent event sources collapse into one transition.
func (e *Engine) StartNextRound(ctx context.Context) error {
	e.mu.Lock()
	now := e.now()
	if now.Sub(e.lastRoundStart) < e.cfg.RoundDebounce {
		e.mu.Unlock()
		e.log.LogTransition(ctx, "round_start_debounced", nil)
		return nil
	}
	e.lastRoundStart = now
	e.mu.Unlock()

	record, err := e.broadcasts.Get(ctx)
	if err != nil {
		return err
	}

	// An open round resolves through EndVotingRound; stacking a second start
	// here would penalize a box that never tallied.
	if record.RoundStartedAt != nil {
		e.log.LogTransition(ctx, "round_already_open", nil)
		return nil
	}

	// Staged clips (DJ announcements) jump the queue entirely. With a song on
	// air the clip takes the next-play slot instead, so it preempts the box
	// as soon as the air clears.
	staged, err := e.songs.GetByStatus(ctx, models.SongStatusNextPlay)
	if err != nil {
		return err
	}
	if len(staged) > 0 {
		if record.Playing() {
			return e.stageNext(ctx, record, staged[0])
		}
		return e.playDirect(ctx, staged[0], models.StateDJTalking)
	}

	// Priority debuts bypass the box: first-ever uploads and second chances
	// inside the retry window play immediately, rated live. With a song on
	// air the debut is staged rather than skipped.
	debut, err := e.pickQueuedDebut(ctx, record)
	if err != nil {
		return err
	}
	if debut != nil {
		if record.Playing() {
			return e.stageNext(ctx, record, debut)
		}
		return e.playDebut(ctx, debut)
	}

	survivors, err := e.penalizeLosers(ctx, record)
	if err != nil {
		return err
	}

	candidates, err := e.selectBoxCandidates(ctx, survivors, e.cfg.BoxSize, record)
	if err != nil {
		return err
	}

	if len(candidates) == 0 {
		if !record.Playing() {
			if err := e.broadcasts.UpdateFields(ctx, map[string]interface{}{
				"playback_state":   models.StateIdle,
				"current_song_id":  nil,
				"song_started_at":  nil,
				"round_started_at": nil,
			}); err != nil {
				return err
			}
			e.narrate(ctx, commentary.EventEmptyPool, commentary.Context{})
			e.publishBroadcast(ctx, "station-idle", 0)
			e.scheduleRoundStart(ctx, e.cfg.EmptyRetry)
		}
		return nil
	}

	// With nothing on air the first candidate plays immediately and only the
	// rest go into the box.
	if !record.Playing() {
		first := candidates[0]
		if err := e.playDirect(ctx, first, models.StateBoxVoting); err != nil {
			return err
		}
		rest := make([]*models.Song, 0, len(candidates)-1)
		for _, c := range candidates[1:] {
			if c.ID != first.ID {
				rest = append(rest, c)
			}
		}
		candidates = rest
	}

	boxIDs := e.placeInBox(ctx, candidates)
	if len(boxIDs) == 0 {
		// Single-song catalog: something is playing but there is nothing to
		// vote on. Stay in now_playing until more songs arrive.
		return e.broadcasts.UpdateFields(ctx, map[string]interface{}{
			"playback_state":   models.StateNowPlaying,
			"round_started_at": nil,
		})
	}

	if err := e.broadcasts.UpdateFields(ctx, map[string]interface{}{
		"playback_state":   models.StateBoxVoting,
		"round_started_at": now,
	}); err != nil {
		return err
	}

	middleware.RoundsStarted.Inc()
	e.log.LogTransition(ctx, "round_started", map[string]interface{}{
		"candidates": boxIDs,
	})
	e.narrate(ctx, commentary.EventRoundStart, commentary.Context{})
	e.publishBroadcast(ctx, "round-started", 0)
	return nil
}

// stageNext pins a song into the next-play slot. No box opens while the slot
// is occupied; HandleSongEnd plays it as soon as the air clears.
func (e *Engine) stageNext(ctx context.Context, record *models.BroadcastRecord, song *models.Song) error {
	if record.NextSongID != nil && *record.NextSongID == song.ID {
		return nil
	}
	if err := e.broadcasts.UpdateFields(ctx, map[string]interface{}{
		"next_song_id": song.ID,
	}); err != nil {
		return err
	}
	e.log.LogTransition(ctx, "next_play_staged", map[string]interface{}{"song_id": song.ID})
	return nil
}

// playStaged puts the staged next-play song on air. Reports false when the
// slot went stale (the song vanished or was re-statused, e.g. by a reboot),
// in which case the normal round flow resumes.
func (e *Engine) playStaged(ctx context.Context, songID uint) bool {
	next, err := e.songs.GetByID(ctx, songID)
	if err != nil {
		e.log.LogError(ctx, "staged_read", err)
		return false
	}

	var playErr error
	switch next.Status {
	case models.SongStatusDebut:
		playErr = e.playDebut(ctx, next)
	case models.SongStatusNextPlay:
		playErr = e.playDirect(ctx, next, models.StateDJTalking)
	default:
		return false
	}
	if playErr != nil {
		e.log.LogError(ctx, "staged_play", playErr)
		return false
	}
	return true
}

// penalizeLosers applies the deferred penalty to the previous round's
// candidates: minus one star (floored), loss counter up, and back to the pool
// unless the sticky box keeps survivors seated. A song driven to zero stars
// goes straight to the graveyard.
func (e *Engine) penalizeLosers(ctx context.Context, record *models.BroadcastRecord) ([]*models.Song, error) {
	losers, err := e.songs.GetByStatus(ctx, models.SongStatusInBox)
	if err != nil {
		return nil, err
	}

	var survivors []*models.Song
	for _, song := range losers {
		if record.CurrentSongID != nil && song.ID == *record.CurrentSongID {
			continue
		}

		song.Stars = models.ClampStars(song.Stars - 1)
		song.BoxRoundsLost++

		status := models.SongStatusPool
		switch {
		case song.Stars == models.MinStars:
			status = models.SongStatusGraveyard
			middleware.SongsGraveyarded.Inc()
		case e.cfg.StickyBox:
			status = models.SongStatusInBox
		}

		if err := e.songs.UpdateFields(ctx, song.ID, map[string]interface{}{
			"stars":           song.Stars,
			"box_rounds_lost": song.BoxRoundsLost,
			"status":          status,
		}); err != nil {
			return nil, err
		}
		song.Status = status
		e.publishSong(ctx, "song-penalized", song.ID)

		if status == models.SongStatusInBox {
			survivors = append(survivors, song)
		}
	}
	return survivors, nil
}

// selectBoxCandidates fills the round up to n songs: sticky survivors first,
// then the pool, then graveyard revival when the pool is completely
// exhausted, and finally duplicate entries to guarantee the requested count
// whenever at least one song exists. Duplicates mean a song can compete
// against itself under two identities; that matches the observed behavior
// and is kept deliberately.
func (e *Engine) selectBoxCandidates(ctx context.Context, survivors []*models.Song, n int, record *models.BroadcastRecord) ([]*models.Song, error) {
	candidates := make([]*models.Song, 0, n)
	taken := make(map[uint]struct{})

	exclude := uint(0)
	if record.CurrentSongID != nil {
		exclude = *record.CurrentSongID
	}

	for _, s := range survivors {
		if s.ID == exclude {
			continue
		}
		if _, ok := taken[s.ID]; ok {
			continue
		}
		taken[s.ID] = struct{}{}
		candidates = append(candidates, s)
	}

	pool, err := e.songs.GetByStatus(ctx, models.SongStatusPool)
	if err != nil {
		return nil, err
	}
	for _, s := range pool {
		if len(candidates) >= n {
			break
		}
		if s.ID == exclude {
			continue
		}
		if _, ok := taken[s.ID]; ok {
			continue
		}
		taken[s.ID] = struct{}{}
		candidates = append(candidates, s)
	}

	// Pool exhausted entirely: revive from the graveyard rather than going
	// silent. Announcement clips never come back.
	if len(candidates) == 0 {
		revived, err := e.reviveFromGraveyard(ctx, exclude)
		if err != nil {
			return nil, err
		}
		if revived != nil {
			taken[revived.ID] = struct{}{}
			candidates = append(candidates, revived)
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	for i := 0; len(candidates) < n; i++ {
		candidates = append(candidates, candidates[i%len(taken)])
	}
	return candidates, nil
}

func (e *Engine) reviveFromGraveyard(ctx context.Context, exclude uint) (*models.Song, error) {
	buried, err := e.songs.GetByStatus(ctx, models.SongStatusGraveyard)
	if err != nil {
		return nil, err
	}
	for _, s := range buried {
		if s.ID == exclude || s.Source == models.SongSourceAnnouncement {
			continue
		}
		if err := e.songs.UpdateFields(ctx, s.ID, map[string]interface{}{
			"stars":  models.InitialStars,
			"status": models.SongStatusPool,
		}); err != nil {
			return nil, err
		}
		s.Stars = models.InitialStars
		s.Status = models.SongStatusPool
		e.log.LogRecovery(ctx, "graveyard_revival", map[string]interface{}{"song_id": s.ID})
		return s, nil
	}
	return nil, nil
}

// placeInBox persists in_box status for each distinct candidate and bumps the
// consecutive appearance counter. Returns the distinct IDs seated.
func (e *Engine) placeInBox(ctx context.Context, candidates []*models.Song) []uint {
	var ids []uint
	seen := make(map[uint]struct{})
	for _, song := range candidates {
		if _, ok := seen[song.ID]; ok {
			continue
		}
		seen[song.ID] = struct{}{}

		if err := e.songs.UpdateFields(ctx, song.ID, map[string]interface{}{
			"status":          models.SongStatusInBox,
			"box_appearances": song.BoxAppearances + 1,
		}); err != nil {
			e.log.LogError(ctx, "place_in_box", err)
			continue
		}
		ids = append(ids, song.ID)
	}
	return ids
}

// EndVotingRound tallies the box and crowns the winner. Ties break to the
// lowest ID, which is first-seen order and deterministic across leaders.
func (e *Engine) EndVotingRound(ctx context.Context) error {
	candidates, err := e.songs.GetByStatus(ctx, models.SongStatusInBox)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return e.broadcasts.UpdateFields(ctx, map[string]interface{}{
			"round_started_at": nil,
		})
	}

	roundKey := models.RoundKey(candidates)
	tally, err := e.votes.Tally(ctx, roundKey)
	if err != nil {
		e.log.LogError(ctx, "tally", err)
		tally = map[uint]int{}
	}

	// candidates arrive ordered by ID ascending, so the first strict
	// maximum is the deterministic winner.
	winner := candidates[0]
	for _, c := range candidates[1:] {
		if tally[c.ID] > tally[winner.ID] {
			winner = c
		}
	}

	// Guarantee the single-playing invariant even if two leaders overlapped:
	// anything else claiming now_playing is swept back to the pool first.
	if _, err := e.songs.SweepNowPlaying(ctx, winner.ID); err != nil {
		return err
	}

	now := e.now()
	if err := e.songs.UpdateFields(ctx, winner.ID, map[string]interface{}{
		"status":          models.SongStatusNowPlaying,
		"stars":           models.ClampStars(winner.Stars + 1),
		"play_count":      winner.PlayCount + 1,
		"upvotes":         winner.Upvotes + tally[winner.ID],
		"last_played_at":  now,
		"box_appearances": 0,
	}); err != nil {
		return err
	}

	if err := e.broadcasts.UpdateFields(ctx, map[string]interface{}{
		"current_song_id":  winner.ID,
		"next_song_id":     nil,
		"song_started_at":  now,
		"round_started_at": nil,
		"playback_state":   models.StateNowPlaying,
	}); err != nil {
		return err
	}

	if err := e.votes.ClearRound(ctx, roundKey); err != nil {
		e.log.LogError(ctx, "clear_round", err)
	}

	e.log.LogTransition(ctx, "winner_crowned", map[string]interface{}{
		"song_id": winner.ID,
		"votes":   tally[winner.ID],
	})
	e.narrate(ctx, commentary.EventWinner, commentary.Context{
		SongTitle:  winner.Title,
		ArtistName: winner.ArtistName,
		Votes:      tally[winner.ID],
	})
	e.publishBroadcast(ctx, "now-playing-changed", winner.ID)

	// Open the next box while the winner plays. The losers keep their seats
	// (or their penalties) until that round start runs.
	e.scheduleRoundStart(ctx, e.cfg.PostSongDelay)
	return nil
}

// playDirect puts a song on air immediately, outside any vote.
func (e *Engine) playDirect(ctx context.Context, song *models.Song, state string) error {
	now := e.now()

	if _, err := e.songs.SweepNowPlaying(ctx, song.ID); err != nil {
		return err
	}
	if err := e.songs.UpdateFields(ctx, song.ID, map[string]interface{}{
		"status":         models.SongStatusNowPlaying,
		"play_count":     song.PlayCount + 1,
		"last_played_at": now,
	}); err != nil {
		return err
	}
	if err := e.broadcasts.UpdateFields(ctx, map[string]interface{}{
		"current_song_id": song.ID,
		"song_started_at": now,
		"playback_state":  state,
	}); err != nil {
		return err
	}

	e.log.LogTransition(ctx, "direct_play", map[string]interface{}{"song_id": song.ID})
	e.publishBroadcast(ctx, "now-playing-changed", song.ID)
	return nil
}
