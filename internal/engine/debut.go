package engine

import (
	"context"

	"youniverse/internal/commentary"
	"youniverse/internal/middleware"
	"youniverse/internal/models"
)

// pickQueuedDebut returns the oldest song waiting for its priority debut, or
// nil. Debut eligibility is decided at upload time (first-ever upload, or a
// second chance inside the retry window); queued debuts simply hold the debut
// status until played.
func (e *Engine) pickQueuedDebut(ctx context.Context, record *models.BroadcastRecord) (*models.Song, error) {
	queued, err := e.songs.GetByStatus(ctx, models.SongStatusDebut)
	if err != nil {
		return nil, err
	}
	for _, song := range queued {
		if record.CurrentSongID != nil && song.ID == *record.CurrentSongID {
			continue
		}
		return song, nil
	}
	return nil, nil
}

// playDebut puts a debut on air. The song keeps its debut status while
// playing; that is what routes its end-of-play through the live-rating
// average instead of the normal return-to-pool.
func (e *Engine) playDebut(ctx context.Context, song *models.Song) error {
	now := e.now()

	if _, err := e.songs.SweepNowPlaying(ctx, song.ID); err != nil {
		return err
	}
	if err := e.songs.UpdateFields(ctx, song.ID, map[string]interface{}{
		"play_count":     song.PlayCount + 1,
		"last_played_at": now,
	}); err != nil {
		return err
	}
	if err := e.broadcasts.UpdateFields(ctx, map[string]interface{}{
		"current_song_id":  song.ID,
		"song_started_at":  now,
		"playback_state":   models.StateNowPlaying,
		"round_started_at": nil,
	}); err != nil {
		return err
	}

	e.log.LogTransition(ctx, "debut_started", map[string]interface{}{"song_id": song.ID})
	e.narrate(ctx, commentary.EventDebutStart, commentary.Context{
		SongTitle:  song.Title,
		ArtistName: song.ArtistName,
	})
	e.publishBroadcast(ctx, "now-playing-changed", song.ID)
	return nil
}

// resolveDebut settles a finished debut from its live ratings: below the
// survival threshold the song is buried and the uploader's retry window
// opens; at or above it the song joins the pool carrying the crowd's average
// as its stars, and any pending retry window is cleared.
func (e *Engine) resolveDebut(ctx context.Context, song *models.Song) error {
	ratings, err := e.votes.DebutRatings(ctx, song.ID)
	if err != nil {
		e.log.LogError(ctx, "debut_ratings", err)
		ratings = nil
	}

	mean := models.InitialStars
	if len(ratings) > 0 {
		sum := 0
		for _, r := range ratings {
			sum += r
		}
		mean = sum / len(ratings)
	}
	mean = models.ClampStars(mean)

	now := e.now()
	if mean < e.cfg.DebutThreshold {
		if err := e.songs.UpdateFields(ctx, song.ID, map[string]interface{}{
			"status": models.SongStatusGraveyard,
			"stars":  mean,
		}); err != nil {
			return err
		}
		middleware.SongsGraveyarded.Inc()

		if song.UploaderID != 0 {
			if err := e.profiles.SetLastDebutAt(ctx, song.UploaderID, &now); err != nil {
				e.log.LogError(ctx, "debut_retry_window", err)
			}
		}

		e.log.LogTransition(ctx, "debut_failed", map[string]interface{}{
			"song_id": song.ID,
			"mean":    mean,
		})
		e.narrate(ctx, commentary.EventDebutFailed, commentary.Context{
			SongTitle:  song.Title,
			ArtistName: song.ArtistName,
			Stars:      mean,
		})
	} else {
		if err := e.songs.UpdateFields(ctx, song.ID, map[string]interface{}{
			"status": models.SongStatusPool,
			"stars":  mean,
		}); err != nil {
			return err
		}

		// A surviving debut closes the uploader's pending retry window.
		if song.UploaderID != 0 {
			if err := e.profiles.SetLastDebutAt(ctx, song.UploaderID, nil); err != nil {
				e.log.LogError(ctx, "debut_clear_window", err)
			}
		}

		e.log.LogTransition(ctx, "debut_survived", map[string]interface{}{
			"song_id": song.ID,
			"mean":    mean,
		})
		e.narrate(ctx, commentary.EventDebutSuccess, commentary.Context{
			SongTitle:  song.Title,
			ArtistName: song.ArtistName,
			Stars:      mean,
		})
	}

	if err := e.votes.ClearDebut(ctx, song.ID); err != nil {
		e.log.LogError(ctx, "clear_debut", err)
	}
	e.publishSong(ctx, "debut-resolved", song.ID)
	return nil
}
