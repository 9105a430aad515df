package server

import (
	"errors"
	"time"

	"youniverse/internal/middleware"
	"youniverse/internal/models"
	"youniverse/internal/repository"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// NowPlaying handles GET /api/radio/now. This is the snapshot a late joiner
// needs to sync: the current song, where it is on the shared timeline, and
// any fresh site command.
func (s *Server) NowPlaying(c *fiber.Ctx) error {
	record, err := s.broadcasts.Get(c.Context())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	now := time.Now()
	resp := fiber.Map{
		"playback_state": record.PlaybackState,
		"leader_id":      record.LeaderID,
		"listeners":      s.listenerCount(),
	}

	if record.CurrentSongID != nil {
		song, err := s.songs.GetByID(c.Context(), *record.CurrentSongID)
		if err == nil {
			resp["current_song"] = song
			resp["position_sec"] = int(record.Elapsed(now).Seconds())
		}
	}

	if record.RoundStartedAt != nil {
		deadline := record.RoundStartedAt.Add(s.config.VotingWindow())
		resp["voting_deadline"] = deadline
		remaining := int(deadline.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		resp["voting_remaining_sec"] = remaining
	}

	// Stale commands are omitted so late joiners never replay old effects.
	if cmd := record.SiteCommand(); cmd != nil && !cmd.IsStale(now) {
		resp["site_command"] = cmd
	}

	return c.JSON(resp)
}

// CurrentBox handles GET /api/radio/box: the candidates of the open round and
// their running tallies.
func (s *Server) CurrentBox(c *fiber.Ctx) error {
	record, err := s.broadcasts.Get(c.Context())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	candidates, err := s.songs.GetByStatus(c.Context(), models.SongStatusInBox)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	tally := map[uint]int{}
	if len(candidates) > 0 && s.votes != nil {
		if t, err := s.votes.Tally(c.Context(), models.RoundKey(candidates)); err == nil {
			tally = t
		}
	}

	type entry struct {
		Song  *models.Song `json:"song"`
		Votes int          `json:"votes"`
	}
	box := make([]entry, 0, len(candidates))
	for _, song := range candidates {
		box = append(box, entry{Song: song, Votes: tally[song.ID]})
	}

	resp := fiber.Map{
		"open": record.PlaybackState == models.StateBoxVoting,
		"box":  box,
	}
	if record.RoundStartedAt != nil {
		resp["voting_deadline"] = record.RoundStartedAt.Add(s.config.VotingWindow())
	}
	return c.JSON(resp)
}

// CastVote handles POST /api/radio/vote. One vote per profile per round; the
// user weight dwarfs the simulated crowd so real listeners steer outcomes.
func (s *Server) CastVote(c *fiber.Ctx) error {
	profileID, ok := middleware.UserIDFromLocals(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authentication required"))
	}
	if s.votes == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errors.New("voting unavailable: redis not connected")))
	}

	var req struct {
		SongID uint `json:"song_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.SongID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("song_id is required"))
	}

	record, err := s.broadcasts.Get(c.Context())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	if record.PlaybackState != models.StateBoxVoting {
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewConflictError("No voting round is open"))
	}

	candidates, err := s.songs.GetByStatus(c.Context(), models.SongStatusInBox)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	inBox := false
	for _, song := range candidates {
		if song.ID == req.SongID {
			inBox = true
			break
		}
	}
	if !inBox {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("box candidate", req.SongID))
	}

	roundKey := models.RoundKey(candidates)
	err = s.votes.CastUserVote(c.Context(), roundKey, profileID, req.SongID, s.config.UserVoteWeight)
	if errors.Is(err, repository.ErrAlreadyVoted) {
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewConflictError("You already voted this round"))
	}
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	middleware.VotesCast.WithLabelValues("user").Inc()

	tally, _ := s.votes.Tally(c.Context(), roundKey)
	return c.JSON(fiber.Map{
		"voted": req.SongID,
		"tally": tally,
	})
}

// RateDebut handles POST /api/radio/rate: a live 0-10 score for the debut
// currently on air. One rating per profile per debut.
func (s *Server) RateDebut(c *fiber.Ctx) error {
	profileID, ok := middleware.UserIDFromLocals(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authentication required"))
	}
	if s.votes == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errors.New("rating unavailable: redis not connected")))
	}

	var req struct {
		SongID uint `json:"song_id"`
		Score  int  `json:"score"`
	}
	if err := c.BodyParser(&req); err != nil || req.SongID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("song_id is required"))
	}
	if req.Score < models.MinStars || req.Score > models.MaxStars {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("score must be between 0 and 10"))
	}

	record, err := s.broadcasts.Get(c.Context())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	if record.CurrentSongID == nil || *record.CurrentSongID != req.SongID {
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewConflictError("That song is not on air"))
	}

	song, err := s.songs.GetByID(c.Context(), req.SongID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("song", req.SongID))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	if song.Status != models.SongStatusDebut {
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewConflictError("The current song is not a debut"))
	}

	err = s.votes.AddDebutRating(c.Context(), req.SongID, profileID, req.Score)
	if errors.Is(err, repository.ErrAlreadyRated) {
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewConflictError("You already rated this debut"))
	}
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"rated": req.SongID,
		"score": req.Score,
	})
}
