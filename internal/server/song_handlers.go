package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"youniverse/internal/middleware"
	"youniverse/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// UploadSong handles POST /api/songs. Debut routing happens here, at upload
// time: an uploader's first-ever song, or any song uploaded inside a failed
// debut's retry window, queues as a priority debut instead of joining the
// pool.
func (s *Server) UploadSong(c *fiber.Ctx) error {
	profileID, ok := middleware.UserIDFromLocals(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authentication required"))
	}

	var req struct {
		Title       string `json:"title"`
		ArtistName  string `json:"artist_name"`
		AudioURL    string `json:"audio_url"`
		CoverArtURL string `json:"cover_art_url"`
		DurationSec int    `json:"duration_sec"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	req.Title = strings.TrimSpace(req.Title)
	req.ArtistName = strings.TrimSpace(req.ArtistName)
	if req.Title == "" || req.ArtistName == "" || req.AudioURL == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("title, artist_name, and audio_url are required"))
	}
	if req.DurationSec <= 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("duration_sec must be positive"))
	}

	status, err := s.debutEligibility(c, profileID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	song := &models.Song{
		Title:       req.Title,
		ArtistName:  req.ArtistName,
		AudioURL:    req.AudioURL,
		CoverArtURL: req.CoverArtURL,
		DurationSec: req.DurationSec,
		UploaderID:  profileID,
		Source:      "upload",
		Status:      status,
		Stars:       models.InitialStars,
	}

	if err := s.songs.Create(c.Context(), song); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	if s.notifier != nil {
		if perr := s.notifier.PublishSongChanged(c.Context(), "song-uploaded", song.ID); perr != nil {
			middleware.Logger.ErrorContext(c.UserContext(), "failed to publish song upload",
				"error", perr.Error())
		}
	}

	return c.Status(fiber.StatusCreated).JSON(song)
}

// debutEligibility decides whether a new upload queues as a debut. First
// upload ever, or anything inside the uploader's retry window, debuts.
func (s *Server) debutEligibility(c *fiber.Ctx, profileID uint) (string, error) {
	count, err := s.songs.CountByUploader(c.Context(), profileID)
	if err != nil {
		return "", err
	}
	if count == 0 {
		return models.SongStatusDebut, nil
	}

	profile, err := s.profiles.GetByID(c.Context(), profileID)
	if err != nil {
		return "", err
	}
	if profile.InRetryWindow(time.Now(), s.config.DebutRetryWindow()) {
		return models.SongStatusDebut, nil
	}
	return models.SongStatusPool, nil
}

// GetSong handles GET /api/songs/:id
func (s *Server) GetSong(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid song ID"))
	}

	song, err := s.songs.GetByID(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("song", id))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(song)
}

// ListSongs handles GET /api/songs
func (s *Server) ListSongs(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	songs, err := s.songs.List(c.Context(), limit, offset)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"songs":  songs,
		"limit":  limit,
		"offset": offset,
	})
}
