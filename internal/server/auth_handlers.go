package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"youniverse/internal/models"
	"youniverse/internal/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Register handles POST /api/auth/register
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Username is required"))
	}
	if len(req.Username) > 100 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Username too long"))
	}

	profile := &models.Profile{
		Username:    req.Username,
		DisplayName: req.DisplayName,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = req.Username
	}

	if err := s.profiles.Create(c.Context(), profile); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return models.RespondWithError(c, fiber.StatusConflict,
				models.NewConflictError("Username already taken"))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	token, err := s.generateToken(profile.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token":   token,
		"profile": profile,
	})
}

// GuestSession handles POST /api/auth/guest. Listeners who just want to vote
// get a throwaway profile; the identity only needs to be stable within a
// session so per-round vote dedup works.
func (s *Server) GuestSession(c *fiber.Ctx) error {
	profile := &models.Profile{
		Username:    fmt.Sprintf("guest-%s", uuid.NewString()[:8]),
		DisplayName: "Anonymous Listener",
	}

	if err := s.profiles.Create(c.Context(), profile); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	token, err := s.generateToken(profile.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token":   token,
		"profile": profile,
	})
}

// generateToken creates a JWT token for the given profile ID
func (s *Server) generateToken(profileID uint) (string, error) {
	if s.config.JWTSecret == "" {
		return "", fmt.Errorf("JWT secret not configured")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(profileID), 10),
		"iss": "youniverse-api",
		"aud": "youniverse-client",
		"exp": now.Add(time.Hour * 24 * 7).Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"jti": fmt.Sprintf("%d-%s", now.Unix(), uuid.NewString()[:8]),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}
