package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"youniverse/internal/commentary"
	"youniverse/internal/config"
	"youniverse/internal/election"
	"youniverse/internal/engine"
	"youniverse/internal/middleware"
	"youniverse/internal/models"
	"youniverse/internal/notifications"
	"youniverse/internal/observability"
	"youniverse/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type serverFixture struct {
	server *Server
	app    *fiber.App
	db     *gorm.DB
}

// newServerFixture wires a Server over sqlite and miniredis with routes
// registered but the production middleware stack (metrics, limiter) left off.
func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Profile{}, &models.Song{}, &models.BroadcastRecord{}))
	require.NoError(t, db.Create(&models.BroadcastRecord{
		ID: models.BroadcastRecordID, PlaybackState: models.StateIdle,
	}).Error)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		Port:                 "0",
		JWTSecret:            "test-secret-at-least-32-characters-long",
		Env:                  "test",
		HeartbeatIntervalSec: 2,
		LeaderDeadSec:        4,
		BoxSize:              3,
		VotingWindowSec:      30,
		RoundDebounceSec:     2,
		PostSongDelaySec:     3600,
		EmptyRetrySec:        3600,
		ZombieMarginSec:      30,
		DebutThreshold:       5,
		DebutRetryHours:      24,
		UserVoteWeight:       10,
	}
	middleware.InitMiddleware(cfg)

	songRepo := repository.NewSongRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	broadcastRepo := repository.NewBroadcastRepository(db)
	notifier := notifications.NewNotifier(nil)

	s := &Server{
		config:     cfg,
		db:         db,
		redis:      rdb,
		nodeID:     "test-node",
		songs:      songRepo,
		profiles:   profileRepo,
		broadcasts: broadcastRepo,
		votes:      repository.NewVoteRepository(rdb),
		notifier:   notifier,
	}

	s.engine = engine.New(songRepo, profileRepo, broadcastRepo, s.votes,
		notifier, commentary.StaticGenerator{},
		engine.Config{
			BoxSize:          cfg.BoxSize,
			VotingWindow:     cfg.VotingWindow(),
			RoundDebounce:    cfg.RoundDebounce(),
			PostSongDelay:    cfg.PostSongDelay(),
			EmptyRetry:       cfg.EmptyRetry(),
			ZombieMargin:     cfg.ZombieMargin(),
			DebutThreshold:   cfg.DebutThreshold,
			DebutRetryWindow: cfg.DebutRetryWindow(),
			UserVoteWeight:   cfg.UserVoteWeight,
		},
		observability.NewEngineLogger("test-node"),
	)
	s.elector = election.New(broadcastRepo, "test-node",
		cfg.HeartbeatInterval(), cfg.LeaderDeadThreshold(),
		election.Callbacks{}, middleware.Logger)

	app := fiber.New()
	s.SetupRoutes(app)

	return &serverFixture{server: s, app: app, db: db}
}

// registerProfile creates a profile row and returns its ID with a valid token.
func (f *serverFixture) registerProfile(t *testing.T, username string) (uint, string) {
	t.Helper()
	profile := &models.Profile{Username: username, DisplayName: username}
	require.NoError(t, f.db.Create(profile).Error)
	token, err := f.server.generateToken(profile.ID)
	require.NoError(t, err)
	return profile.ID, token
}

func (f *serverFixture) addSong(t *testing.T, status string, overrides ...func(*models.Song)) *models.Song {
	t.Helper()
	song := &models.Song{
		Title:       "track",
		ArtistName:  "artist",
		AudioURL:    "https://cdn.example.com/a.mp3",
		DurationSec: 180,
		Status:      status,
		Stars:       models.InitialStars,
		Source:      "upload",
	}
	for _, o := range overrides {
		o(song)
	}
	require.NoError(t, f.db.Create(song).Error)
	return song
}

func (f *serverFixture) setBroadcast(t *testing.T, fields map[string]interface{}) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.BroadcastRecord{}).
		Where("id = ?", models.BroadcastRecordID).
		Updates(fields).Error)
}

// doJSON performs a request with an optional JSON body and bearer token.
func (f *serverFixture) doJSON(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.app.Test(req, int(5*time.Second/time.Millisecond))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}
