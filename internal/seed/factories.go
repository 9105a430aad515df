// Package seed provides helpers to create test and demo data for the station
// database. These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"youniverse/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options controls how much data the seeder generates.
type Options struct {
	Profiles int
	Songs    int
	// MaxDays spreads created_at timestamps over the past N days.
	MaxDays int
}

// DefaultOptions seeds a small but playable station.
func DefaultOptions() Options {
	return Options{Profiles: 8, Songs: 24, MaxDays: 30}
}

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{
		db:   db,
		opts: opts,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// BuildProfile constructs an uploader profile without persisting it.
func (f *Factory) BuildProfile(overrides ...func(*models.Profile)) *models.Profile {
	profile := &models.Profile{
		Username:     gofakeit.Username(),
		DisplayName:  gofakeit.Name(),
		RoastConsent: f.rng.Intn(3) > 0,
		Premium:      f.rng.Intn(5) == 0,
	}
	for _, override := range overrides {
		override(profile)
	}
	return profile
}

// CreateProfile persists a generated profile.
func (f *Factory) CreateProfile(overrides ...func(*models.Profile)) (*models.Profile, error) {
	profile := f.BuildProfile(overrides...)
	if err := f.db.Create(profile).Error; err != nil {
		return nil, err
	}
	return profile, nil
}

// BuildSong constructs a pool song for the given uploader without persisting
// it. Stars and counters are varied so the first rounds are not uniform.
func (f *Factory) BuildSong(uploader *models.Profile, overrides ...func(*models.Song)) *models.Song {
	title := gofakeit.HipsterSentence(3)
	song := &models.Song{
		Title:       title,
		ArtistName:  uploader.DisplayName,
		AudioURL:    fmt.Sprintf("https://cdn.example.com/audio/%s.mp3", gofakeit.UUID()),
		CoverArtURL: fmt.Sprintf("https://picsum.photos/seed/%s/400/400", gofakeit.UUID()),
		Source:      "upload",
		DurationSec: 120 + f.rng.Intn(180),
		UploaderID:  uploader.ID,
		Status:      models.SongStatusPool,
		Stars:       2 + f.rng.Intn(7),
		PlayCount:   f.rng.Intn(40),
		Upvotes:     f.rng.Intn(200),
	}

	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 30
	}
	song.CreatedAt = time.Now().Add(
		-time.Duration(f.rng.Intn(maxDays))*24*time.Hour -
			time.Duration(f.rng.Intn(24))*time.Hour)

	for _, override := range overrides {
		override(song)
	}
	return song
}

// CreateSong persists a generated song.
func (f *Factory) CreateSong(uploader *models.Profile, overrides ...func(*models.Song)) (*models.Song, error) {
	song := f.BuildSong(uploader, overrides...)
	if err := f.db.Create(song).Error; err != nil {
		return nil, err
	}
	return song, nil
}
