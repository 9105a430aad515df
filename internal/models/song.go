// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Song lifecycle statuses. A song holds exactly one status at a time.
const (
	SongStatusPool       = "pool"        // in the catalog, eligible for the box
	SongStatusInBox      = "in_box"      // competing in the current voting round
	SongStatusNowPlaying = "now_playing" // on air
	SongStatusNextPlay   = "next_play"   // staged to play next, bypassing the box
	SongStatusDebut      = "debut"       // first-play live evaluation
	SongStatusGraveyard  = "graveyard"   // retired at zero stars
)

// Star rating bounds. New songs start in the middle.
const (
	MinStars     = 0
	MaxStars     = 10
	InitialStars = 5
)

// SongSourceAnnouncement marks short DJ clips injected by the announcer
// rather than uploaded by a listener.
const SongSourceAnnouncement = "ai_announcement"

// Song represents a track in the station catalog.
type Song struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	Title       string   `gorm:"size:255;not null" json:"title"`
	ArtistName  string   `gorm:"size:255;not null" json:"artist_name"`
	AudioURL    string   `gorm:"size:500;not null" json:"audio_url"`
	CoverArtURL string   `gorm:"size:500" json:"cover_art_url"`
	Source      string   `gorm:"size:50;default:upload" json:"source"`
	DurationSec int      `gorm:"not null" json:"duration_sec"`
	UploaderID  uint     `gorm:"index" json:"uploader_id"`
	Uploader    *Profile `gorm:"foreignKey:UploaderID" json:"uploader,omitempty"`

	Status string `gorm:"size:20;not null;default:pool;index" json:"status"`

	// No column default: zero is a meaningful value (retirement), and gorm
	// skips zero-valued fields on insert when a default tag is present.
	Stars int `gorm:"not null" json:"stars"`

	// BoxAppearances counts consecutive box placements without a win; a win
	// resets it. BoxRoundsLost is the all-time loss counter.
	BoxAppearances int `gorm:"not null;default:0" json:"box_appearances"`
	BoxRoundsLost  int `gorm:"not null;default:0" json:"box_rounds_lost"`

	PlayCount    int        `gorm:"not null;default:0" json:"play_count"`
	Upvotes      int        `gorm:"not null;default:0" json:"upvotes"`
	LastPlayedAt *time.Time `json:"last_played_at,omitempty"`

	// DSWAnnounced marks a zero-star retirement that the DJ announcer has
	// already called out on air, so it is only roasted once.
	DSWAnnounced bool `gorm:"not null;default:false" json:"dsw_announced"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the song currently occupies an on-air slot.
func (s *Song) IsActive() bool {
	return s.Status == SongStatusNowPlaying || s.Status == SongStatusDebut
}

// Duration returns the track length as a time.Duration.
func (s *Song) Duration() time.Duration {
	return time.Duration(s.DurationSec) * time.Second
}

// ClampStars bounds a raw star value to [MinStars, MaxStars].
func ClampStars(stars int) int {
	if stars < MinStars {
		return MinStars
	}
	if stars > MaxStars {
		return MaxStars
	}
	return stars
}
