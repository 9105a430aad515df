package models

import (
	"time"
)

// Profile represents an uploader/listener account. The profile subsystem owns
// these rows; the game engine only reads debut bookkeeping and writes
// LastDebutAt when it resolves a debut.
type Profile struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Username    string `gorm:"size:100;uniqueIndex;not null" json:"username"`
	DisplayName string `gorm:"size:100" json:"display_name"`

	// LastDebutAt records the most recent failed debut; within the retry
	// window the uploader's next song is granted a priority debut.
	LastDebutAt *time.Time `json:"last_debut_at,omitempty"`

	RoastConsent bool `gorm:"not null;default:false" json:"roast_consent"`
	Premium      bool `gorm:"not null;default:false" json:"premium"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InRetryWindow reports whether a failed debut still grants the uploader a
// free second chance.
func (p *Profile) InRetryWindow(now time.Time, window time.Duration) bool {
	return p.LastDebutAt != nil && now.Sub(*p.LastDebutAt) <= window
}
