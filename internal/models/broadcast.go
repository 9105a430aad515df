package models

import (
	"time"
)

// Playback states of the shared broadcast timeline.
const (
	StateIntro      = "intro"       // station warming up, no catalog history yet
	StateBoxVoting  = "box_voting"  // a song is on air and the box is open
	StateNowPlaying = "now_playing" // a song is on air, no round active
	StateDJTalking  = "dj_talking"  // narration-only interstitial
	StateIdle       = "idle"        // nothing to play
	StateReboot     = "reboot"      // administrative hard reset in progress
)

// BroadcastRecordID is the primary key of the singleton row. Every node reads
// and (if leader) writes this one row; it is the cross-node source of truth.
const BroadcastRecordID uint = 1

// SiteCommand is a one-shot broadcast side effect (announcement, ticker text,
// visual effect) riding on the broadcast record. It is consumed by observers
// and is not part of playback correctness.
type SiteCommand struct {
	Type      string    `json:"type"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// StaleAfter is how old a site command may be before late joiners must ignore
// it instead of replaying its effect.
const SiteCommandStaleAfter = 5 * time.Second

// IsStale reports whether the command is too old to act on.
func (sc *SiteCommand) IsStale(now time.Time) bool {
	return now.Sub(sc.Timestamp) > SiteCommandStaleAfter
}

// BroadcastRecord is the singleton playback-authority row shared by all nodes.
//
// LeaderID plus LastHeartbeat form the only pair needing stronger-than-eventual
// consistency: leadership changes go through a conditional UPDATE so a lost
// race is detectable. Everything else is written by the single live leader.
type BroadcastRecord struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	CurrentSongID *uint      `json:"current_song_id,omitempty"`
	CurrentSong   *Song      `gorm:"foreignKey:CurrentSongID" json:"current_song,omitempty"`
	NextSongID    *uint      `json:"next_song_id,omitempty"`
	PlaybackState string     `gorm:"size:20;not null;default:idle" json:"playback_state"`
	SongStartedAt *time.Time `json:"song_started_at,omitempty"`

	// RoundStartedAt is persisted so that a leader elected mid-round can
	// recompute the voting deadline instead of relying on the previous
	// leader's in-memory timer.
	RoundStartedAt *time.Time `json:"round_started_at,omitempty"`

	LeaderID      string    `gorm:"size:64;index" json:"leader_id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`

	SiteCommandType string     `gorm:"size:50" json:"site_command_type,omitempty"`
	SiteCommandBody string     `gorm:"type:text" json:"site_command_body,omitempty"`
	SiteCommandAt   *time.Time `json:"site_command_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Playing reports whether the record claims a song is on air. An announcement
// clip counts: it plays under dj_talking and still occupies the timeline.
func (b *BroadcastRecord) Playing() bool {
	if b.CurrentSongID == nil || b.SongStartedAt == nil {
		return false
	}
	switch b.PlaybackState {
	case StateNowPlaying, StateBoxVoting, StateIntro, StateDJTalking:
		return true
	}
	return false
}

// Elapsed returns how long the current song has been on air.
func (b *BroadcastRecord) Elapsed(now time.Time) time.Duration {
	if b.SongStartedAt == nil {
		return 0
	}
	return now.Sub(*b.SongStartedAt)
}

// LeaderDead reports whether the recorded leader's heartbeat is stale beyond
// the threshold. An empty LeaderID counts as dead (seat unclaimed).
func (b *BroadcastRecord) LeaderDead(now time.Time, threshold time.Duration) bool {
	if b.LeaderID == "" {
		return true
	}
	return now.Sub(b.LastHeartbeat) > threshold
}

// SiteCommand assembles the embedded command fields, or nil when unset.
func (b *BroadcastRecord) SiteCommand() *SiteCommand {
	if b.SiteCommandType == "" || b.SiteCommandAt == nil {
		return nil
	}
	return &SiteCommand{
		Type:      b.SiteCommandType,
		Payload:   b.SiteCommandBody,
		Timestamp: *b.SiteCommandAt,
	}
}
