// Package radiosync keeps a local audio player aligned with the shared
// broadcast timeline. Every node (and every headless listener process) runs a
// Client; the leader's engine mutates the broadcast record and the clients
// converge on it. Convergence is pull-based: change notifications only say
// that something changed, and the client re-reads the authoritative row.
package radiosync

import (
	"context"
	"errors"
	"time"
)

// ErrAutoplayBlocked is returned by Player.Play when the underlying output
// refuses to start without user interaction. The client degrades to muted
// playback and surfaces an event instead of failing.
var ErrAutoplayBlocked = errors.New("playback blocked pending user gesture")

// Player is the local audio surface the sync client drives. Implementations
// wrap whatever actually makes sound (an mpv subprocess, a browser bridge, a
// test fake); all methods must be safe to call from the client's goroutine.
type Player interface {
	// Load prepares the given audio URL for playback, replacing any current
	// track. Position resets to zero.
	Load(ctx context.Context, url string) error

	Play(ctx context.Context) error
	Pause(ctx context.Context) error

	// Seek jumps to an absolute position in the loaded track.
	Seek(ctx context.Context, pos time.Duration) error

	Position(ctx context.Context) (time.Duration, error)

	// SetVolume takes 0.0-1.0. Muted autoplay recovery sets 0 then restores.
	SetVolume(ctx context.Context, volume float64) error
}
