// Package commentary produces the DJ's narrated lines. Generation is fully
// best-effort: every caller gets a usable line back even when the external
// service is down, so no state transition ever blocks on it.
package commentary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Event types the engine narrates.
const (
	EventRoundStart   = "round_start"
	EventWinner       = "winner"
	EventSongEnd      = "song_end"
	EventDebutStart   = "debut_start"
	EventDebutSuccess = "debut_success"
	EventDebutFailed  = "debut_failed"
	EventEmptyPool    = "empty_pool"
	EventReboot       = "reboot"
	EventDeadSong     = "dead_song_walking"
	EventUpsell       = "premium_upsell"
)

// Context carries the facts a line can mention.
type Context struct {
	SongTitle  string `json:"song_title,omitempty"`
	ArtistName string `json:"artist_name,omitempty"`
	Stars      int    `json:"stars,omitempty"`
	Votes      int    `json:"votes,omitempty"`
}

// Generator produces one narrated line for an event.
type Generator interface {
	Line(ctx context.Context, event string, c Context) (string, error)
}

// fallbackLines are the deterministic scripts used when generation fails or
// no external service is configured.
var fallbackLines = map[string]string{
	EventRoundStart:   "The Box is open. Pick your fighter.",
	EventWinner:       "The people have spoken. %s by %s takes the floor.",
	EventSongEnd:      "That was %s by %s. Stay with us.",
	EventDebutStart:   "Fresh meat on the dance floor: %s by %s, rate it live.",
	EventDebutSuccess: "%s by %s survived its debut. Welcome to the pool.",
	EventDebutFailed:  "%s by %s didn't make it. The floor is unforgiving.",
	EventEmptyPool:    "The shelves are empty. Upload something and save this station.",
	EventReboot:       "Hard reset. Everything back in the pool. Let's go again.",
	EventDeadSong:     "The track %s by %s just hit zero stars. It is officially a Dead Song Walking. Rest in peace.",
	EventUpsell:       "Enjoying the show? Premium listeners pick the encore.",
}

// Fallback returns the deterministic line for an event.
func Fallback(event string, c Context) string {
	line, ok := fallbackLines[event]
	if !ok {
		return "And we keep the music rolling."
	}
	if strings.Contains(line, "%s") {
		return fmt.Sprintf(line, c.SongTitle, c.ArtistName)
	}
	return line
}

// StaticGenerator always answers with the fallback script. It is the default
// when no commentary service is configured.
type StaticGenerator struct{}

// Line returns the deterministic fallback line.
func (StaticGenerator) Line(_ context.Context, event string, c Context) (string, error) {
	return Fallback(event, c), nil
}

// HTTPGenerator calls an external script service (the Voicebox sidecar). Any
// failure degrades to the fallback line.
type HTTPGenerator struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPGenerator creates a generator backed by the given service URL.
func NewHTTPGenerator(baseURL string, timeout time.Duration) *HTTPGenerator {
	return &HTTPGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

type lineRequest struct {
	Event   string  `json:"event"`
	Context Context `json:"context"`
}

type lineResponse struct {
	Text string `json:"text"`
}

// Line requests a narrated line; on any error or timeout the deterministic
// fallback is returned with a nil error, because commentary failures must
// never fail the transition they decorate.
func (g *HTTPGenerator) Line(ctx context.Context, event string, c Context) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(lineRequest{Event: event, Context: c})
	if err != nil {
		return Fallback(event, c), nil
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		g.baseURL+"/api/line", strings.NewReader(string(body)))
	if err != nil {
		return Fallback(event, c), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Fallback(event, c), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Fallback(event, c), nil
	}

	var parsed lineResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Text == "" {
		return Fallback(event, c), nil
	}
	return parsed.Text, nil
}
