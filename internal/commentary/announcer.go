package commentary

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"youniverse/internal/models"
	"youniverse/internal/repository"

	"github.com/google/uuid"
)

// Announcer is the station's DJ bot. It polls for freshly retired zero-star
// songs that have not been called out yet, scripts a farewell line, and
// injects it as a short next_play clip so the whole station hears it. Runs on
// every node; the dsw_announced flag is claimed with a conditional update so
// concurrent sweeps still announce a song once.
type Announcer struct {
	songs     repository.SongRepository
	generator Generator
	ttsURL    string
	interval  time.Duration
	logger    *slog.Logger
}

// NewAnnouncer creates the DJ announcer worker.
func NewAnnouncer(songs repository.SongRepository, generator Generator, ttsURL string, interval time.Duration, logger *slog.Logger) *Announcer {
	return &Announcer{
		songs:     songs,
		generator: generator,
		ttsURL:    ttsURL,
		interval:  interval,
		logger:    logger,
	}
}

// Run polls until the context is cancelled.
func (a *Announcer) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.sweep(ctx); err != nil {
				a.logger.ErrorContext(ctx, "announcer sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Announcer) sweep(ctx context.Context) error {
	dead, err := a.songs.UnannouncedDeadSongs(ctx)
	if err != nil {
		return err
	}

	for _, song := range dead {
		// Claim the flag before injecting; the conditional write is what keeps
		// two nodes sweeping at once from both roasting the same song.
		claimed, err := a.songs.MarkAnnounced(ctx, song.ID)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}

		line, _ := a.generator.Line(ctx, EventDeadSong, Context{
			SongTitle:  song.Title,
			ArtistName: song.ArtistName,
		})

		if err := a.inject(ctx, song, line); err != nil {
			a.logger.ErrorContext(ctx, "failed to queue DSW announcement",
				slog.Uint64("song_id", uint64(song.ID)),
				slog.String("error", err.Error()),
			)
			continue
		}

		a.logger.InfoContext(ctx, "dead song walking announced",
			slog.Uint64("song_id", uint64(song.ID)),
			slog.String("title", song.Title),
		)
	}
	return nil
}

// inject queues the announcement as a short clip staged to play next. The
// audio URL points at the TTS sidecar, which renders the script on demand.
func (a *Announcer) inject(ctx context.Context, dead *models.Song, line string) error {
	audioURL := ""
	if a.ttsURL != "" {
		audioURL = fmt.Sprintf("%s/api/tts?clip=dsw_%s&text=%s&voice=dj_voice&format=mp3",
			a.ttsURL, uuid.NewString()[:8], url.QueryEscape(line))
	}

	clip := &models.Song{
		Title:       fmt.Sprintf("DSW Alert: %s", dead.Title),
		ArtistName:  "DJ Youniverse",
		AudioURL:    audioURL,
		Source:      models.SongSourceAnnouncement,
		DurationSec: 15,
		Status:      models.SongStatusNextPlay,
		Stars:       models.InitialStars,
		CoverArtURL: dead.CoverArtURL,
	}

	return a.songs.Create(ctx, clip)
}
