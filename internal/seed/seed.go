package seed

import (
	"fmt"
	"log"

	"youniverse/internal/models"

	"gorm.io/gorm"
)

// Seed populates the database with a playable demo station: a handful of
// uploaders, a pool of songs with spread-out stars, and a couple of graveyard
// residents so revival and the DJ announcer have something to work with.
func Seed(db *gorm.DB, opts Options) error {
	log.Println("Seeding station database...")

	if err := clearData(db); err != nil {
		return fmt.Errorf("failed to clear data: %w", err)
	}

	factory := NewFactory(db, opts)

	profiles := make([]*models.Profile, 0, opts.Profiles)
	for i := 0; i < opts.Profiles; i++ {
		profile, err := factory.CreateProfile()
		if err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	log.Printf("Created %d profiles", len(profiles))

	songs := 0
	for i := 0; i < opts.Songs; i++ {
		uploader := profiles[i%len(profiles)]
		overrides := []func(*models.Song){}

		// A few graveyard residents, one of them at zero stars so the DJ
		// announcer has a Dead Song Walking to call out.
		if i%10 == 9 {
			overrides = append(overrides, func(s *models.Song) {
				s.Status = models.SongStatusGraveyard
				s.Stars = 0
			})
		}

		if _, err := factory.CreateSong(uploader, overrides...); err != nil {
			return fmt.Errorf("failed to create song: %w", err)
		}
		songs++
	}
	log.Printf("Created %d songs", songs)

	log.Println("Seeding complete")
	return nil
}

func clearData(db *gorm.DB) error {
	if err := db.Exec("DELETE FROM songs").Error; err != nil {
		return err
	}
	if err := db.Exec("DELETE FROM profiles").Error; err != nil {
		return err
	}
	// Reset the broadcast singleton instead of deleting it; the row has to
	// exist for the first leadership claim.
	return db.Model(&models.BroadcastRecord{}).
		Where("id = ?", models.BroadcastRecordID).
		Updates(map[string]interface{}{
			"current_song_id":  nil,
			"next_song_id":     nil,
			"song_started_at":  nil,
			"round_started_at": nil,
			"playback_state":   models.StateIdle,
			"leader_id":        "",
		}).Error
}
