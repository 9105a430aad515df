// Command main runs the database seeder for a Youniverse station.
package main

import (
	"flag"
	"log"

	"youniverse/internal/config"
	"youniverse/internal/database"
	"youniverse/internal/seed"
)

func main() {
	numProfiles := flag.Int("profiles", 8, "Number of uploader profiles to create")
	numSongs := flag.Int("songs", 24, "Number of songs to create")
	flag.Parse()

	log.Println("Station Seeder")
	log.Printf("Target: %d profiles, %d songs\n", *numProfiles, *numSongs)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if _, err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	opts := seed.DefaultOptions()
	opts.Profiles = *numProfiles
	opts.Songs = *numSongs

	if err := seed.Seed(database.DB, opts); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Done. The station has a playable catalog.")
}
