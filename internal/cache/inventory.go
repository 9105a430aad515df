package cache

import (
	"context"
	"fmt"
	"time"
)

// Redis key layout for the voting mini-game. Round keys embed the round
// fingerprint (sorted candidate IDs) so vote tallies and dedup sets from an
// abandoned round can never bleed into the next one.
const (
	RoundVotesPrefix  = "box:%s:votes"  // hash songID -> accumulated weight
	RoundVotersPrefix = "box:%s:voters" // set of profile IDs that already voted
	DebutRatingsKey   = "debut:%d:ratings"
	DebutRatersKey    = "debut:%d:raters"
)

const (
	// Rounds last well under a minute; generous TTLs just stop leaks when a
	// leader dies mid-round.
	RoundTTL       = 10 * time.Minute
	DebutRatingTTL = 30 * time.Minute
)

func RoundVotesKey(roundKey string) string {
	return fmt.Sprintf(RoundVotesPrefix, roundKey)
}

func RoundVotersKey(roundKey string) string {
	return fmt.Sprintf(RoundVotersPrefix, roundKey)
}

func DebutRatingsListKey(songID uint) string {
	return fmt.Sprintf(DebutRatingsKey, songID)
}

func DebutRatersSetKey(songID uint) string {
	return fmt.Sprintf(DebutRatersKey, songID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

// InvalidateRound clears vote bookkeeping for a finished or abandoned round.
func InvalidateRound(ctx context.Context, roundKey string) {
	Invalidate(ctx, RoundVotesKey(roundKey))
	Invalidate(ctx, RoundVotersKey(roundKey))
}

// InvalidateDebut clears live ratings for a resolved debut.
func InvalidateDebut(ctx context.Context, songID uint) {
	Invalidate(ctx, DebutRatingsListKey(songID))
	Invalidate(ctx, DebutRatersSetKey(songID))
}
