package repository

import (
	"context"
	"errors"
	"strconv"

	"youniverse/internal/cache"
	"youniverse/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrAlreadyVoted is returned when a listener votes twice in the same round.
var ErrAlreadyVoted = errors.New("already voted this round")

// ErrAlreadyRated is returned when a listener rates the same debut twice.
var ErrAlreadyRated = errors.New("already rated this debut")

// VoteRepository keeps the ephemeral voting state in Redis: per-round weight
// tallies, per-round voter dedup, and live debut ratings. Nothing here needs
// durability: an abandoned round is rebuilt from song statuses, and the TTLs
// stop leaks when a leader dies mid-round.
type VoteRepository interface {
	CastUserVote(ctx context.Context, roundKey string, profileID, songID uint, weight int) error
	CastSimulatedVote(ctx context.Context, roundKey string, songID uint, weight int) error
	Tally(ctx context.Context, roundKey string) (map[uint]int, error)
	ClearRound(ctx context.Context, roundKey string) error
	AddDebutRating(ctx context.Context, songID, profileID uint, score int) error
	DebutRatings(ctx context.Context, songID uint) ([]int, error)
	ClearDebut(ctx context.Context, songID uint) error
}

type voteRepository struct {
	rdb *redis.Client
}

// NewVoteRepository creates a vote repository backed by the given Redis client.
// A nil client yields a degraded single-node mode: casts are dropped and
// tallies come back empty, so rounds still resolve (to the lowest ID) instead
// of taking the station down.
func NewVoteRepository(rdb *redis.Client) VoteRepository {
	return &voteRepository{rdb: rdb}
}

func (r *voteRepository) CastUserVote(ctx context.Context, roundKey string, profileID, songID uint, weight int) error {
	if r.rdb == nil {
		return nil
	}
	votersKey := cache.RoundVotersKey(roundKey)

	added, err := r.rdb.SAdd(ctx, votersKey, profileID).Result()
	if err != nil {
		return err
	}
	if added == 0 {
		return ErrAlreadyVoted
	}
	r.rdb.Expire(ctx, votersKey, cache.RoundTTL)

	return r.incrVote(ctx, roundKey, songID, weight)
}

// CastSimulatedVote adds background weight without voter dedup; the simulated
// crowd keeps rounds advancing when no real listener votes.
func (r *voteRepository) CastSimulatedVote(ctx context.Context, roundKey string, songID uint, weight int) error {
	if r.rdb == nil {
		return nil
	}
	return r.incrVote(ctx, roundKey, songID, weight)
}

func (r *voteRepository) incrVote(ctx context.Context, roundKey string, songID uint, weight int) error {
	votesKey := cache.RoundVotesKey(roundKey)
	if err := r.rdb.HIncrBy(ctx, votesKey, strconv.FormatUint(uint64(songID), 10), int64(weight)).Err(); err != nil {
		return err
	}
	return r.rdb.Expire(ctx, votesKey, cache.RoundTTL).Err()
}

func (r *voteRepository) Tally(ctx context.Context, roundKey string) (map[uint]int, error) {
	if r.rdb == nil {
		return map[uint]int{}, nil
	}
	raw, err := r.rdb.HGetAll(ctx, cache.RoundVotesKey(roundKey)).Result()
	if err != nil {
		return nil, err
	}

	tally := make(map[uint]int, len(raw))
	for field, value := range raw {
		id, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			continue
		}
		weight, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		tally[uint(id)] = weight
	}
	return tally, nil
}

func (r *voteRepository) ClearRound(ctx context.Context, roundKey string) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx,
		cache.RoundVotesKey(roundKey),
		cache.RoundVotersKey(roundKey),
	).Err()
}

func (r *voteRepository) AddDebutRating(ctx context.Context, songID, profileID uint, score int) error {
	if r.rdb == nil {
		return nil
	}
	score = models.ClampStars(score)

	ratersKey := cache.DebutRatersSetKey(songID)
	added, err := r.rdb.SAdd(ctx, ratersKey, profileID).Result()
	if err != nil {
		return err
	}
	if added == 0 {
		return ErrAlreadyRated
	}
	r.rdb.Expire(ctx, ratersKey, cache.DebutRatingTTL)

	ratingsKey := cache.DebutRatingsListKey(songID)
	if err := r.rdb.RPush(ctx, ratingsKey, score).Err(); err != nil {
		return err
	}
	return r.rdb.Expire(ctx, ratingsKey, cache.DebutRatingTTL).Err()
}

func (r *voteRepository) DebutRatings(ctx context.Context, songID uint) ([]int, error) {
	if r.rdb == nil {
		return nil, nil
	}
	raw, err := r.rdb.LRange(ctx, cache.DebutRatingsListKey(songID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	ratings := make([]int, 0, len(raw))
	for _, v := range raw {
		score, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		ratings = append(ratings, score)
	}
	return ratings, nil
}

func (r *voteRepository) ClearDebut(ctx context.Context, songID uint) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx,
		cache.DebutRatingsListKey(songID),
		cache.DebutRatersSetKey(songID),
	).Err()
}
