package repository

import (
	"context"
	"testing"

	"youniverse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetByStatus_OrderedByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSongRepository(db)
	ctx := context.Background()

	for _, s := range []*models.Song{
		{Title: "c", ArtistName: "x", AudioURL: "u", DurationSec: 100, Status: models.SongStatusPool},
		{Title: "a", ArtistName: "x", AudioURL: "u", DurationSec: 100, Status: models.SongStatusPool},
		{Title: "b", ArtistName: "x", AudioURL: "u", DurationSec: 100, Status: models.SongStatusInBox},
	} {
		require.NoError(t, repo.Create(ctx, s))
	}

	pool, err := repo.GetByStatus(ctx, models.SongStatusPool)
	require.NoError(t, err)
	require.Len(t, pool, 2)
	assert.Less(t, pool[0].ID, pool[1].ID)

	both, err := repo.GetByStatus(ctx, models.SongStatusPool, models.SongStatusInBox)
	require.NoError(t, err)
	assert.Len(t, both, 3)
}

func TestSweepNowPlaying(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSongRepository(db)
	ctx := context.Background()

	keep := &models.Song{Title: "keep", ArtistName: "x", AudioURL: "u", DurationSec: 100, Status: models.SongStatusNowPlaying}
	zombie := &models.Song{Title: "zombie", ArtistName: "x", AudioURL: "u", DurationSec: 100, Status: models.SongStatusNowPlaying}
	require.NoError(t, repo.Create(ctx, keep))
	require.NoError(t, repo.Create(ctx, zombie))

	swept, err := repo.SweepNowPlaying(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	got, err := repo.GetByID(ctx, zombie.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SongStatusPool, got.Status)

	got, err = repo.GetByID(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SongStatusNowPlaying, got.Status)
}

func TestUpdateStatusAll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSongRepository(db)
	ctx := context.Background()

	for _, status := range []string{
		models.SongStatusInBox, models.SongStatusNowPlaying,
		models.SongStatusDebut, models.SongStatusGraveyard,
	} {
		require.NoError(t, repo.Create(ctx, &models.Song{
			Title: status, ArtistName: "x", AudioURL: "u", DurationSec: 100, Status: status,
		}))
	}

	moved, err := repo.UpdateStatusAll(ctx, []string{
		models.SongStatusInBox, models.SongStatusNowPlaying, models.SongStatusDebut,
	}, models.SongStatusPool)
	require.NoError(t, err)
	assert.Equal(t, int64(3), moved)

	// Graveyard untouched.
	buried, err := repo.GetByStatus(ctx, models.SongStatusGraveyard)
	require.NoError(t, err)
	assert.Len(t, buried, 1)
}

func TestUnannouncedDeadSongs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSongRepository(db)
	ctx := context.Background()

	dead := &models.Song{Title: "dead", ArtistName: "x", AudioURL: "u", DurationSec: 100,
		Status: models.SongStatusGraveyard, Stars: 0}
	announced := &models.Song{Title: "called out", ArtistName: "x", AudioURL: "u", DurationSec: 100,
		Status: models.SongStatusGraveyard, Stars: 0, DSWAnnounced: true}
	failedDebut := &models.Song{Title: "failed debut", ArtistName: "x", AudioURL: "u", DurationSec: 100,
		Status: models.SongStatusGraveyard, Stars: 3}
	clip := &models.Song{Title: "clip", ArtistName: "dj", AudioURL: "u", DurationSec: 15,
		Status: models.SongStatusGraveyard, Stars: 0, Source: models.SongSourceAnnouncement}

	for _, s := range []*models.Song{dead, announced, failedDebut, clip} {
		require.NoError(t, repo.Create(ctx, s))
	}

	got, err := repo.UnannouncedDeadSongs(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, dead.ID, got[0].ID)
}

func TestMarkAnnounced_SecondClaimLoses(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSongRepository(db)
	ctx := context.Background()

	dead := &models.Song{Title: "dead", ArtistName: "x", AudioURL: "u", DurationSec: 100,
		Status: models.SongStatusGraveyard, Stars: 0}
	require.NoError(t, repo.Create(ctx, dead))

	claimed, err := repo.MarkAnnounced(ctx, dead.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	// A second node racing on the same song loses the conditional update.
	claimed, err = repo.MarkAnnounced(ctx, dead.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	left, err := repo.UnannouncedDeadSongs(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestCountByUploader(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSongRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Song{
		Title: "t", ArtistName: "x", AudioURL: "u", DurationSec: 100, UploaderID: 7,
	}))

	count, err := repo.CountByUploader(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = repo.CountByUploader(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
