package repository

import (
	"context"
	"testing"
	"time"

	"youniverse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Profile{}, &models.Song{}, &models.BroadcastRecord{}))

	record := models.BroadcastRecord{ID: models.BroadcastRecordID, PlaybackState: models.StateIdle}
	require.NoError(t, db.Create(&record).Error)
	return db
}

func TestClaim_UnclaimedSeat(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBroadcastRepository(db)
	ctx := context.Background()

	won, err := repo.Claim(ctx, "node-a", time.Now(), 4*time.Second)
	require.NoError(t, err)
	assert.True(t, won)

	record, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "node-a", record.LeaderID)
}

func TestClaim_LiveLeaderRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBroadcastRepository(db)
	ctx := context.Background()
	now := time.Now()

	won, err := repo.Claim(ctx, "node-a", now, 4*time.Second)
	require.NoError(t, err)
	require.True(t, won)

	// A second node cannot take a seat with a fresh heartbeat.
	won, err = repo.Claim(ctx, "node-b", now.Add(time.Second), 4*time.Second)
	require.NoError(t, err)
	assert.False(t, won)

	record, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "node-a", record.LeaderID)
}

func TestClaim_StaleLeaderReplaced(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBroadcastRepository(db)
	ctx := context.Background()
	now := time.Now()

	won, err := repo.Claim(ctx, "node-a", now, 4*time.Second)
	require.NoError(t, err)
	require.True(t, won)

	// Past the dead threshold the seat is claimable.
	won, err = repo.Claim(ctx, "node-b", now.Add(10*time.Second), 4*time.Second)
	require.NoError(t, err)
	assert.True(t, won)

	record, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "node-b", record.LeaderID)
}

func TestClaim_Reentrant(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBroadcastRepository(db)
	ctx := context.Background()
	now := time.Now()

	won, err := repo.Claim(ctx, "node-a", now, 4*time.Second)
	require.NoError(t, err)
	require.True(t, won)

	// The current leader can always renew via claim.
	won, err = repo.Claim(ctx, "node-a", now.Add(time.Second), 4*time.Second)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestHeartbeat(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBroadcastRepository(db)
	ctx := context.Background()
	now := time.Now()

	_, err := repo.Claim(ctx, "node-a", now, 4*time.Second)
	require.NoError(t, err)

	ok, err := repo.Heartbeat(ctx, "node-a", now.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	// A non-leader's heartbeat touches nothing and reports failure.
	ok, err = repo.Heartbeat(ctx, "node-b", now.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRelease(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBroadcastRepository(db)
	ctx := context.Background()
	now := time.Now()

	_, err := repo.Claim(ctx, "node-a", now, 4*time.Second)
	require.NoError(t, err)
	require.NoError(t, repo.Release(ctx, "node-a"))

	record, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", record.LeaderID)

	// Released seat is immediately claimable regardless of heartbeat age.
	won, err := repo.Claim(ctx, "node-b", now.Add(time.Second), time.Hour)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestSetSiteCommand(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBroadcastRepository(db)
	ctx := context.Background()

	at := time.Now()
	require.NoError(t, repo.SetSiteCommand(ctx, models.SiteCommand{
		Type: "dj_line", Payload: "The Box is open.", Timestamp: at,
	}))

	record, err := repo.Get(ctx)
	require.NoError(t, err)
	cmd := record.SiteCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "The Box is open.", cmd.Payload)
}
