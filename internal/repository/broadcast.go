package repository

import (
	"context"
	"time"

	"youniverse/internal/models"

	"gorm.io/gorm"
)

// BroadcastRepository manages the singleton broadcast record. Leadership
// operations are conditional single-statement updates: the WHERE clause plus
// RowsAffected act as a compare-and-swap, so a lost claim race is detectable
// rather than silently overwritten.
type BroadcastRepository interface {
	Get(ctx context.Context) (*models.BroadcastRecord, error)
	Claim(ctx context.Context, nodeID string, now time.Time, deadThreshold time.Duration) (bool, error)
	Heartbeat(ctx context.Context, nodeID string, now time.Time) (bool, error)
	Release(ctx context.Context, nodeID string) error
	UpdateFields(ctx context.Context, fields map[string]interface{}) error
	SetSiteCommand(ctx context.Context, cmd models.SiteCommand) error
}

type broadcastRepository struct {
	db *gorm.DB
}

// NewBroadcastRepository creates a new broadcast repository
func NewBroadcastRepository(db *gorm.DB) BroadcastRepository {
	return &broadcastRepository{db: db}
}

func (r *broadcastRepository) Get(ctx context.Context) (*models.BroadcastRecord, error) {
	var record models.BroadcastRecord
	if err := r.db.WithContext(ctx).
		First(&record, models.BroadcastRecordID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// Claim attempts to take leadership. It succeeds only when the seat is
// unclaimed, already ours, or the recorded heartbeat is stale beyond the dead
// threshold. Exactly one of several racing claimants wins because the
// database serializes the UPDATEs and the losers' WHERE clauses no longer
// match afterwards.
func (r *broadcastRepository) Claim(ctx context.Context, nodeID string, now time.Time, deadThreshold time.Duration) (bool, error) {
	deadBefore := now.Add(-deadThreshold)
	res := r.db.WithContext(ctx).
		Model(&models.BroadcastRecord{}).
		Where("id = ? AND (leader_id = '' OR leader_id = ? OR last_heartbeat < ?)",
			models.BroadcastRecordID, nodeID, deadBefore).
		Updates(map[string]interface{}{
			"leader_id":      nodeID,
			"last_heartbeat": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Heartbeat renews the leader's liveness timestamp. A zero RowsAffected means
// leadership was lost since the last poll; the caller must demote.
func (r *broadcastRepository) Heartbeat(ctx context.Context, nodeID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.BroadcastRecord{}).
		Where("id = ? AND leader_id = ?", models.BroadcastRecordID, nodeID).
		Update("last_heartbeat", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release voluntarily clears leadership on clean shutdown so followers do not
// have to wait out the dead threshold.
func (r *broadcastRepository) Release(ctx context.Context, nodeID string) error {
	return r.db.WithContext(ctx).
		Model(&models.BroadcastRecord{}).
		Where("id = ? AND leader_id = ?", models.BroadcastRecordID, nodeID).
		Update("leader_id", "").Error
}

func (r *broadcastRepository) UpdateFields(ctx context.Context, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.BroadcastRecord{}).
		Where("id = ?", models.BroadcastRecordID).
		Updates(fields).Error
}

func (r *broadcastRepository) SetSiteCommand(ctx context.Context, cmd models.SiteCommand) error {
	return r.UpdateFields(ctx, map[string]interface{}{
		"site_command_type": cmd.Type,
		"site_command_body": cmd.Payload,
		"site_command_at":   cmd.Timestamp,
	})
}
