// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"

	"youniverse/internal/models"

	"gorm.io/gorm"
)

// SongRepository defines the interface for song catalog operations. The game
// engine is the only writer of status/stars/counter fields; HTTP handlers
// only read, apart from inserting uploads.
type SongRepository interface {
	Create(ctx context.Context, song *models.Song) error
	GetByID(ctx context.Context, id uint) (*models.Song, error)
	GetByStatus(ctx context.Context, statuses ...string) ([]*models.Song, error)
	CountByUploader(ctx context.Context, uploaderID uint) (int64, error)
	Update(ctx context.Context, song *models.Song) error
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	UpdateStatusAll(ctx context.Context, from []string, to string) (int64, error)
	SweepNowPlaying(ctx context.Context, keepID uint) (int64, error)
	UnannouncedDeadSongs(ctx context.Context) ([]*models.Song, error)
	MarkAnnounced(ctx context.Context, id uint) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*models.Song, error)
}

type songRepository struct {
	db *gorm.DB
}

// NewSongRepository creates a new song repository
func NewSongRepository(db *gorm.DB) SongRepository {
	return &songRepository{db: db}
}

func (r *songRepository) Create(ctx context.Context, song *models.Song) error {
	return r.db.WithContext(ctx).Create(song).Error
}

func (r *songRepository) GetByID(ctx context.Context, id uint) (*models.Song, error) {
	var song models.Song
	if err := r.db.WithContext(ctx).First(&song, id).Error; err != nil {
		return nil, err
	}
	return &song, nil
}

func (r *songRepository) GetByStatus(ctx context.Context, statuses ...string) ([]*models.Song, error) {
	var songs []*models.Song
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("id ASC").
		Find(&songs).Error
	return songs, err
}

func (r *songRepository) CountByUploader(ctx context.Context, uploaderID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Song{}).
		Where("uploader_id = ?", uploaderID).
		Count(&count).Error
	return count, err
}

func (r *songRepository) Update(ctx context.Context, song *models.Song) error {
	return r.db.WithContext(ctx).Save(song).Error
}

func (r *songRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.Song{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// UpdateStatusAll moves every song in one of the `from` statuses to `to`.
// Used by the administrative reboot.
func (r *songRepository) UpdateStatusAll(ctx context.Context, from []string, to string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Song{}).
		Where("status IN ?", from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

// SweepNowPlaying forces every now_playing row except keepID back to pool.
// Winner crowning runs this first so the single-song invariant holds even if
// two briefly-overlapping leaders both crowned a winner.
func (r *songRepository) SweepNowPlaying(ctx context.Context, keepID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Song{}).
		Where("status = ? AND id <> ?", models.SongStatusNowPlaying, keepID).
		Update("status", models.SongStatusPool)
	return res.RowsAffected, res.Error
}

// UnannouncedDeadSongs returns zero-star retirements the DJ announcer has not
// yet called out.
func (r *songRepository) UnannouncedDeadSongs(ctx context.Context) ([]*models.Song, error) {
	var songs []*models.Song
	err := r.db.WithContext(ctx).
		Where("status = ? AND stars = 0 AND dsw_announced = ?", models.SongStatusGraveyard, false).
		Where("source <> ?", models.SongSourceAnnouncement).
		Order("updated_at ASC").
		Find(&songs).Error
	return songs, err
}

// MarkAnnounced claims the announcement flag for a song with a conditional
// update. Reports false when another node already claimed it, so concurrent
// announcer sweeps inject at most one clip per song.
func (r *songRepository) MarkAnnounced(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Song{}).
		Where("id = ? AND dsw_announced = ?", id, false).
		Update("dsw_announced", true)
	return res.RowsAffected > 0, res.Error
}

func (r *songRepository) List(ctx context.Context, limit, offset int) ([]*models.Song, error) {
	var songs []*models.Song
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&songs).Error
	return songs, err
}
