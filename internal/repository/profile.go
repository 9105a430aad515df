package repository

import (
	"context"
	"errors"
	"time"

	"youniverse/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrUsernameTaken is returned when a profile insert hits the username
// uniqueness constraint.
var ErrUsernameTaken = errors.New("username already taken")

// ProfileRepository exposes the slice of the profile subsystem the radio core
// reads: debut bookkeeping and the roast-consent flags.
type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id uint) (*models.Profile, error)
	GetByUsername(ctx context.Context, username string) (*models.Profile, error)
	SetLastDebutAt(ctx context.Context, id uint, at *time.Time) error
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Create(ctx context.Context, profile *models.Profile) error {
	err := r.db.WithContext(ctx).Create(profile).Error
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUsernameTaken
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrUsernameTaken
	}
	return err
}

func (r *profileRepository) GetByID(ctx context.Context, id uint) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).
		Where("username = ?", username).
		First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// SetLastDebutAt records (or clears, with nil) the failed-debut timestamp that
// drives the 24h second-chance window.
func (r *profileRepository) SetLastDebutAt(ctx context.Context, id uint, at *time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", id).
		Update("last_debut_at", at).Error
}
