package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/roster-core/internal/model"
)

type ProfileRepository interface {
	// Найти профиль по внутреннему ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	// Создать или обновить зеркало профиля из каталога пользователей.
	Upsert(ctx context.Context, profile *model.Profile) error
}

type GormProfileRepository struct {
	db *gorm.DB
}

func NewGormProfileRepository(db *gorm.DB) *GormProfileRepository {
	return &GormProfileRepository{db: db}
}

func (r *GormProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	var p model.Profile
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormProfileRepository) Upsert(ctx context.Context, profile *model.Profile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"c_id", "name", "email", "rating", "rating_short", "role", "updated_at",
			}),
		}).
		Create(profile).Error
}
