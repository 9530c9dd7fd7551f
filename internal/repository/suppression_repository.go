package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/roster-core/internal/model"
)

type SuppressionRepository interface {
	// Подавить внешний идентификатор (идемпотентно).
	Add(ctx context.Context, vatsimID int64, by *uuid.UUID, at time.Time) error
	// Все подавленные идентификаторы.
	ListIDs(ctx context.Context) (map[int64]struct{}, error)
}

type GormSuppressionRepository struct {
	db *gorm.DB
}

func NewGormSuppressionRepository(db *gorm.DB) *GormSuppressionRepository {
	return &GormSuppressionRepository{db: db}
}

func (r *GormSuppressionRepository) Add(ctx context.Context, vatsimID int64, by *uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Suppression{VatsimID: vatsimID, SuppressedAt: at, SuppressedBy: by}).
		Error
}

func (r *GormSuppressionRepository) ListIDs(ctx context.Context) (map[int64]struct{}, error) {
	var rows []model.Suppression
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(rows))
	for _, s := range rows {
		out[s.VatsimID] = struct{}{}
	}
	return out, nil
}
