package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/roster-core/internal/model"
)

type SlotRepository interface {
	// Создать слот; дубль по тайловому ключу — ошибка (gorm.ErrDuplicatedKey).
	Create(ctx context.Context, slot *model.Slot) error
	// Вставить недостающие слоты, молча пропуская существующие ключи.
	// Возвращает количество реально вставленных.
	InsertMissing(ctx context.Context, slots []model.Slot) (int64, error)
	// Найти слот по ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Slot, error)
	// Слоты события в порядке начала.
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Slot, error)
	// Удалить слот вместе с заявками (правка ростера координатором).
	Delete(ctx context.Context, id uuid.UUID) error
}

type GormSlotRepository struct {
	db *gorm.DB
}

func NewGormSlotRepository(db *gorm.DB) *GormSlotRepository {
	return &GormSlotRepository{db: db}
}

func (r *GormSlotRepository) Create(ctx context.Context, slot *model.Slot) error {
	return r.db.WithContext(ctx).Create(slot).Error
}

func (r *GormSlotRepository) InsertMissing(ctx context.Context, slots []model.Slot) (int64, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&slots)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *GormSlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	var slot model.Slot
	if err := r.db.WithContext(ctx).Preload("Event").First(&slot, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *GormSlotRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Slot, error) {
	var slots []model.Slot
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("starts_at ASC, position ASC").
		Find(&slots).Error
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (r *GormSlotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("slot_id = ?", id).Delete(&model.Claim{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Slot{}, "id = ?", id).Error
	})
}
