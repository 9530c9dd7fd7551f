package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/roster-core/internal/model"
)

type EventRepository interface {
	// Создать событие.
	Create(ctx context.Context, event *model.Event) error
	// Найти событие по внутреннему ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Event, error)
	// Найти событие по внешнему идентификатору фида.
	GetByVatsimID(ctx context.Context, vatsimID int64) (*model.Event, error)
	// Сохранить изменённое событие.
	Update(ctx context.Context, event *model.Event) error
	// Опубликованные события внешнего происхождения с началом не раньше from —
	// кандидаты missing-sweep'а.
	ListPublishedExternal(ctx context.Context, from time.Time) ([]model.Event, error)
	// События, подлежащие жёсткому удалению: отменённые с истёкшим delete_at
	// и любые с end_time старше postEndGrace.
	ListPurgeable(ctx context.Context, now time.Time, postEndGrace time.Duration) ([]model.Event, error)
	// Жёстко удалить событие вместе со слотами и заявками.
	Delete(ctx context.Context, id uuid.UUID) error
}

type GormEventRepository struct {
	db *gorm.DB
}

func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	return &GormEventRepository{db: db}
}

func (r *GormEventRepository) Create(ctx context.Context, event *model.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *GormEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	var ev model.Event
	if err := r.db.WithContext(ctx).First(&ev, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *GormEventRepository) GetByVatsimID(ctx context.Context, vatsimID int64) (*model.Event, error) {
	var ev model.Event
	if err := r.db.WithContext(ctx).First(&ev, "vatsim_id = ?", vatsimID).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *GormEventRepository) Update(ctx context.Context, event *model.Event) error {
	return r.db.WithContext(ctx).Save(event).Error
}

func (r *GormEventRepository) ListPublishedExternal(ctx context.Context, from time.Time) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("status = ?", model.EventStatusPublished).
		Where("vatsim_id IS NOT NULL").
		Where("start_time >= ?", from).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *GormEventRepository) ListPurgeable(ctx context.Context, now time.Time, postEndGrace time.Duration) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("(status = ? AND delete_at IS NOT NULL AND delete_at <= ?) OR end_time < ?",
			model.EventStatusCancelled, now, now.Add(-postEndGrace)).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Delete каскадно убирает заявки и слоты события в одной транзакции —
// на SQLite в тестах нет серверных каскадов, поэтому явно.
func (r *GormEventRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slotIDs := tx.Model(&model.Slot{}).Select("id").Where("event_id = ?", id)
		if err := tx.Where("slot_id IN (?)", slotIDs).Delete(&model.Claim{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", id).Delete(&model.Slot{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Event{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// IsNotFound — обёртка для проверки отсутствия записи.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
