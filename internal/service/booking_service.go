package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/roster-core/internal/clock"
	"github.com/Leganyst/roster-core/internal/model"
	"github.com/Leganyst/roster-core/internal/roster"
)

// BookingPolicy — окна политики бронирования.
type BookingPolicy struct {
	// Бронирование закрывается за BookingClose до начала события.
	BookingClose time.Duration
	// Отмена блокируется за CancelLock до начала слота.
	CancelLock time.Duration
	// Сколько раз повторять транзакцию при конфликте уникальности.
	ConflictRetries int
}

func DefaultBookingPolicy() BookingPolicy {
	return BookingPolicy{
		BookingClose:    15 * time.Minute,
		CancelLock:      60 * time.Minute,
		ConflictRetries: 3,
	}
}

// BookingService — движок арбитража заявок на слоты.
//
// Все решения о допуске принимаются внутри одной транзакции
// (read-then-write), а инвариант "не больше одной primary на слот"
// дополнительно держит частичный уникальный индекс: гонка двух
// конкурентных заявок разрешается на уровне хранилища, проигравшая
// транзакция перечитывает состояние и получает ErrAlreadyOccupied.
type BookingService struct {
	db       *gorm.DB
	ranks    roster.RankTable
	clock    clock.Clock
	notifier Notifier
	policy   BookingPolicy
}

func NewBookingService(
	db *gorm.DB,
	ranks roster.RankTable,
	clk clock.Clock,
	notifier Notifier,
	opts ...BookingServiceOption,
) *BookingService {
	s := &BookingService{
		db:       db,
		ranks:    ranks,
		clock:    clk,
		notifier: notifier,
		policy:   DefaultBookingPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type BookingServiceOption func(*BookingService)

// WithBookingPolicy переопределяет окна политики бронирования.
func WithBookingPolicy(p BookingPolicy) BookingServiceOption {
	return func(s *BookingService) {
		if p.ConflictRetries <= 0 {
			p.ConflictRetries = DefaultBookingPolicy().ConflictRetries
		}
		s.policy = p
	}
}

// ClaimPrimary занимает слот как основной исполнитель.
func (s *BookingService) ClaimPrimary(ctx context.Context, slotID, claimantID uuid.UUID) (*model.Claim, error) {
	var (
		claim *model.Claim
		note  *Notification
	)

	err := s.withConflictRetry(ctx, func(tx *gorm.DB) error {
		slot, err := loadSlot(tx, slotID)
		if err != nil {
			return err
		}
		if slot.UserID != nil {
			return roster.ErrAlreadyOccupied
		}
		if err := s.admit(tx, slot, claimantID); err != nil {
			return err
		}

		c := &model.Claim{
			SlotID:    slot.ID,
			UserID:    claimantID,
			Kind:      model.ClaimKindPrimary,
			CreatedAt: s.clock.Now(),
		}
		// Вставка и инвариант единственной primary — одна атомарная
		// операция: дубль по индексу откатывает транзакцию целиком.
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if err := occupySlot(tx, slot.ID, claimantID); err != nil {
			return err
		}

		claim = c
		note = &Notification{
			Kind:     NotificationClaimConfirmed,
			UserID:   claimantID,
			EventID:  slot.EventID,
			SlotID:   slot.ID,
			Position: slot.Position,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, *note)
	return claim, nil
}

// ClaimStandby ставит клейманта в очередь ожидания слота.
// Занятость слота не проверяется; отклоняется только повторная
// standby-заявка того же клейманта на тот же слот.
func (s *BookingService) ClaimStandby(ctx context.Context, slotID, claimantID uuid.UUID) (*model.Claim, error) {
	var (
		claim *model.Claim
		note  *Notification
	)

	err := s.withConflictRetry(ctx, func(tx *gorm.DB) error {
		slot, err := loadSlot(tx, slotID)
		if err != nil {
			return err
		}
		if err := s.admit(tx, slot, claimantID); err != nil {
			return err
		}

		var dup int64
		if err := tx.Model(&model.Claim{}).
			Where("slot_id = ? AND user_id = ? AND kind = ?", slot.ID, claimantID, model.ClaimKindStandby).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return roster.ErrConflict
		}

		c := &model.Claim{
			SlotID:    slot.ID,
			UserID:    claimantID,
			Kind:      model.ClaimKindStandby,
			CreatedAt: s.clock.Now(),
		}
		if err := tx.Create(c).Error; err != nil {
			return err
		}

		claim = c
		note = &Notification{
			Kind:     NotificationStandbyAdded,
			UserID:   claimantID,
			EventID:  slot.EventID,
			SlotID:   slot.ID,
			Position: slot.Position,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, *note)
	return claim, nil
}

// CancelClaim снимает все заявки клейманта на слот. Если снята primary,
// в той же транзакции продвигается самая ранняя standby: гонка прямого
// ClaimPrimary и продвижения не может закончиться двумя primary.
// staffOverride обходит окно блокировки отмены.
func (s *BookingService) CancelClaim(ctx context.Context, slotID, claimantID uuid.UUID, staffOverride bool) error {
	var notes []Notification

	err := s.withConflictRetry(ctx, func(tx *gorm.DB) error {
		notes = notes[:0]

		slot, err := loadSlot(tx, slotID)
		if err != nil {
			return err
		}

		if !staffOverride {
			now := s.clock.Now()
			if slot.StartsAt.Sub(now) <= s.policy.CancelLock {
				return roster.ErrCancellationLocked
			}
		}

		var mine []model.Claim
		if err := tx.Where("slot_id = ? AND user_id = ?", slot.ID, claimantID).Find(&mine).Error; err != nil {
			return err
		}
		if len(mine) == 0 {
			return roster.ErrNotFound
		}

		hadPrimary := false
		for _, c := range mine {
			if c.Kind == model.ClaimKindPrimary {
				hadPrimary = true
			}
		}

		if err := tx.Where("slot_id = ? AND user_id = ?", slot.ID, claimantID).
			Delete(&model.Claim{}).Error; err != nil {
			return err
		}

		notes = append(notes, Notification{
			Kind:     NotificationClaimCancelled,
			UserID:   claimantID,
			EventID:  slot.EventID,
			SlotID:   slot.ID,
			Position: slot.Position,
		})

		if !hadPrimary {
			return nil
		}

		if err := vacateSlot(tx, slot.ID); err != nil {
			return err
		}

		promoted, err := s.promoteStandby(tx, slot)
		if err != nil {
			return err
		}
		if promoted != nil {
			notes = append(notes, Notification{
				Kind:     NotificationStandbyPromoted,
				UserID:   promoted.UserID,
				EventID:  slot.EventID,
				SlotID:   slot.ID,
				Position: slot.Position,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, n := range notes {
		s.notifier.Notify(ctx, n)
	}
	return nil
}

// promoteStandby выбирает самую раннюю standby-заявку (FIFO по времени
// создания, при равенстве — по порядку вставки), удаляет её и вставляет
// как новую primary. Возвращает nil без ошибки, если очередь пуста.
func (s *BookingService) promoteStandby(tx *gorm.DB, slot *model.Slot) (*model.Claim, error) {
	var sb model.Claim
	err := tx.Where("slot_id = ? AND kind = ?", slot.ID, model.ClaimKindStandby).
		Order("created_at ASC, id ASC").
		First(&sb).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := tx.Delete(&model.Claim{}, sb.ID).Error; err != nil {
		return nil, err
	}

	promoted := &model.Claim{
		SlotID:    slot.ID,
		UserID:    sb.UserID,
		Kind:      model.ClaimKindPrimary,
		CreatedAt: s.clock.Now(),
	}
	if err := tx.Create(promoted).Error; err != nil {
		return nil, err
	}
	if err := occupySlot(tx, slot.ID, sb.UserID); err != nil {
		return nil, err
	}

	return promoted, nil
}

// admit — проверки допуска, общие для primary и standby:
// окно бронирования, статус события, рейтинг, пересечения.
func (s *BookingService) admit(tx *gorm.DB, slot *model.Slot, claimantID uuid.UUID) error {
	ev := slot.Event
	if ev == nil {
		return roster.ErrNotFound
	}
	if ev.Status == model.EventStatusCancelled {
		return roster.ErrBookingClosed
	}

	now := s.clock.Now()
	if now.After(ev.StartTime.Add(-s.policy.BookingClose)) {
		return roster.ErrBookingClosed
	}

	var profile model.Profile
	if err := tx.First(&profile, "id = ?", claimantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return roster.ErrNotFound
		}
		return err
	}
	if err := s.ranks.Eligible(slot.Position, profile.Rating); err != nil {
		return err
	}

	// Пересечение с другими заявками клейманта на этом же событии.
	var overlapping int64
	err := tx.Model(&model.Claim{}).
		Joins("JOIN slots ON slots.id = claims.slot_id").
		Where("claims.user_id = ?", claimantID).
		Where("slots.event_id = ?", slot.EventID).
		Where("slots.id <> ?", slot.ID).
		Where("slots.starts_at < ? AND ? < slots.ends_at", slot.EndsAt, slot.StartsAt).
		Count(&overlapping).Error
	if err != nil {
		return err
	}
	if overlapping > 0 {
		return roster.ErrOverlap
	}

	return nil
}

// withConflictRetry выполняет fn в транзакции с оптимистичным повтором
// при нарушении уникальности. Исчерпание попыток — ErrConflict.
func (s *BookingService) withConflictRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < s.policy.ConflictRetries; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(tx)
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return roster.ErrConflict
}

func loadSlot(tx *gorm.DB, slotID uuid.UUID) (*model.Slot, error) {
	var slot model.Slot
	if err := tx.Preload("Event").First(&slot, "id = ?", slotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, roster.ErrNotFound
		}
		return nil, err
	}
	return &slot, nil
}

func occupySlot(tx *gorm.DB, slotID, userID uuid.UUID) error {
	return tx.Model(&model.Slot{}).
		Where("id = ?", slotID).
		Updates(map[string]any{
			"user_id": userID,
			"status":  model.SlotStatusClaimed,
		}).Error
}

func vacateSlot(tx *gorm.DB, slotID uuid.UUID) error {
	return tx.Model(&model.Slot{}).
		Where("id = ?", slotID).
		Updates(map[string]any{
			"user_id": nil,
			"status":  model.SlotStatusOpen,
		}).Error
}
