package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/roster-core/internal/clock"
	"github.com/Leganyst/roster-core/internal/model"
	"github.com/Leganyst/roster-core/internal/observability/jsonlog"
	"github.com/Leganyst/roster-core/internal/repository"
	"github.com/Leganyst/roster-core/internal/roster"
)

// LifecyclePolicy — пороги жизненного цикла событий.
type LifecyclePolicy struct {
	// Отложенное жёсткое удаление после отмены.
	PurgeDelay time.Duration
	// Грейс после конца события до зачистки.
	PostEndGrace time.Duration
	// Сколько подряд пропусков в фиде переводит событие в cancelled.
	MissingThreshold int
}

func DefaultLifecyclePolicy() LifecyclePolicy {
	return LifecyclePolicy{
		PurgeDelay:       10 * time.Minute,
		PostEndGrace:     5 * time.Minute,
		MissingThreshold: 2,
	}
}

// EventService управляет жизненным циклом событий и составом их слотов:
// создание, отмена, жёсткое удаление, ручные слоты, зачистка.
type EventService struct {
	db        *gorm.DB
	events    repository.EventRepository
	slots     repository.SlotRepository
	supp      repository.SuppressionRepository
	notifier  Notifier
	clock     clock.Clock
	policy    LifecyclePolicy
	tile      roster.TilePolicy
	positions []string
	log       *jsonlog.Logger
}

func NewEventService(
	db *gorm.DB,
	events repository.EventRepository,
	slots repository.SlotRepository,
	supp repository.SuppressionRepository,
	notifier Notifier,
	clk clock.Clock,
	policy LifecyclePolicy,
	tile roster.TilePolicy,
	positions []string,
	log *jsonlog.Logger,
) *EventService {
	return &EventService{
		db:        db,
		events:    events,
		slots:     slots,
		supp:      supp,
		notifier:  notifier,
		clock:     clk,
		policy:    policy,
		tile:      tile,
		positions: positions,
		log:       log,
	}
}

// CreateEventInput — данные ручного создания события координатором.
type CreateEventInput struct {
	Name             string
	ShortDescription string
	Description      string
	StartTime        time.Time
	EndTime          time.Time
	Airports         []string
}

// CreateEvent создаёт ручное событие. Ручные события публикуются сразу
// и не участвуют в missing-sweep (нет внешнего идентификатора).
func (s *EventService) CreateEvent(ctx context.Context, in CreateEventInput) (*model.Event, error) {
	window, err := roster.NewTimeRange(in.StartTime, in.EndTime)
	if err != nil {
		return nil, err
	}

	ev := &model.Event{
		Name:             in.Name,
		ShortDescription: in.ShortDescription,
		Description:      in.Description,
		StartTime:        window.Start,
		EndTime:          window.End,
		Airports:         joinAirports(in.Airports),
		Status:           model.EventStatusPublished,
	}
	if err := s.events.Create(ctx, ev); err != nil {
		return nil, err
	}

	if _, err := s.TileEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// TileEvent идемпотентно генерирует слоты события: вставляются только
// отсутствующие тайловые ключи. Событие без аэропортов не генерирует
// ничего — это не ошибка.
func (s *EventService) TileEvent(ctx context.Context, ev *model.Event) (int64, error) {
	window, err := roster.NewTimeRange(ev.StartTime, ev.EndTime)
	if err != nil {
		return 0, err
	}

	descriptors := roster.Tile(window, ev.AirportList(), s.positions, s.tile)
	if len(descriptors) == 0 {
		return 0, nil
	}

	slots := make([]model.Slot, 0, len(descriptors))
	for _, d := range descriptors {
		slots = append(slots, model.Slot{
			EventID:  ev.ID,
			Airport:  d.Airport,
			Position: d.Position,
			StartsAt: d.Start,
			EndsAt:   d.End,
			Status:   model.SlotStatusOpen,
		})
	}
	return s.slots.InsertMissing(ctx, slots)
}

// CancelEvent переводит событие в cancelled и выставляет срок удаления.
// Заявки остаются в хранилище, но слоты отменённого события больше
// не бронируются. Каждому держателю заявки уходит уведомление.
func (s *EventService) CancelEvent(ctx context.Context, eventID uuid.UUID) error {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if repository.IsNotFound(err) {
			return roster.ErrNotFound
		}
		return err
	}
	if ev.Status == model.EventStatusCancelled {
		return nil
	}

	now := s.clock.Now()
	deleteAt := now.Add(s.policy.PurgeDelay)
	ev.Status = model.EventStatusCancelled
	ev.CancelledAt = &now
	ev.DeleteAt = &deleteAt
	if err := s.events.Update(ctx, ev); err != nil {
		return err
	}

	holders, err := s.claimHolders(ctx, eventID)
	if err != nil {
		s.log.Error("cancel event: list claim holders", map[string]any{
			"event_id": eventID.String(),
			"error":    err.Error(),
		})
		return nil
	}
	for _, userID := range holders {
		s.notifier.Notify(ctx, Notification{
			Kind:    NotificationEventCancelled,
			UserID:  userID,
			EventID: eventID,
		})
	}
	return nil
}

// DeleteEvent жёстко удаляет событие вместе со слотами и заявками.
// Для событий из фида внешний идентификатор подавляется, чтобы следующая
// синхронизация не воскресила событие.
func (s *EventService) DeleteEvent(ctx context.Context, eventID uuid.UUID, by *uuid.UUID) error {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if repository.IsNotFound(err) {
			return roster.ErrNotFound
		}
		return err
	}

	if ev.VatsimID != nil {
		if err := s.supp.Add(ctx, *ev.VatsimID, by, s.clock.Now()); err != nil {
			return err
		}
	}

	if err := s.events.Delete(ctx, eventID); err != nil {
		if repository.IsNotFound(err) {
			return roster.ErrNotFound
		}
		return err
	}
	return nil
}

// AddManualSlotInput — ручной слот от координатора.
type AddManualSlotInput struct {
	EventID  uuid.UUID
	Airport  string
	Position string // базовый код, например "TWR"
	StartsAt time.Time
	EndsAt   time.Time
}

// AddManualSlot добавляет слот вне нарезки. Окно слота должно лежать
// внутри окна события, аэропорт — входить в аэропорты события.
func (s *EventService) AddManualSlot(ctx context.Context, in AddManualSlotInput) (*model.Slot, error) {
	ev, err := s.events.GetByID(ctx, in.EventID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, roster.ErrNotFound
		}
		return nil, err
	}

	window, err := roster.NewTimeRange(in.StartsAt, in.EndsAt)
	if err != nil {
		return nil, err
	}
	eventWindow, err := roster.NewTimeRange(ev.StartTime, ev.EndTime)
	if err != nil {
		return nil, err
	}
	if !eventWindow.Contains(window) {
		return nil, fmt.Errorf("%w: slot window outside event window", roster.ErrInvalidTimeWindow)
	}

	if !containsAirport(ev.AirportList(), in.Airport) {
		return nil, fmt.Errorf("%w: %q", roster.ErrAirportNotManaged, in.Airport)
	}

	slot := &model.Slot{
		EventID:  ev.ID,
		Airport:  in.Airport,
		Position: in.Airport + "_" + in.Position,
		StartsAt: window.Start,
		EndsAt:   window.End,
		Status:   model.SlotStatusOpen,
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, roster.ErrConflict
		}
		return nil, err
	}
	return slot, nil
}

// PurgeExpired жёстко удаляет отменённые события с истёкшим delete_at
// и события, закончившиеся раньше грейс-окна.
func (s *EventService) PurgeExpired(ctx context.Context) error {
	now := s.clock.Now()
	purgeable, err := s.events.ListPurgeable(ctx, now, s.policy.PostEndGrace)
	if err != nil {
		return err
	}

	for _, ev := range purgeable {
		if err := s.events.Delete(ctx, ev.ID); err != nil {
			s.log.Error("purge event", map[string]any{
				"event_id": ev.ID.String(),
				"error":    err.Error(),
			})
			continue
		}
		s.log.Info("event purged", map[string]any{
			"event_id": ev.ID.String(),
			"name":     ev.Name,
			"status":   string(ev.Status),
		})
	}
	return nil
}

// claimHolders возвращает различных держателей заявок события.
func (s *EventService) claimHolders(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	var holders []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&model.Claim{}).
		Distinct().
		Joins("JOIN slots ON slots.id = claims.slot_id").
		Where("slots.event_id = ?", eventID).
		Pluck("claims.user_id", &holders).Error
	if err != nil {
		return nil, err
	}
	return holders, nil
}

func joinAirports(airports []string) string {
	return strings.Join(airports, ",")
}

func containsAirport(list []string, icao string) bool {
	for _, a := range list {
		if a == icao {
			return true
		}
	}
	return false
}
