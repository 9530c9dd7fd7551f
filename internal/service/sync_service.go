package service

import (
	"context"
	"fmt"

	"github.com/Leganyst/roster-core/internal/clock"
	"github.com/Leganyst/roster-core/internal/model"
	"github.com/Leganyst/roster-core/internal/observability/jsonlog"
	"github.com/Leganyst/roster-core/internal/repository"
	"github.com/Leganyst/roster-core/internal/roster"
	"github.com/Leganyst/roster-core/internal/vatsim"
)

// FeedClient — внешний источник событий.
type FeedClient interface {
	FetchEvents(ctx context.Context) ([]vatsim.Event, error)
}

// SyncService — согласование локального расписания с внешним фидом:
// нормализация записей, upsert событий, идемпотентная нарезка слотов
// и missing-sweep по опубликованным событиям внешнего происхождения.
type SyncService struct {
	feed     FeedClient
	events   repository.EventRepository
	supp     repository.SuppressionRepository
	eventSvc *EventService
	clock    clock.Clock
	policy   LifecyclePolicy
	airports []string
	log      *jsonlog.Logger
}

func NewSyncService(
	feed FeedClient,
	events repository.EventRepository,
	supp repository.SuppressionRepository,
	eventSvc *EventService,
	clk clock.Clock,
	policy LifecyclePolicy,
	airports []string,
	log *jsonlog.Logger,
) *SyncService {
	return &SyncService{
		feed:     feed,
		events:   events,
		supp:     supp,
		eventSvc: eventSvc,
		clock:    clk,
		policy:   policy,
		airports: airports,
		log:      log,
	}
}

// Sync выполняет один проход синхронизации. Полный сбой получения фида
// деградирует до no-op: прежнее расписание остаётся, ошибка возвращается
// как ErrUpstreamUnavailable. Сбой отдельной записи логируется и
// пропускается, батч продолжается.
func (s *SyncService) Sync(ctx context.Context) error {
	records, err := s.feed.FetchEvents(ctx)
	if err != nil {
		s.log.Error("feed fetch failed, sync tick abandoned", map[string]any{
			"error": err.Error(),
		})
		return fmt.Errorf("%w: %v", roster.ErrUpstreamUnavailable, err)
	}

	suppressed, err := s.supp.ListIDs(ctx)
	if err != nil {
		return err
	}

	seen := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		norm, err := vatsim.Normalize(rec, s.airports)
		if err != nil {
			s.log.Warn("feed record skipped", map[string]any{
				"name":  rec.Name,
				"error": err.Error(),
			})
			continue
		}
		if _, ok := suppressed[norm.ExternalID]; ok {
			continue
		}

		seen[norm.ExternalID] = struct{}{}

		if err := s.upsertEvent(ctx, norm); err != nil {
			s.log.Error("feed record upsert failed", map[string]any{
				"external_id": norm.ExternalID,
				"name":        norm.Name,
				"error":       err.Error(),
			})
			continue
		}
	}

	return s.missingSweep(ctx, seen)
}

// upsertEvent — get-or-insert-or-update по внешнему идентификатору,
// затем идемпотентная нарезка слотов.
func (s *SyncService) upsertEvent(ctx context.Context, norm vatsim.Normalized) error {
	now := s.clock.Now()

	ev, err := s.events.GetByVatsimID(ctx, norm.ExternalID)
	switch {
	case err == nil:
		// Отменённое координатором событие фид не воскрешает.
		if ev.Status == model.EventStatusCancelled {
			return nil
		}
		ev.Name = norm.Name
		ev.ShortDescription = norm.ShortDescription
		ev.Description = norm.Description
		ev.Banner = norm.Banner
		ev.Link = norm.Link
		ev.Type = norm.Type
		ev.StartTime = norm.Start
		ev.EndTime = norm.End
		ev.Airports = joinAirports(norm.Airports)
		ev.Routes = norm.RoutesJSON
		ev.Status = model.EventStatusPublished
		ev.MissingCount = 0
		ev.LastSeenAt = &now
		if err := s.events.Update(ctx, ev); err != nil {
			return err
		}
	case repository.IsNotFound(err):
		externalID := norm.ExternalID
		ev = &model.Event{
			VatsimID:         &externalID,
			Name:             norm.Name,
			ShortDescription: norm.ShortDescription,
			Description:      norm.Description,
			Banner:           norm.Banner,
			Link:             norm.Link,
			Type:             norm.Type,
			StartTime:        norm.Start,
			EndTime:          norm.End,
			Airports:         joinAirports(norm.Airports),
			Routes:           norm.RoutesJSON,
			Status:           model.EventStatusPublished,
			LastSeenAt:       &now,
		}
		if err := s.events.Create(ctx, ev); err != nil {
			return err
		}
	default:
		return err
	}

	inserted, err := s.eventSvc.TileEvent(ctx, ev)
	if err != nil {
		return err
	}
	if inserted > 0 {
		s.log.Info("slots generated", map[string]any{
			"event_id": ev.ID.String(),
			"name":     ev.Name,
			"inserted": inserted,
		})
	}
	return nil
}

// missingSweep увеличивает счётчик пропусков у опубликованных событий
// внешнего происхождения, не встреченных в этом батче. По достижении
// порога событие отменяется тем же путём, что и координатором.
func (s *SyncService) missingSweep(ctx context.Context, seen map[int64]struct{}) error {
	now := s.clock.Now()
	published, err := s.events.ListPublishedExternal(ctx, now)
	if err != nil {
		return err
	}

	for _, ev := range published {
		if ev.VatsimID == nil {
			continue
		}
		if _, ok := seen[*ev.VatsimID]; ok {
			continue
		}

		ev.MissingCount++
		if ev.MissingCount < s.policy.MissingThreshold {
			if err := s.events.Update(ctx, &ev); err != nil {
				s.log.Error("missing tick update failed", map[string]any{
					"event_id": ev.ID.String(),
					"error":    err.Error(),
				})
			}
			continue
		}

		if err := s.events.Update(ctx, &ev); err != nil {
			s.log.Error("missing tick update failed", map[string]any{
				"event_id": ev.ID.String(),
				"error":    err.Error(),
			})
			continue
		}
		if err := s.eventSvc.CancelEvent(ctx, ev.ID); err != nil {
			s.log.Error("missing threshold cancel failed", map[string]any{
				"event_id": ev.ID.String(),
				"error":    err.Error(),
			})
			continue
		}
		s.log.Info("event cancelled: missing from feed", map[string]any{
			"event_id":      ev.ID.String(),
			"name":          ev.Name,
			"missing_count": ev.MissingCount,
		})
	}
	return nil
}
