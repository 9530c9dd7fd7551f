package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/Leganyst/roster-core/internal/observability/jsonlog"
)

// Вид уведомления для внешнего компонента доставки.
type NotificationKind string

const (
	NotificationClaimConfirmed  NotificationKind = "claim_confirmed"
	NotificationClaimCancelled  NotificationKind = "claim_cancelled"
	NotificationStandbyAdded    NotificationKind = "standby_added"
	NotificationStandbyPromoted NotificationKind = "standby_promoted"
	NotificationEventCancelled  NotificationKind = "event_cancelled"
)

// Notification — событие движка заявок для коллаборатора-нотификатора.
type Notification struct {
	Kind     NotificationKind
	UserID   uuid.UUID
	EventID  uuid.UUID
	SlotID   uuid.UUID
	Position string
}

// Notifier получает уведомления после успешного коммита операции.
// Доставка (почта, вебхуки) — внешний компонент; ошибки доставки
// не влияют на результат операции.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier пишет уведомления в структурированный журнал.
type LogNotifier struct {
	log *jsonlog.Logger
}

func NewLogNotifier(log *jsonlog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	l.log.Info("notification", map[string]any{
		"kind":     string(n.Kind),
		"user_id":  n.UserID.String(),
		"event_id": n.EventID.String(),
		"slot_id":  n.SlotID.String(),
		"position": n.Position,
	})
}
