package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Leganyst/roster-core/internal/model"
	"github.com/Leganyst/roster-core/internal/observability/jsonlog"
)

// newTestDB открывает изолированную in-memory SQLite на один тест.
// Одно соединение в пуле: cache=shared делит базу между транзакциями,
// а конкурентные вызовы сериализуются, как и положено тестам гонок.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := model.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func testLogger() *jsonlog.Logger {
	return jsonlog.New(discardWriter{})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// recordingNotifier копит уведомления; потокобезопасен для теста гонок.
type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingNotifier) kinds() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NotificationKind, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Kind)
	}
	return out
}

func (r *recordingNotifier) byKind(kind NotificationKind) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.notes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func seedProfile(t *testing.T, db *gorm.DB, rating int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	p := &model.Profile{
		ID:     id,
		CID:    id.String()[:8], // уникален в пределах теста
		Name:   "test controller",
		Rating: rating,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return p.ID
}

func seedEvent(t *testing.T, db *gorm.DB, start, end time.Time) *model.Event {
	t.Helper()
	ev := &model.Event{
		ID:        uuid.New(),
		Name:      "Test Event",
		StartTime: start,
		EndTime:   end,
		Airports:  "OBBI",
		Status:    model.EventStatusPublished,
	}
	if err := db.Create(ev).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return ev
}

func seedExternalEvent(t *testing.T, db *gorm.DB, vatsimID int64, start, end time.Time) *model.Event {
	t.Helper()
	ev := &model.Event{
		ID:        uuid.New(),
		VatsimID:  &vatsimID,
		Name:      fmt.Sprintf("Feed Event %d", vatsimID),
		StartTime: start,
		EndTime:   end,
		Airports:  "OBBI",
		Status:    model.EventStatusPublished,
	}
	if err := db.Create(ev).Error; err != nil {
		t.Fatalf("seed external event: %v", err)
	}
	return ev
}

func seedSlot(t *testing.T, db *gorm.DB, ev *model.Event, position string, start, end time.Time) *model.Slot {
	t.Helper()
	slot := &model.Slot{
		ID:       uuid.New(),
		EventID:  ev.ID,
		Airport:  "OBBI",
		Position: "OBBI_" + position,
		StartsAt: start,
		EndsAt:   end,
		Status:   model.SlotStatusOpen,
	}
	if err := db.Create(slot).Error; err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	return slot
}

func countClaims(t *testing.T, db *gorm.DB, slotID uuid.UUID, kind model.ClaimKind) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&model.Claim{}).
		Where("slot_id = ? AND kind = ?", slotID, kind).
		Count(&n).Error; err != nil {
		t.Fatalf("count claims: %v", err)
	}
	return n
}

func reloadSlot(t *testing.T, db *gorm.DB, slotID uuid.UUID) *model.Slot {
	t.Helper()
	var slot model.Slot
	if err := db.First(&slot, "id = ?", slotID).Error; err != nil {
		t.Fatalf("reload slot: %v", err)
	}
	return &slot
}
