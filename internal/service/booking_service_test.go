package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/roster-core/internal/clock"
	"github.com/Leganyst/roster-core/internal/model"
	"github.com/Leganyst/roster-core/internal/roster"
)

var bookingNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newBookingService(db *gorm.DB, now time.Time) (*BookingService, *recordingNotifier) {
	notifier := &recordingNotifier{}
	svc := NewBookingService(db, roster.DefaultRankTable(), clock.NewFixed(now), notifier)
	return svc, notifier
}

func TestClaimPrimary_Success(t *testing.T) {
	db := newTestDB(t)
	svc, notifier := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(2*time.Hour), bookingNow.Add(4*time.Hour))
	slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
	user := seedProfile(t, db, 3)

	claim, err := svc.ClaimPrimary(context.Background(), slot.ID, user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claim.Kind != model.ClaimKindPrimary || claim.UserID != user {
		t.Fatalf("unexpected claim: %+v", claim)
	}

	got := reloadSlot(t, db, slot.ID)
	if got.UserID == nil || *got.UserID != user {
		t.Fatalf("expected slot occupied by claimant, got %+v", got.UserID)
	}
	if got.Status != model.SlotStatusClaimed {
		t.Fatalf("expected slot status claimed, got %q", got.Status)
	}

	confirmed := notifier.byKind(NotificationClaimConfirmed)
	if len(confirmed) != 1 || confirmed[0].UserID != user || confirmed[0].SlotID != slot.ID {
		t.Fatalf("expected one claim_confirmed notification, got %+v", notifier.kinds())
	}
}

func TestClaimPrimary_AlreadyOccupied(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(2*time.Hour), bookingNow.Add(4*time.Hour))
	slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
	first := seedProfile(t, db, 3)
	second := seedProfile(t, db, 4)

	if _, err := svc.ClaimPrimary(context.Background(), slot.ID, first); err != nil {
		t.Fatalf("first claim must succeed: %v", err)
	}
	if _, err := svc.ClaimPrimary(context.Background(), slot.ID, second); !errors.Is(err, roster.ErrAlreadyOccupied) {
		t.Fatalf("expected ErrAlreadyOccupied, got %v", err)
	}

	if n := countClaims(t, db, slot.ID, model.ClaimKindPrimary); n != 1 {
		t.Fatalf("expected exactly one primary claim, got %d", n)
	}
	got := reloadSlot(t, db, slot.ID)
	if got.UserID == nil || *got.UserID != first {
		t.Fatalf("slot occupant must stay the first claimant")
	}
}

func TestClaimPrimary_IneligibleRank(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(2*time.Hour), bookingNow.Add(4*time.Hour))
	slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
	user := seedProfile(t, db, 2) // S1: недостаточно для TWR

	if _, err := svc.ClaimPrimary(context.Background(), slot.ID, user); !errors.Is(err, roster.ErrIneligibleRank) {
		t.Fatalf("expected ErrIneligibleRank, got %v", err)
	}
	got := reloadSlot(t, db, slot.ID)
	if got.UserID != nil || got.Status != model.SlotStatusOpen {
		t.Fatalf("slot must stay open after rejected claim, got %+v", got)
	}
}

func TestClaimPrimary_BookingWindowBoundary(t *testing.T) {
	// Бронирование закрывается строго позже, чем за 15 минут до начала:
	// за 14 минут уже поздно, за 16 — ещё можно.
	t.Run("closed at start minus 14m", func(t *testing.T) {
		db := newTestDB(t)
		svc, _ := newBookingService(db, bookingNow)

		ev := seedEvent(t, db, bookingNow.Add(14*time.Minute), bookingNow.Add(3*time.Hour))
		slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
		user := seedProfile(t, db, 3)

		if _, err := svc.ClaimPrimary(context.Background(), slot.ID, user); !errors.Is(err, roster.ErrBookingClosed) {
			t.Fatalf("expected ErrBookingClosed, got %v", err)
		}
	})

	t.Run("open at start minus 16m", func(t *testing.T) {
		db := newTestDB(t)
		svc, _ := newBookingService(db, bookingNow)

		ev := seedEvent(t, db, bookingNow.Add(16*time.Minute), bookingNow.Add(3*time.Hour))
		slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
		user := seedProfile(t, db, 3)

		if _, err := svc.ClaimPrimary(context.Background(), slot.ID, user); err != nil {
			t.Fatalf("expected claim to succeed, got %v", err)
		}
	})
}

func TestClaimPrimary_CancelledEvent(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(2*time.Hour), bookingNow.Add(4*time.Hour))
	if err := db.Model(ev).Update("status", model.EventStatusCancelled).Error; err != nil {
		t.Fatalf("cancel event: %v", err)
	}
	slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
	user := seedProfile(t, db, 3)

	if _, err := svc.ClaimPrimary(context.Background(), slot.ID, user); !errors.Is(err, roster.ErrBookingClosed) {
		t.Fatalf("expected ErrBookingClosed for cancelled event, got %v", err)
	}
}

func TestClaimPrimary_OverlapRejected(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(2*time.Hour), bookingNow.Add(6*time.Hour))
	twr := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
	// Пересекается со слотом TWR наполовину.
	app := seedSlot(t, db, ev, "APP", ev.StartTime.Add(30*time.Minute), ev.StartTime.Add(90*time.Minute))
	// Встык к TWR: полуоткрытые окна не пересекаются.
	adjacent := seedSlot(t, db, ev, "APP", ev.StartTime.Add(time.Hour), ev.StartTime.Add(2*time.Hour))
	user := seedProfile(t, db, 4)

	if _, err := svc.ClaimPrimary(context.Background(), twr.ID, user); err != nil {
		t.Fatalf("first claim must succeed: %v", err)
	}
	if _, err := svc.ClaimPrimary(context.Background(), app.ID, user); !errors.Is(err, roster.ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
	if _, err := svc.ClaimPrimary(context.Background(), adjacent.ID, user); err != nil {
		t.Fatalf("back-to-back slot must be claimable: %v", err)
	}
}

func TestClaimPrimary_SlotNotFound(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newBookingService(db, bookingNow)
	user := seedProfile(t, db, 3)

	if _, err := svc.ClaimPrimary(context.Background(), uuid.New(), user); !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimPrimary_ConcurrentSingleWinner(t *testing.T) {
	db := newTestDB(t)
	svc, notifier := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(2*time.Hour), bookingNow.Add(4*time.Hour))
	slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))

	const contenders = 8
	users := make([]uuid.UUID, contenders)
	for i := range users {
		users[i] = seedProfile(t, db, 3+i%3)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		winner int
	)
	for _, user := range users {
		wg.Add(1)
		go func(uid uuid.UUID) {
			defer wg.Done()
			_, err := svc.ClaimPrimary(context.Background(), slot.ID, uid)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winner++
			} else {
				errs = append(errs, err)
			}
		}(user)
	}
	wg.Wait()

	if winner != 1 {
		t.Fatalf("expected exactly one winning claim, got %d (errors: %v)", winner, errs)
	}
	if n := countClaims(t, db, slot.ID, model.ClaimKindPrimary); n != 1 {
		t.Fatalf("expected exactly one primary claim row, got %d", n)
	}
	if got := reloadSlot(t, db, slot.ID); got.UserID == nil {
		t.Fatalf("slot must be occupied by the winner")
	}
	if len(notifier.byKind(NotificationClaimConfirmed)) != 1 {
		t.Fatalf("expected one confirmation, got %v", notifier.kinds())
	}
}

func TestClaimStandby_OnOccupiedSlot(t *testing.T) {
	db := newTestDB(t)
	svc, notifier := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(2*time.Hour), bookingNow.Add(4*time.Hour))
	slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
	primary := seedProfile(t, db, 3)
	standby := seedProfile(t, db, 4)

	if _, err := svc.ClaimPrimary(context.Background(), slot.ID, primary); err != nil {
		t.Fatalf("primary claim: %v", err)
	}
	claim, err := svc.ClaimStandby(context.Background(), slot.ID, standby)
	if err != nil {
		t.Fatalf("standby claim: %v", err)
	}
	if claim.Kind != model.ClaimKindStandby {
		t.Fatalf("expected standby kind, got %q", claim.Kind)
	}

	// Слот остаётся за primary: standby занятость не трогает.
	got := reloadSlot(t, db, slot.ID)
	if got.UserID == nil || *got.UserID != primary {
		t.Fatalf("standby claim must not change the occupant")
	}
	if len(notifier.byKind(NotificationStandbyAdded)) != 1 {
		t.Fatalf("expected one standby_added notification, got %v", notifier.kinds())
	}
}

func TestClaimStandby_DuplicateRejected(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(2*time.Hour), bookingNow.Add(4*time.Hour))
	slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
	user := seedProfile(t, db, 3)

	if _, err := svc.ClaimStandby(context.Background(), slot.ID, user); err != nil {
		t.Fatalf("first standby claim: %v", err)
	}
	if _, err := svc.ClaimStandby(context.Background(), slot.ID, user); !errors.Is(err, roster.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate standby, got %v", err)
	}
	if n := countClaims(t, db, slot.ID, model.ClaimKindStandby); n != 1 {
		t.Fatalf("expected one standby claim, got %d", n)
	}
}

func TestCancelClaim_LockBoundary(t *testing.T) {
	// Отмена блокируется за 60 минут до начала слота включительно:
	// за 59 минут уже нельзя, за 61 — ещё можно.
	t.Run("locked at start minus 59m", func(t *testing.T) {
		db := newTestDB(t)
		svc, _ := newBookingService(db, bookingNow)

		ev := seedEvent(t, db, bookingNow.Add(59*time.Minute), bookingNow.Add(3*time.Hour))
		slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
		user := seedProfile(t, db, 3)

		if _, err := svc.ClaimPrimary(context.Background(), slot.ID, user); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if err := svc.CancelClaim(context.Background(), slot.ID, user, false); !errors.Is(err, roster.ErrCancellationLocked) {
			t.Fatalf("expected ErrCancellationLocked, got %v", err)
		}
		if got := reloadSlot(t, db, slot.ID); got.UserID == nil {
			t.Fatalf("locked cancel must leave the claim in place")
		}
	})

	t.Run("allowed at start minus 61m", func(t *testing.T) {
		db := newTestDB(t)
		svc, _ := newBookingService(db, bookingNow)

		ev := seedEvent(t, db, bookingNow.Add(61*time.Minute), bookingNow.Add(3*time.Hour))
		slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
		user := seedProfile(t, db, 3)

		if _, err := svc.ClaimPrimary(context.Background(), slot.ID, user); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if err := svc.CancelClaim(context.Background(), slot.ID, user, false); err != nil {
			t.Fatalf("expected cancel to succeed, got %v", err)
		}
		got := reloadSlot(t, db, slot.ID)
		if got.UserID != nil || got.Status != model.SlotStatusOpen {
			t.Fatalf("expected slot released, got %+v", got)
		}
	})
}

func TestCancelClaim_StaffOverrideBypassesLock(t *testing.T) {
	db := newTestDB(t)
	svc, notifier := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(30*time.Minute), bookingNow.Add(3*time.Hour))
	slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
	user := seedProfile(t, db, 3)

	// Заявку сажаем напрямую: окно бронирования уже закрыто.
	claim := &model.Claim{SlotID: slot.ID, UserID: user, Kind: model.ClaimKindPrimary, CreatedAt: bookingNow}
	if err := db.Create(claim).Error; err != nil {
		t.Fatalf("seed claim: %v", err)
	}
	if err := db.Model(&model.Slot{}).Where("id = ?", slot.ID).
		Updates(map[string]any{"user_id": user, "status": model.SlotStatusClaimed}).Error; err != nil {
		t.Fatalf("occupy slot: %v", err)
	}

	if err := svc.CancelClaim(context.Background(), slot.ID, user, false); !errors.Is(err, roster.ErrCancellationLocked) {
		t.Fatalf("expected lock for self-cancel, got %v", err)
	}
	if err := svc.CancelClaim(context.Background(), slot.ID, user, true); err != nil {
		t.Fatalf("staff override must bypass the lock: %v", err)
	}
	if got := reloadSlot(t, db, slot.ID); got.Status != model.SlotStatusOpen {
		t.Fatalf("expected slot released, got %q", got.Status)
	}
	if len(notifier.byKind(NotificationClaimCancelled)) != 1 {
		t.Fatalf("expected claim_cancelled notification, got %v", notifier.kinds())
	}
}

func TestCancelClaim_PromotesEarliestStandby(t *testing.T) {
	db := newTestDB(t)
	svc, notifier := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(3*time.Hour), bookingNow.Add(6*time.Hour))
	slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
	primary := seedProfile(t, db, 3)
	early := seedProfile(t, db, 3)
	late := seedProfile(t, db, 4)

	if _, err := svc.ClaimPrimary(context.Background(), slot.ID, primary); err != nil {
		t.Fatalf("primary claim: %v", err)
	}
	// Часы заморожены: created_at совпадает, FIFO решается порядком вставки.
	if _, err := svc.ClaimStandby(context.Background(), slot.ID, early); err != nil {
		t.Fatalf("first standby: %v", err)
	}
	if _, err := svc.ClaimStandby(context.Background(), slot.ID, late); err != nil {
		t.Fatalf("second standby: %v", err)
	}

	if err := svc.CancelClaim(context.Background(), slot.ID, primary, false); err != nil {
		t.Fatalf("cancel primary: %v", err)
	}

	got := reloadSlot(t, db, slot.ID)
	if got.UserID == nil || *got.UserID != early {
		t.Fatalf("expected earliest standby promoted, slot occupant = %v", got.UserID)
	}
	if got.Status != model.SlotStatusClaimed {
		t.Fatalf("expected slot to stay claimed, got %q", got.Status)
	}
	if n := countClaims(t, db, slot.ID, model.ClaimKindPrimary); n != 1 {
		t.Fatalf("expected one primary claim after promotion, got %d", n)
	}
	if n := countClaims(t, db, slot.ID, model.ClaimKindStandby); n != 1 {
		t.Fatalf("expected one remaining standby claim, got %d", n)
	}

	promoted := notifier.byKind(NotificationStandbyPromoted)
	if len(promoted) != 1 || promoted[0].UserID != early {
		t.Fatalf("expected standby_promoted for the earliest standby, got %+v", promoted)
	}
	if len(notifier.byKind(NotificationClaimCancelled)) != 1 {
		t.Fatalf("expected claim_cancelled notification, got %v", notifier.kinds())
	}
}

func TestCancelClaim_NoStandbyReleasesSlot(t *testing.T) {
	db := newTestDB(t)
	svc, notifier := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(3*time.Hour), bookingNow.Add(6*time.Hour))
	slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
	user := seedProfile(t, db, 3)

	if _, err := svc.ClaimPrimary(context.Background(), slot.ID, user); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := svc.CancelClaim(context.Background(), slot.ID, user, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got := reloadSlot(t, db, slot.ID)
	if got.UserID != nil || got.Status != model.SlotStatusOpen {
		t.Fatalf("expected open slot after cancel, got %+v", got)
	}
	if len(notifier.byKind(NotificationStandbyPromoted)) != 0 {
		t.Fatalf("no promotion expected, got %v", notifier.kinds())
	}
}

func TestCancelClaim_NotFound(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(3*time.Hour), bookingNow.Add(6*time.Hour))
	slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
	user := seedProfile(t, db, 3)

	if err := svc.CancelClaim(context.Background(), slot.ID, user, false); !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for user without claims, got %v", err)
	}
}

func TestCancelClaim_StandbyOnlyLeavesPrimaryIntact(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newBookingService(db, bookingNow)

	ev := seedEvent(t, db, bookingNow.Add(3*time.Hour), bookingNow.Add(6*time.Hour))
	slot := seedSlot(t, db, ev, "TWR", ev.StartTime, ev.StartTime.Add(time.Hour))
	primary := seedProfile(t, db, 3)
	standby := seedProfile(t, db, 3)

	if _, err := svc.ClaimPrimary(context.Background(), slot.ID, primary); err != nil {
		t.Fatalf("primary claim: %v", err)
	}
	if _, err := svc.ClaimStandby(context.Background(), slot.ID, standby); err != nil {
		t.Fatalf("standby claim: %v", err)
	}

	if err := svc.CancelClaim(context.Background(), slot.ID, standby, false); err != nil {
		t.Fatalf("standby cancel: %v", err)
	}

	got := reloadSlot(t, db, slot.ID)
	if got.UserID == nil || *got.UserID != primary {
		t.Fatalf("primary occupant must be untouched by standby cancel")
	}
	if n := countClaims(t, db, slot.ID, model.ClaimKindStandby); n != 0 {
		t.Fatalf("expected standby claim removed, got %d", n)
	}
}
