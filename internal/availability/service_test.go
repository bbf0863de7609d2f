package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
)

type fakeSnapshotRepo struct {
	snap  *Snapshot
	err   error
	calls int
}

func (f *fakeSnapshotRepo) SnapshotByShop(ctx context.Context, shopID uuid.UUID) (*Snapshot, error) {
	f.calls++
	return f.snap, f.err
}

func TestPreviewReturnsBookableDays(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, loc)
	snap := baseSnapshot()
	repo := &fakeSnapshotRepo{snap: &snap}

	svc, err := NewService(repo, testClock(t, now), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	days, err := svc.Preview(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(days) != snap.Config.MaxBookingDays {
		t.Fatalf("expected %d days, got %d", snap.Config.MaxBookingDays, len(days))
	}
}

func TestSnapshotCachedAcrossCalls(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, loc)
	snap := baseSnapshot()
	repo := &fakeSnapshotRepo{snap: &snap}

	svc, err := NewService(repo, testClock(t, now), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	shopID := uuid.New()
	if _, err := svc.Preview(context.Background(), shopID); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if _, err := svc.CheckDate(context.Background(), shopID, now.AddDate(0, 0, 2)); err != nil {
		t.Fatalf("CheckDate: %v", err)
	}
	if repo.calls != 1 {
		t.Fatalf("expected snapshot loaded once, got %d", repo.calls)
	}
}

func TestMissingConfigIsNotFound(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, loc)
	repo := &fakeSnapshotRepo{snap: nil}

	svc, err := NewService(repo, testClock(t, now), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.Preview(context.Background(), uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestSlotStartMinutesResolvesLabel(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, loc)
	snap := baseSnapshot()
	snap.Slots = []models.TimeSlot{{Label: "Morning", StartMinutes: 540, EndMinutes: 660}}
	repo := &fakeSnapshotRepo{snap: &snap}

	svc, err := NewService(repo, testClock(t, now), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	minutes, err := svc.SlotStartMinutes(context.Background(), uuid.New(), "Morning")
	if err != nil {
		t.Fatalf("SlotStartMinutes: %v", err)
	}
	if minutes != 540 {
		t.Fatalf("expected 540, got %d", minutes)
	}

	if _, err := svc.SlotStartMinutes(context.Background(), uuid.New(), "Dusk"); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not-found for unknown slot, got %v", err)
	}
}
