package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfarms/pickups-backend/pkg/cache"
	"github.com/meridianfarms/pickups-backend/pkg/clock"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
)

const snapshotCacheTTL = 2 * time.Minute

type snapshotRepository interface {
	SnapshotByShop(ctx context.Context, shopID uuid.UUID) (*Snapshot, error)
}

// Service exposes the shop-facing availability surface: preview of bookable
// days and point checks used by the reschedule flow.
type Service interface {
	Preview(ctx context.Context, shopID uuid.UUID) ([]DayAvailability, error)
	CheckSlot(ctx context.Context, shopID uuid.UUID, date time.Time, slotLabel string) (bool, error)
	CheckDate(ctx context.Context, shopID uuid.UUID, date time.Time) (bool, error)
	SlotStartMinutes(ctx context.Context, shopID uuid.UUID, slotLabel string) (int, error)
}

type service struct {
	repo  snapshotRepository
	calc  *Calculator
	clk   *clock.Clock
	cache *cache.TTL[Snapshot]
	logg  *logger.Logger
}

// NewService wires the availability read surface. Snapshots are cached
// briefly; availability tolerates staleness because configuration changes
// through slow admin flows.
func NewService(repo snapshotRepository, clk *clock.Clock, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("availability repository required")
	}
	if clk == nil {
		return nil, fmt.Errorf("clock required")
	}
	return &service{
		repo:  repo,
		calc:  NewCalculator(clk),
		clk:   clk,
		cache: cache.NewTTL[Snapshot](snapshotCacheTTL, clk.Now),
		logg:  logg,
	}, nil
}

func (s *service) Preview(ctx context.Context, shopID uuid.UUID) ([]DayAvailability, error) {
	snap, err := s.snapshot(ctx, shopID)
	if err != nil {
		return nil, err
	}
	return s.calc.AvailableDays(*snap, s.clk.Now()), nil
}

func (s *service) CheckSlot(ctx context.Context, shopID uuid.UUID, date time.Time, slotLabel string) (bool, error) {
	if slotLabel == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "time slot label required")
	}
	snap, err := s.snapshot(ctx, shopID)
	if err != nil {
		return false, err
	}
	return s.calc.SlotBookable(*snap, s.clk.Now(), date, slotLabel), nil
}

func (s *service) CheckDate(ctx context.Context, shopID uuid.UUID, date time.Time) (bool, error) {
	snap, err := s.snapshot(ctx, shopID)
	if err != nil {
		return false, err
	}
	return s.calc.DateBookable(*snap, s.clk.Now(), date), nil
}

// SlotStartMinutes resolves a slot label to its start time, used when a
// reschedule changes the preferred slot and the cached minutes must follow.
func (s *service) SlotStartMinutes(ctx context.Context, shopID uuid.UUID, slotLabel string) (int, error) {
	snap, err := s.snapshot(ctx, shopID)
	if err != nil {
		return 0, err
	}
	for _, slot := range snap.Slots {
		if slot.Label == slotLabel {
			return slot.StartMinutes, nil
		}
	}
	return 0, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("time slot %q not configured", slotLabel))
}

func (s *service) snapshot(ctx context.Context, shopID uuid.UUID) (*Snapshot, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop identity missing")
	}
	key := "availability:" + shopID.String()
	if cached, ok := s.cache.Get(key); ok {
		return &cached, nil
	}

	snap, err := s.repo.SnapshotByShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "availability configuration not found for shop")
	}
	s.cache.Set(key, *snap)
	return snap, nil
}
