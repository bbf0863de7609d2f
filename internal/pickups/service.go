package pickups

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
	"github.com/meridianfarms/pickups-backend/pkg/outbox"
	"github.com/meridianfarms/pickups-backend/pkg/outbox/payloads"
)

type pickupsRepository interface {
	Create(ctx context.Context, pickup *models.PickupSchedule) (*models.PickupSchedule, error)
	FindByID(ctx context.Context, shopID, id uuid.UUID) (*models.PickupSchedule, error)
	Update(ctx context.Context, pickup *models.PickupSchedule) error
	ListByShop(ctx context.Context, shopID uuid.UUID, from, to time.Time, limit int) ([]models.PickupSchedule, error)
	UpdateTx(ctx context.Context, tx *gorm.DB, pickup *models.PickupSchedule) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes the fulfillment side of pickups: one-off creation, status
// advancement, and customer snapshot edits.
type Service interface {
	Get(ctx context.Context, shopID, pickupID uuid.UUID) (*models.PickupSchedule, error)
	List(ctx context.Context, shopID uuid.UUID, from, to time.Time, limit int) ([]models.PickupSchedule, error)
	CreateOneOff(ctx context.Context, shopID uuid.UUID, input CreateOneOffInput) (*models.PickupSchedule, error)
	AdvanceStatus(ctx context.Context, shopID, pickupID uuid.UUID, target enums.PickupStatus) (*models.PickupSchedule, error)
	UpdateCustomerSnapshot(ctx context.Context, shopID, pickupID uuid.UUID, input CustomerSnapshotInput) (*models.PickupSchedule, error)
}

// CreateOneOffInput describes an admin-created pickup with no subscription.
type CreateOneOffInput struct {
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	PickupDate     time.Time
	PickupTimeSlot string
	OrderRef       string
	Notes          string
}

// CustomerSnapshotInput carries the editable customer fields.
type CustomerSnapshotInput struct {
	CustomerName  *string
	CustomerEmail *string
	CustomerPhone *string
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo   pickupsRepository
	Tx     txRunner
	Events eventEmitter
	Logger *logger.Logger
}

type service struct {
	repo   pickupsRepository
	tx     txRunner
	events eventEmitter
	logg   *logger.Logger
}

// NewService builds the pickup fulfillment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("pickups repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		events: params.Events,
		logg:   params.Logger,
	}, nil
}

func (s *service) Get(ctx context.Context, shopID, pickupID uuid.UUID) (*models.PickupSchedule, error) {
	pickup, err := s.find(ctx, shopID, pickupID)
	if err != nil {
		return nil, err
	}
	return pickup, nil
}

func (s *service) List(ctx context.Context, shopID uuid.UUID, from, to time.Time, limit int) ([]models.PickupSchedule, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop identity missing")
	}
	return s.repo.ListByShop(ctx, shopID, from, to, limit)
}

func (s *service) CreateOneOff(ctx context.Context, shopID uuid.UUID, input CreateOneOffInput) (*models.PickupSchedule, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop identity missing")
	}
	if strings.TrimSpace(input.CustomerName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	}
	if strings.TrimSpace(input.CustomerEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}
	if input.PickupDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup date required")
	}
	if strings.TrimSpace(input.PickupTimeSlot) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup time slot required")
	}

	pickup := &models.PickupSchedule{
		ShopID:         shopID,
		CustomerName:   input.CustomerName,
		CustomerEmail:  input.CustomerEmail,
		CustomerPhone:  input.CustomerPhone,
		PickupDate:     input.PickupDate,
		PickupTimeSlot: input.PickupTimeSlot,
		PickupStatus:   enums.PickupStatusScheduled,
		Notes:          input.Notes,
	}
	if input.OrderRef != "" {
		pickup.OrderRef = &input.OrderRef
	}

	if _, err := s.repo.Create(ctx, pickup); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating pickup")
	}
	return pickup, nil
}

func (s *service) AdvanceStatus(ctx context.Context, shopID, pickupID uuid.UUID, target enums.PickupStatus) (*models.PickupSchedule, error) {
	if !target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid pickup status %q", target))
	}

	pickup, err := s.find(ctx, shopID, pickupID)
	if err != nil {
		return nil, err
	}
	if !pickup.PickupStatus.CanTransitionTo(target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("pickup cannot move from %s to %s", pickup.PickupStatus, target))
	}

	from := pickup.PickupStatus
	pickup.PickupStatus = target

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.UpdateTx(ctx, tx, pickup); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPickupStatusChanged,
			AggregateType: enums.AggregatePickup,
			AggregateID:   pickup.ID,
			Version:       1,
			Data: payloads.PickupStatusChangedEvent{
				PickupID:   pickup.ID,
				ShopID:     pickup.ShopID,
				FromStatus: from,
				ToStatus:   target,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advancing pickup status")
	}
	return pickup, nil
}

func (s *service) UpdateCustomerSnapshot(ctx context.Context, shopID, pickupID uuid.UUID, input CustomerSnapshotInput) (*models.PickupSchedule, error) {
	pickup, err := s.find(ctx, shopID, pickupID)
	if err != nil {
		return nil, err
	}

	changed := false
	if input.CustomerName != nil && *input.CustomerName != "" {
		pickup.CustomerName = *input.CustomerName
		changed = true
	}
	if input.CustomerEmail != nil && *input.CustomerEmail != "" {
		pickup.CustomerEmail = *input.CustomerEmail
		changed = true
	}
	if input.CustomerPhone != nil {
		pickup.CustomerPhone = *input.CustomerPhone
		changed = true
	}
	if !changed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no customer fields to update")
	}

	if err := s.repo.Update(ctx, pickup); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating pickup customer")
	}
	return pickup, nil
}

func (s *service) find(ctx context.Context, shopID, pickupID uuid.UUID) (*models.PickupSchedule, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop identity missing")
	}
	if pickupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup identity missing")
	}
	pickup, err := s.repo.FindByID(ctx, shopID, pickupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading pickup")
	}
	if pickup == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pickup not found")
	}
	return pickup, nil
}
