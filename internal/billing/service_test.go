package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meridianfarms/pickups-backend/internal/schedule"
	"github.com/meridianfarms/pickups-backend/pkg/clock"
	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
	"github.com/meridianfarms/pickups-backend/pkg/outbox"
	"github.com/meridianfarms/pickups-backend/pkg/platform"
)

type fakeAttemptsRepo struct {
	byKey     map[string]*models.BillingAttemptLog
	createErr error
}

func newFakeAttemptsRepo() *fakeAttemptsRepo {
	return &fakeAttemptsRepo{byKey: map[string]*models.BillingAttemptLog{}}
}

func attemptKey(subID uuid.UUID, cycle int) string {
	return fmt.Sprintf("%s/%d", subID, cycle)
}

func (f *fakeAttemptsRepo) Create(ctx context.Context, attempt *models.BillingAttemptLog) error {
	if f.createErr != nil {
		return f.createErr
	}
	key := attemptKey(attempt.SubscriptionID, attempt.BillingCycle)
	if _, exists := f.byKey[key]; exists {
		return errors.New(`duplicate key value violates unique constraint "ux_billing_attempts_sub_cycle"`)
	}
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	attempt.CreatedAt = time.Now()
	f.byKey[key] = attempt
	return nil
}

func (f *fakeAttemptsRepo) FindBySubscriptionAndCycle(ctx context.Context, subscriptionID uuid.UUID, cycle int) (*models.BillingAttemptLog, error) {
	attempt, ok := f.byKey[attemptKey(subscriptionID, cycle)]
	if !ok {
		return nil, nil
	}
	copied := *attempt
	return &copied, nil
}

func (f *fakeAttemptsRepo) FindByPlatformRef(ctx context.Context, platformRef string) (*models.BillingAttemptLog, error) {
	for _, attempt := range f.byKey {
		if attempt.PlatformRef != nil && *attempt.PlatformRef == platformRef {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeAttemptsRepo) Update(ctx context.Context, attempt *models.BillingAttemptLog) error {
	f.byKey[attemptKey(attempt.SubscriptionID, attempt.BillingCycle)] = attempt
	return nil
}

func (f *fakeAttemptsRepo) UpdateTx(ctx context.Context, tx *gorm.DB, attempt *models.BillingAttemptLog) error {
	return f.Update(ctx, attempt)
}

func (f *fakeAttemptsRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	for key, attempt := range f.byKey {
		if attempt.Status != enums.BillingAttemptStatusPending && attempt.CreatedAt.Before(cutoff) {
			delete(f.byKey, key)
			purged++
		}
	}
	return purged, nil
}

func (f *fakeAttemptsRepo) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]models.BillingAttemptLog, error) {
	var rows []models.BillingAttemptLog
	for _, attempt := range f.byKey {
		if attempt.SubscriptionID == subscriptionID {
			rows = append(rows, *attempt)
		}
	}
	return rows, nil
}

func (f *fakeAttemptsRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.BillingAttemptLog, error) {
	var rows []models.BillingAttemptLog
	for _, attempt := range f.byKey {
		if attempt.Status == enums.BillingAttemptStatusPending &&
			attempt.PlatformRef != nil && attempt.UpdatedAt.Before(olderThan) {
			rows = append(rows, *attempt)
		}
	}
	return rows, nil
}

type fakeSubsStore struct {
	byID map[uuid.UUID]*models.Subscription
	due  []models.Subscription
}

func newFakeSubsStore() *fakeSubsStore {
	return &fakeSubsStore{byID: map[uuid.UUID]*models.Subscription{}}
}

func (f *fakeSubsStore) DueForBilling(ctx context.Context, shopID uuid.UUID, now time.Time, maxFailures int) ([]models.Subscription, error) {
	return f.due, nil
}

func (f *fakeSubsStore) FindByID(ctx context.Context, shopID, id uuid.UUID) (*models.Subscription, error) {
	sub, ok := f.byID[id]
	if !ok || sub.ShopID != shopID {
		return nil, nil
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeSubsStore) FindAnyByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	sub, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeSubsStore) Update(ctx context.Context, sub *models.Subscription) error {
	f.byID[sub.ID] = sub
	return nil
}

func (f *fakeSubsStore) UpdateTx(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	return f.Update(ctx, sub)
}

type providerCall struct {
	req platform.BillingAttemptRequest
}

type fakeProvider struct {
	result       *platform.BillingAttemptResult
	err          error
	calls        []providerCall
	pendingCheck func()

	getResult *platform.BillingAttemptResult
	getErr    error
	getCalls  []string
}

func (f *fakeProvider) CreateBillingAttempt(ctx context.Context, req platform.BillingAttemptRequest) (*platform.BillingAttemptResult, error) {
	if f.pendingCheck != nil {
		f.pendingCheck()
	}
	f.calls = append(f.calls, providerCall{req: req})
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeProvider) GetBillingAttempt(ctx context.Context, attemptRef string) (*platform.BillingAttemptResult, error) {
	f.getCalls = append(f.getCalls, attemptRef)
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.getResult != nil {
		return f.getResult, nil
	}
	return &platform.BillingAttemptResult{AttemptRef: attemptRef}, nil
}

type fakePickupsRepo struct {
	created  []*models.PickupSchedule
	existing map[string]bool
}

func newFakePickupsRepo() *fakePickupsRepo {
	return &fakePickupsRepo{existing: map[string]bool{}}
}

func (f *fakePickupsRepo) ExistsActiveForDate(ctx context.Context, subscriptionID uuid.UUID, date time.Time) (bool, error) {
	if f.existing[date.Format("2006-01-02")] {
		return true, nil
	}
	for _, p := range f.created {
		if p.SubscriptionID != nil && *p.SubscriptionID == subscriptionID && p.PickupDate.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePickupsRepo) CreateTx(ctx context.Context, tx *gorm.DB, pickup *models.PickupSchedule) (*models.PickupSchedule, error) {
	if pickup.ID == uuid.Nil {
		pickup.ID = uuid.New()
	}
	f.created = append(f.created, pickup)
	return pickup, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeEmitter struct {
	events []outbox.DomainEvent
}

func (f *fakeEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type billingEnv struct {
	attempts *fakeAttemptsRepo
	subs     *fakeSubsStore
	pickups  *fakePickupsRepo
	provider *fakeProvider
	emitter  *fakeEmitter
	svc      Service
}

// Tuesday Sep 1 2026, 08:00 in the business timezone.
var testNow = time.Date(2026, 9, 1, 8, 0, 0, 0, mustLoc())

func mustLoc() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}

func newBillingEnv(t *testing.T) *billingEnv {
	t.Helper()

	clk, err := clock.NewFixed("America/New_York", testNow)
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	calc, err := schedule.NewCalculator(clk, 1, 168)
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}

	env := &billingEnv{
		attempts: newFakeAttemptsRepo(),
		subs:     newFakeSubsStore(),
		pickups:  newFakePickupsRepo(),
		provider: &fakeProvider{result: &platform.BillingAttemptResult{Ready: true, Success: true, AttemptRef: "att-1", OrderID: "order-9"}},
		emitter:  &fakeEmitter{},
	}

	svc, err := NewService(ServiceParams{
		Attempts:      env.attempts,
		Subscriptions: env.subs,
		Pickups:       env.pickups,
		Provider:      env.provider,
		Tx:            fakeTxRunner{},
		Events:        env.emitter,
		Calc:          calc,
		Clock:         clk,
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		MaxFailures:   3,
		RetentionDays: 90,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	env.svc = svc
	return env
}

func seedBillableSub(env *billingEnv) *models.Subscription {
	nextPickup := time.Date(2026, 9, 4, 0, 0, 0, 0, mustLoc())
	nextBilling := time.Date(2026, 9, 3, 9, 0, 0, 0, mustLoc())
	sub := &models.Subscription{
		ID:                            uuid.New(),
		ShopID:                        uuid.New(),
		CustomerName:                  "Marcus Bell",
		CustomerEmail:                 "marcus@example.com",
		Frequency:                     enums.FrequencyWeekly,
		PreferredDayOfWeek:            5,
		PreferredTimeSlot:             "Morning",
		PreferredTimeSlotStartMinutes: 9 * 60,
		BillingLeadHours:              24,
		Status:                        enums.SubscriptionStatusActive,
		NextPickupDate:                &nextPickup,
		NextBillingDate:               &nextBilling,
		BillingCycleCount:             4,
		PlatformContractID:            "contract-12",
	}
	env.subs.byID[sub.ID] = sub
	return sub
}

func TestSuccessAdvancesScheduleAndResetsFailures(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	sub.BillingFailureCount = 2
	overrideDate := time.Date(2026, 9, 5, 0, 0, 0, 0, mustLoc())
	sub.OneTimeRescheduleDate = &overrideDate

	outcome, err := env.svc.ProcessSingleBilling(context.Background(), sub)
	if err != nil {
		t.Fatalf("ProcessSingleBilling: %v", err)
	}
	if outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s", outcome)
	}

	// Friday Sep 4 + one weekly cycle = Friday Sep 11.
	wantPickup := time.Date(2026, 9, 11, 0, 0, 0, 0, mustLoc())
	if sub.NextPickupDate == nil || !sub.NextPickupDate.Equal(wantPickup) {
		t.Fatalf("expected pickup %v, got %v", wantPickup, sub.NextPickupDate)
	}
	wantBilling := time.Date(2026, 9, 10, 9, 0, 0, 0, mustLoc())
	if sub.NextBillingDate == nil || !sub.NextBillingDate.Equal(wantBilling) {
		t.Fatalf("expected billing %v, got %v", wantBilling, sub.NextBillingDate)
	}
	if sub.BillingCycleCount != 5 {
		t.Fatalf("expected cycle 5, got %d", sub.BillingCycleCount)
	}
	if sub.BillingFailureCount != 0 {
		t.Fatalf("success must reset the failure count, got %d", sub.BillingFailureCount)
	}
	if sub.HasPendingOverride() {
		t.Fatalf("success must consume the one-time override")
	}

	attempt, _ := env.attempts.FindBySubscriptionAndCycle(context.Background(), sub.ID, 5)
	if attempt == nil || attempt.Status != enums.BillingAttemptStatusSuccess {
		t.Fatalf("attempt not settled: %+v", attempt)
	}
	var sawBilled, sawPickup bool
	for _, event := range env.emitter.events {
		switch event.EventType {
		case enums.EventBillingSucceeded:
			sawBilled = true
		case enums.EventPickupScheduled:
			sawPickup = true
		}
	}
	if !sawBilled || !sawPickup {
		t.Fatalf("expected billing_succeeded and pickup_scheduled events, got %+v", env.emitter.events)
	}
	// The charge paid for the override occurrence, so that is the pickup row.
	if len(env.pickups.created) != 1 || !env.pickups.created[0].PickupDate.Equal(overrideDate) {
		t.Fatalf("expected one pickup on the override date, got %+v", env.pickups.created)
	}
}

func TestSuccessMaterializesBilledPickup(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	billedDate := *sub.NextPickupDate

	outcome, err := env.svc.ProcessSingleBilling(context.Background(), sub)
	if err != nil {
		t.Fatalf("ProcessSingleBilling: %v", err)
	}
	if outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s", outcome)
	}

	if len(env.pickups.created) != 1 {
		t.Fatalf("settlement must create the pickup the charge paid for, got %d", len(env.pickups.created))
	}
	pickup := env.pickups.created[0]
	if !pickup.PickupDate.Equal(billedDate) {
		t.Fatalf("pickup must land on the billed date %v, got %v", billedDate, pickup.PickupDate)
	}
	if pickup.PickupTimeSlot != sub.PreferredTimeSlot {
		t.Fatalf("pickup must use the preferred slot, got %q", pickup.PickupTimeSlot)
	}
	if pickup.PickupStatus != enums.PickupStatusScheduled {
		t.Fatalf("pickup must start scheduled, got %s", pickup.PickupStatus)
	}
}

func TestSuccessSkipsPickupAlreadyMaterialized(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	env.pickups.existing[sub.NextPickupDate.Format("2006-01-02")] = true

	if _, err := env.svc.ProcessSingleBilling(context.Background(), sub); err != nil {
		t.Fatalf("ProcessSingleBilling: %v", err)
	}
	if len(env.pickups.created) != 0 {
		t.Fatalf("an existing pickup row must not be duplicated, got %d", len(env.pickups.created))
	}
}

func TestPendingRowInsertedBeforePlatformCall(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)

	env.provider.pendingCheck = func() {
		attempt, _ := env.attempts.FindBySubscriptionAndCycle(context.Background(), sub.ID, sub.BillingCycleCount+1)
		if attempt == nil || attempt.Status != enums.BillingAttemptStatusPending {
			t.Fatalf("pending attempt row must exist before the platform call")
		}
	}

	if _, err := env.svc.ProcessSingleBilling(context.Background(), sub); err != nil {
		t.Fatalf("ProcessSingleBilling: %v", err)
	}
	if len(env.provider.calls) != 1 {
		t.Fatalf("expected one platform call, got %d", len(env.provider.calls))
	}
	wantKey := fmt.Sprintf("bill-%s-5", sub.ID)
	if env.provider.calls[0].req.IdempotencyKey != wantKey {
		t.Fatalf("unexpected idempotency key %s", env.provider.calls[0].req.IdempotencyKey)
	}
}

func TestSettledCycleIsNeverRecharged(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)

	if _, err := env.svc.ProcessSingleBilling(context.Background(), sub); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Rewind the in-memory copy to simulate a concurrent sweep holding a
	// stale row for the already-billed cycle.
	stale := *env.subs.byID[sub.ID]
	stale.BillingCycleCount = 4
	outcome, err := env.svc.ProcessSingleBilling(context.Background(), &stale)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skip for settled cycle, got %s", outcome)
	}
	if len(env.provider.calls) != 1 {
		t.Fatalf("platform must be called exactly once, got %d", len(env.provider.calls))
	}
}

func TestConcurrentInsertSkips(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	env.attempts.createErr = errors.New(`duplicate key value violates unique constraint "ux_billing_attempts_sub_cycle"`)

	outcome, err := env.svc.ProcessSingleBilling(context.Background(), sub)
	if err != nil {
		t.Fatalf("ProcessSingleBilling: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skip on duplicate insert, got %s", outcome)
	}
	if len(env.provider.calls) != 0 {
		t.Fatalf("platform must not be called when another sweep owns the cycle")
	}
}

func TestFailureKeepsScheduleAndCountsUp(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	before := *sub.NextPickupDate
	env.provider.result = &platform.BillingAttemptResult{Ready: true, Success: false, ErrorCode: "card_declined", ErrorMessage: "insufficient funds"}

	outcome, err := env.svc.ProcessSingleBilling(context.Background(), sub)
	if err != nil {
		t.Fatalf("ProcessSingleBilling: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
	if sub.BillingFailureCount != 1 {
		t.Fatalf("expected failure count 1, got %d", sub.BillingFailureCount)
	}
	if !sub.NextPickupDate.Equal(before) {
		t.Fatalf("failure must not advance the schedule")
	}
	if sub.BillingCycleCount != 4 {
		t.Fatalf("failure must not advance the cycle, got %d", sub.BillingCycleCount)
	}
	if sub.Status != enums.SubscriptionStatusActive {
		t.Fatalf("one failure must not pause, got %s", sub.Status)
	}
}

func TestThirdFailureAutoPauses(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	sub.BillingFailureCount = 2
	env.provider.result = &platform.BillingAttemptResult{Ready: true, Success: false, ErrorCode: "card_declined"}

	outcome, err := env.svc.ProcessSingleBilling(context.Background(), sub)
	if err != nil {
		t.Fatalf("ProcessSingleBilling: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
	if sub.Status != enums.SubscriptionStatusPaused {
		t.Fatalf("third failure must pause, got %s", sub.Status)
	}
	if sub.PauseReason == nil || !strings.Contains(*sub.PauseReason, "3 failed billing attempts") {
		t.Fatalf("pause reason must embed the failure count, got %v", sub.PauseReason)
	}
	if sub.PauseReason != nil && !strings.Contains(*sub.PauseReason, "card_declined") {
		t.Fatalf("pause reason must embed the last error code, got %v", sub.PauseReason)
	}

	var sawPaused bool
	for _, event := range env.emitter.events {
		if event.EventType == enums.EventSubscriptionPaused {
			sawPaused = true
		}
	}
	if !sawPaused {
		t.Fatalf("auto-pause must emit a subscription_paused event")
	}
}

func TestRetryOfFailedCycleReusesRowAndKey(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	env.provider.result = &platform.BillingAttemptResult{Ready: true, Success: false, ErrorCode: "card_declined"}

	if _, err := env.svc.ProcessSingleBilling(context.Background(), sub); err != nil {
		t.Fatalf("first attempt: %v", err)
	}

	env.provider.result = &platform.BillingAttemptResult{Ready: true, Success: true, OrderID: "order-9"}
	outcome, err := env.svc.ProcessSingleBilling(context.Background(), sub)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if outcome != OutcomeSuccess {
		t.Fatalf("expected success on retry, got %s", outcome)
	}
	if len(env.provider.calls) != 2 {
		t.Fatalf("expected two platform calls, got %d", len(env.provider.calls))
	}
	if env.provider.calls[0].req.IdempotencyKey != env.provider.calls[1].req.IdempotencyKey {
		t.Fatalf("retry must reuse the idempotency key")
	}
	if len(env.attempts.byKey) != 1 {
		t.Fatalf("retry must reuse the attempt row, got %d rows", len(env.attempts.byKey))
	}
}

func TestManualRetryOnlyForFailurePauses(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	reason := "vacation"
	sub.Status = enums.SubscriptionStatusPaused
	sub.PauseReason = &reason

	_, err := env.svc.ManualRetry(context.Background(), sub.ShopID, sub.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict for customer pause, got %v", err)
	}
}

func TestManualRetryResetsCountAndRunsOnce(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	reason := "auto-paused after 3 failed billing attempts (last error: card_declined)"
	sub.Status = enums.SubscriptionStatusPaused
	sub.PauseReason = &reason
	sub.BillingFailureCount = 3

	retried, err := env.svc.ManualRetry(context.Background(), sub.ShopID, sub.ID)
	if err != nil {
		t.Fatalf("ManualRetry: %v", err)
	}
	if retried.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active after retry, got %s", retried.Status)
	}
	if len(env.provider.calls) != 1 {
		t.Fatalf("manual retry must run exactly one charge, got %d", len(env.provider.calls))
	}
	if retried.BillingFailureCount != 0 {
		t.Fatalf("failure count must reset, got %d", retried.BillingFailureCount)
	}
}

func TestDeferredSettlementViaConfirmation(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	env.provider.result = &platform.BillingAttemptResult{Ready: false, AttemptRef: "att-42"}

	outcome, err := env.svc.ProcessSingleBilling(context.Background(), sub)
	if err != nil {
		t.Fatalf("ProcessSingleBilling: %v", err)
	}
	if outcome != OutcomePending {
		t.Fatalf("expected pending, got %s", outcome)
	}
	if sub.BillingCycleCount != 4 {
		t.Fatalf("pending must not advance the cycle")
	}

	// A second sweep before the webhook lands must not re-charge.
	again, err := env.svc.ProcessSingleBilling(context.Background(), sub)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again != OutcomePending || len(env.provider.calls) != 1 {
		t.Fatalf("in-flight cycle must not be re-sent, outcome=%s calls=%d", again, len(env.provider.calls))
	}

	if err := env.svc.ApplyConfirmation(context.Background(), ConfirmationInput{
		AttemptRef: "att-42",
		Success:    true,
		OrderID:    "order-77",
	}); err != nil {
		t.Fatalf("ApplyConfirmation: %v", err)
	}
	stored := env.subs.byID[sub.ID]
	if stored.BillingCycleCount != 5 {
		t.Fatalf("confirmation must advance the cycle, got %d", stored.BillingCycleCount)
	}

	// Redelivery is a no-op.
	if err := env.svc.ApplyConfirmation(context.Background(), ConfirmationInput{AttemptRef: "att-42", Success: true}); err != nil {
		t.Fatalf("redelivered confirmation: %v", err)
	}
	if env.subs.byID[sub.ID].BillingCycleCount != 5 {
		t.Fatalf("redelivery must not advance again")
	}
}

func TestFailedConfirmationAfterCancelLeavesSubscriptionTerminal(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	sub.BillingFailureCount = 2
	env.provider.result = &platform.BillingAttemptResult{Ready: false, AttemptRef: "att-42"}

	if _, err := env.svc.ProcessSingleBilling(context.Background(), sub); err != nil {
		t.Fatalf("ProcessSingleBilling: %v", err)
	}

	// Cancelled while the charge was in flight.
	stored := env.subs.byID[sub.ID]
	stored.Status = enums.SubscriptionStatusCancelled

	if err := env.svc.ApplyConfirmation(context.Background(), ConfirmationInput{
		AttemptRef:   "att-42",
		Success:      false,
		ErrorCode:    "card_declined",
		ErrorMessage: "insufficient funds",
	}); err != nil {
		t.Fatalf("ApplyConfirmation: %v", err)
	}

	attempt, _ := env.attempts.FindByPlatformRef(context.Background(), "att-42")
	if attempt == nil || attempt.Status != enums.BillingAttemptStatusFailed {
		t.Fatalf("attempt outcome must still be recorded, got %+v", attempt)
	}
	after := env.subs.byID[sub.ID]
	if after.Status != enums.SubscriptionStatusCancelled {
		t.Fatalf("cancelled is terminal, got %s", after.Status)
	}
	if after.BillingFailureCount != 2 {
		t.Fatalf("failure count must not move on a cancelled row, got %d", after.BillingFailureCount)
	}
	if after.PauseReason != nil {
		t.Fatalf("a cancelled subscription must never be auto-paused, got %v", *after.PauseReason)
	}
}

func TestSuccessfulConfirmationAfterCancelRecordsAttemptOnly(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	env.provider.result = &platform.BillingAttemptResult{Ready: false, AttemptRef: "att-43"}

	if _, err := env.svc.ProcessSingleBilling(context.Background(), sub); err != nil {
		t.Fatalf("ProcessSingleBilling: %v", err)
	}
	stored := env.subs.byID[sub.ID]
	stored.Status = enums.SubscriptionStatusCancelled

	if err := env.svc.ApplyConfirmation(context.Background(), ConfirmationInput{
		AttemptRef: "att-43",
		Success:    true,
		OrderID:    "order-88",
	}); err != nil {
		t.Fatalf("ApplyConfirmation: %v", err)
	}

	attempt, _ := env.attempts.FindByPlatformRef(context.Background(), "att-43")
	if attempt == nil || attempt.Status != enums.BillingAttemptStatusSuccess {
		t.Fatalf("attempt outcome must still be recorded, got %+v", attempt)
	}
	after := env.subs.byID[sub.ID]
	if after.BillingCycleCount != 4 {
		t.Fatalf("a cancelled subscription must not advance, got cycle %d", after.BillingCycleCount)
	}
	if len(env.pickups.created) != 0 {
		t.Fatalf("no pickup may be created for a cancelled subscription")
	}
}

func TestReconcileSettlesStalePendingAttempts(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	env.provider.result = &platform.BillingAttemptResult{Ready: false, AttemptRef: "att-42"}

	if _, err := env.svc.ProcessSingleBilling(context.Background(), sub); err != nil {
		t.Fatalf("ProcessSingleBilling: %v", err)
	}

	// The webhook never arrived; the platform has since settled the charge.
	env.provider.getResult = &platform.BillingAttemptResult{
		AttemptRef: "att-42",
		Ready:      true,
		Success:    true,
		OrderID:    "order-55",
	}

	settled, err := env.svc.ReconcilePendingAttempts(context.Background())
	if err != nil {
		t.Fatalf("ReconcilePendingAttempts: %v", err)
	}
	if settled != 1 {
		t.Fatalf("expected 1 settled, got %d", settled)
	}
	if len(env.provider.getCalls) != 1 || env.provider.getCalls[0] != "att-42" {
		t.Fatalf("platform must be polled for the stale ref, got %v", env.provider.getCalls)
	}

	attempt, _ := env.attempts.FindByPlatformRef(context.Background(), "att-42")
	if attempt == nil || attempt.Status != enums.BillingAttemptStatusSuccess {
		t.Fatalf("polled settlement must close the attempt, got %+v", attempt)
	}
	if env.subs.byID[sub.ID].BillingCycleCount != 5 {
		t.Fatalf("polled settlement must advance the cycle")
	}
	if len(env.pickups.created) != 1 {
		t.Fatalf("polled settlement must materialize the billed pickup")
	}
}

func TestReconcileLeavesUnresolvedAttemptsPending(t *testing.T) {
	env := newBillingEnv(t)
	sub := seedBillableSub(env)
	env.provider.result = &platform.BillingAttemptResult{Ready: false, AttemptRef: "att-42"}

	if _, err := env.svc.ProcessSingleBilling(context.Background(), sub); err != nil {
		t.Fatalf("ProcessSingleBilling: %v", err)
	}
	env.provider.getResult = &platform.BillingAttemptResult{AttemptRef: "att-42", Ready: false}

	settled, err := env.svc.ReconcilePendingAttempts(context.Background())
	if err != nil {
		t.Fatalf("ReconcilePendingAttempts: %v", err)
	}
	if settled != 0 {
		t.Fatalf("an unresolved attempt must stay pending, got %d settled", settled)
	}
	attempt, _ := env.attempts.FindByPlatformRef(context.Background(), "att-42")
	if attempt == nil || attempt.Status != enums.BillingAttemptStatusPending {
		t.Fatalf("attempt must remain pending, got %+v", attempt)
	}
}

func TestConfirmationForUnknownRefIsNotFound(t *testing.T) {
	env := newBillingEnv(t)
	err := env.svc.ApplyConfirmation(context.Background(), ConfirmationInput{AttemptRef: "att-unknown"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestProcessDueBillingsIsolatesFailures(t *testing.T) {
	env := newBillingEnv(t)
	good := seedBillableSub(env)
	bad := seedBillableSub(env)
	// Force an error for the bad subscription only by corrupting its pickup date.
	bad.NextPickupDate = nil
	env.subs.due = []models.Subscription{*bad, *good}

	summary, err := env.svc.ProcessDueBillings(context.Background(), good.ShopID)
	if err == nil {
		t.Fatalf("expected the bad subscription's error to surface")
	}
	if summary.Attempted != 2 {
		t.Fatalf("both subscriptions must be attempted, got %d", summary.Attempted)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("the good subscription must still succeed, got %d", summary.Succeeded)
	}
}

func TestPurgeOldAttemptsKeepsPendingAndRecent(t *testing.T) {
	env := newBillingEnv(t)
	subID := uuid.New()

	old := &models.BillingAttemptLog{SubscriptionID: subID, BillingCycle: 1, IdempotencyKey: "k1", Status: enums.BillingAttemptStatusSuccess}
	if err := env.attempts.Create(context.Background(), old); err != nil {
		t.Fatalf("seed: %v", err)
	}
	old.CreatedAt = testNow.AddDate(0, 0, -120)

	oldPending := &models.BillingAttemptLog{SubscriptionID: subID, BillingCycle: 2, IdempotencyKey: "k2", Status: enums.BillingAttemptStatusPending}
	if err := env.attempts.Create(context.Background(), oldPending); err != nil {
		t.Fatalf("seed: %v", err)
	}
	oldPending.CreatedAt = testNow.AddDate(0, 0, -120)

	recent := &models.BillingAttemptLog{SubscriptionID: subID, BillingCycle: 3, IdempotencyKey: "k3", Status: enums.BillingAttemptStatusFailed}
	if err := env.attempts.Create(context.Background(), recent); err != nil {
		t.Fatalf("seed: %v", err)
	}
	recent.CreatedAt = testNow.AddDate(0, 0, -10)

	purged, err := env.svc.PurgeOldAttempts(context.Background())
	if err != nil {
		t.Fatalf("PurgeOldAttempts: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}
	if _, ok := env.attempts.byKey[attemptKey(subID, 2)]; !ok {
		t.Fatalf("pending attempts must survive retention")
	}
	if _, ok := env.attempts.byKey[attemptKey(subID, 3)]; !ok {
		t.Fatalf("recent attempts must survive retention")
	}
}
