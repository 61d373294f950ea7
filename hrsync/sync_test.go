package hrsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpay/payroll-engine/hrsync"
	"github.com/fieldpay/payroll-engine/payroll"
	"github.com/fieldpay/payroll-engine/payroll/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func strPtr(s string) *string { return &s }
func i64Ptr(n int64) *int64   { return &n }

func decPtr(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func tsPtr(t time.Time) *time.Time { return &t }

func employeeEvent(ts time.Time, overrides func(*hrsync.EmployeeEvent)) hrsync.EmployeeEvent {
	ev := hrsync.EmployeeEvent{
		ID:             i64Ptr(99),
		Name:           strPtr("John Doe"),
		MobilePhone:    strPtr("123456789"),
		Email:          strPtr("jdoe@me.com"),
		Badge:          strPtr("1234567899"),
		ContractRef:    i64Ptr(777),
		Wage:           decPtr("600"),
		StartDate:      strPtr("2023-01-01"),
		ContractStatus: strPtr("open"),
		Action:         "create",
		Timestamp:      tsPtr(ts),
	}
	if overrides != nil {
		overrides(&ev)
	}
	return ev
}

// =============================================================================
// EMPLOYEE EVENTS
// =============================================================================

func TestSyncEmployee_CreatesAWorker(t *testing.T) {
	// GIVEN: No worker for the upstream employee id
	// WHEN: A create event arrives
	// THEN: The worker exists with the payload's data and a last_sync

	m := store.NewMemory()
	s := hrsync.New(m)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SyncEmployee(ctx, employeeEvent(now, nil)))

	w, err := m.GetWorkerByEmployeeRef(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", w.Name)
	assert.Equal(t, "1234567899", w.Badge)
	require.NotNil(t, w.Wage)
	assert.True(t, w.Wage.Equal(decimal.NewFromInt(600)))
	require.NotNil(t, w.ContractRef)
	assert.EqualValues(t, 777, *w.ContractRef)
	assert.Equal(t, now, w.LastSync)
	assert.True(t, w.Active)
}

func TestSyncEmployee_NewerEventUpdates(t *testing.T) {
	// GIVEN: A worker synced yesterday
	// WHEN: An update event with a newer timestamp arrives
	// THEN: The update lands and last_sync advances

	m := store.NewMemory()
	s := hrsync.New(m)
	ctx := context.Background()
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	now := time.Now().UTC()

	require.NoError(t, s.SyncEmployee(ctx, employeeEvent(yesterday, nil)))
	require.NoError(t, s.SyncEmployee(ctx, employeeEvent(now, func(ev *hrsync.EmployeeEvent) {
		ev.Action = "update"
		ev.Name = strPtr("Johnny Doe")
		ev.Wage = decPtr("700")
	})))

	w, err := m.GetWorkerByEmployeeRef(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, "Johnny Doe", w.Name)
	assert.True(t, w.Wage.Equal(decimal.NewFromInt(700)))
	assert.Equal(t, now, w.LastSync)
}

func TestSyncEmployee_StaleEventIsDiscarded(t *testing.T) {
	// GIVEN: A worker synced now
	// WHEN: An update stamped yesterday arrives afterwards
	// THEN: Nothing changes - last-writer-wins by event time, not arrival

	m := store.NewMemory()
	s := hrsync.New(m)
	ctx := context.Background()
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	now := time.Now().UTC()

	require.NoError(t, s.SyncEmployee(ctx, employeeEvent(now, nil)))
	require.NoError(t, s.SyncEmployee(ctx, employeeEvent(yesterday, func(ev *hrsync.EmployeeEvent) {
		ev.Action = "update"
		ev.Name = strPtr("Johnny Doe")
		ev.Wage = decPtr("700")
	})))

	w, err := m.GetWorkerByEmployeeRef(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", w.Name)
	assert.True(t, w.Wage.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, now, w.LastSync)
}

func TestSyncEmployee_SameEventTwiceIsIdempotent(t *testing.T) {
	// GIVEN: An applied employee event
	// WHEN: The exact same event is replayed
	// THEN: The second apply is a no-op (timestamp not strictly newer)

	m := store.NewMemory()
	s := hrsync.New(m)
	ctx := context.Background()
	now := time.Now().UTC()

	ev := employeeEvent(now, nil)
	require.NoError(t, s.SyncEmployee(ctx, ev))
	require.NoError(t, s.SyncEmployee(ctx, ev))

	workers, err := m.ListWorkers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, workers, 1)
	assert.Equal(t, now, workers[0].LastSync)
}

func TestSyncEmployee_MissingRequiredKeyIsRetryable(t *testing.T) {
	// GIVEN: A payload missing its name
	// WHEN: Syncing
	// THEN: The retryable missing-field error surfaces with the key name

	m := store.NewMemory()
	s := hrsync.New(m)

	err := s.SyncEmployee(context.Background(), employeeEvent(time.Now().UTC(), func(ev *hrsync.EmployeeEvent) {
		ev.Name = nil
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, payroll.ErrMissingField)
	assert.True(t, payroll.IsRetryable(err))

	var mfe *payroll.MissingFieldError
	require.ErrorAs(t, err, &mfe)
	assert.Equal(t, "name", mfe.Field)
}

func TestSyncEmployee_UnknownActionIsSkipped(t *testing.T) {
	// GIVEN: An event with action "delete"
	// WHEN: Syncing
	// THEN: No worker is created and no error is raised

	m := store.NewMemory()
	s := hrsync.New(m)
	ctx := context.Background()

	require.NoError(t, s.SyncEmployee(ctx, employeeEvent(time.Now().UTC(), func(ev *hrsync.EmployeeEvent) {
		ev.Action = "delete"
	})))

	workers, err := m.ListWorkers(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, workers)
}

// =============================================================================
// CONTRACT EVENTS
// =============================================================================

func contractEvent(ts time.Time) hrsync.ContractEvent {
	return hrsync.ContractEvent{
		ContractRef:    i64Ptr(777),
		Wage:           decPtr("700"),
		StartDate:      strPtr("2023-01-01"),
		EndDate:        strPtr("2025-01-31"),
		ContractStatus: strPtr("closed"),
		Action:         "update",
		Timestamp:      tsPtr(ts),
	}
}

func TestSyncContract_UpdatesTheHoldingWorker(t *testing.T) {
	// GIVEN: A worker holding contract 777, synced yesterday
	// WHEN: A newer contract event arrives
	// THEN: Wage, dates and status update

	m := store.NewMemory()
	s := hrsync.New(m)
	ctx := context.Background()
	yesterday := time.Now().UTC().Add(-24 * time.Hour)

	require.NoError(t, s.SyncEmployee(ctx, employeeEvent(yesterday, nil)))
	require.NoError(t, s.SyncContract(ctx, contractEvent(time.Now().UTC())))

	w, err := m.GetWorkerByEmployeeRef(ctx, 99)
	require.NoError(t, err)
	assert.True(t, w.Wage.Equal(decimal.NewFromInt(700)))
	assert.Equal(t, "closed", w.ContractStatus)
	require.NotNil(t, w.EndDate)
	assert.Equal(t, "2025-01-31", w.EndDate.Format("2006-01-02"))
}

func TestSyncContract_NoMatchingWorkerIsASkip(t *testing.T) {
	// GIVEN: No worker holds the contract id
	// WHEN: A contract event arrives
	// THEN: The event is skipped without error

	m := store.NewMemory()
	s := hrsync.New(m)

	err := s.SyncContract(context.Background(), contractEvent(time.Now().UTC()))
	assert.NoError(t, err)
}

func TestSyncContract_OutOfOrderEventsSettleOnNewest(t *testing.T) {
	// GIVEN: A worker synced at t0
	// WHEN: A contract event stamped t2 arrives before one stamped t1
	// THEN: t2's wage persists; t1 is discarded on arrival

	m := store.NewMemory()
	s := hrsync.New(m)
	ctx := context.Background()
	t0 := time.Now().UTC().Add(-48 * time.Hour)
	t1 := time.Now().UTC().Add(-24 * time.Hour)
	t2 := time.Now().UTC()

	require.NoError(t, s.SyncEmployee(ctx, employeeEvent(t0, nil)))

	newer := contractEvent(t2)
	newer.Wage = decPtr("800")
	require.NoError(t, s.SyncContract(ctx, newer))

	older := contractEvent(t1)
	older.Wage = decPtr("650")
	require.NoError(t, s.SyncContract(ctx, older))

	w, err := m.GetWorkerByEmployeeRef(ctx, 99)
	require.NoError(t, err)
	assert.True(t, w.Wage.Equal(decimal.NewFromInt(800)))
	assert.Equal(t, t2, w.LastSync)
}

func TestSyncContract_MissingContractIDIsRetryable(t *testing.T) {
	m := store.NewMemory()
	s := hrsync.New(m)

	ev := contractEvent(time.Now().UTC())
	ev.ContractRef = nil
	err := s.SyncContract(context.Background(), ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, payroll.ErrMissingField)
}
