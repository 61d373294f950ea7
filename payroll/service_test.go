package payroll_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpay/payroll-engine/payroll"
)

// recordingQueue captures enqueued tasks instead of running them.
type recordingQueue struct {
	names []string
	args  []any
}

func (r *recordingQueue) Enqueue(name string, args any) error {
	r.names = append(r.names, name)
	r.args = append(r.args, args)
	return nil
}

func newService(f *fixture) (*payroll.Service, *recordingQueue) {
	q := &recordingQueue{}
	return payroll.NewService(f.store, q), q
}

func TestCreateLine_QueuesFullCascadeAndFlipsBatch(t *testing.T) {
	// GIVEN: A fresh batch
	// WHEN: Creating a line through the service
	// THEN: The line exists, the batch is processing, and a recalculation
	//       with the week tier was queued

	f := newFixture(t)
	svc, q := newService(f)
	ctx := context.Background()

	line, err := svc.CreateLine(ctx, f.batch, payroll.LineInput{
		WorkerID: f.worker, ActivityID: f.activity, Date: monday, Quantity: dec("8"),
	})
	require.NoError(t, err)
	require.NotNil(t, line)
	assert.Equal(t, 23, line.ISOWeek)

	batch, err := f.store.GetBatch(ctx, f.batch)
	require.NoError(t, err)
	assert.Equal(t, payroll.BatchProcessing, batch.Status)

	require.Len(t, q.names, 1)
	assert.Equal(t, payroll.TaskRecalcLine, q.names[0])
	args := q.args[0].(payroll.RecalcLineArgs)
	assert.Equal(t, string(line.ID), args.LineID)
	assert.True(t, args.RecalcWeek)
}

func TestCreateLine_RejectsDuplicateTriple(t *testing.T) {
	// GIVEN: An existing line for (worker, activity, date)
	// WHEN: Creating the same triple again
	// THEN: The write is rejected before any task is queued for it

	f := newFixture(t)
	svc, q := newService(f)
	ctx := context.Background()

	in := payroll.LineInput{WorkerID: f.worker, ActivityID: f.activity, Date: monday, Quantity: dec("8")}
	_, err := svc.CreateLine(ctx, f.batch, in)
	require.NoError(t, err)

	_, err = svc.CreateLine(ctx, f.batch, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, payroll.ErrDuplicateLine)
	assert.Len(t, q.names, 1)
}

func TestCreateLine_EnforcesDailyLimitBeforeAnythingRuns(t *testing.T) {
	// GIVEN: A worker already holding the daily limit of lines on a date
	// WHEN: Creating one more
	// THEN: The creation is rejected up front with the limit error

	f := newFixture(t)
	svc, q := newService(f)
	ctx := context.Background()

	// limit is 3; fill the day with distinct activities
	require.NoError(t, f.store.CreateActivity(ctx, &payroll.Activity{
		ID: "act-3", Name: "Weeding", LaborTypeID: "lt-field",
	}))
	for _, act := range []payroll.ActivityID{f.activity, f.cleaning, "act-3"} {
		_, err := svc.CreateLine(ctx, f.batch, payroll.LineInput{
			WorkerID: f.worker, ActivityID: act, Date: monday, Quantity: dec("1"),
		})
		require.NoError(t, err)
	}

	require.NoError(t, f.store.CreateActivity(ctx, &payroll.Activity{
		ID: "act-4", Name: "Thinning", LaborTypeID: "lt-field",
	}))
	_, err := svc.CreateLine(ctx, f.batch, payroll.LineInput{
		WorkerID: f.worker, ActivityID: "act-4", Date: monday, Quantity: dec("1"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, payroll.ErrDailyLineLimit)

	var limitErr *payroll.DailyLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 3, limitErr.Limit)

	// only the three successful creates queued work
	assert.Len(t, q.names, 3)
}

func TestUpdateLine_ActivityChangeForcesWeekTier(t *testing.T) {
	// GIVEN: An existing line
	// WHEN: Updating with a different activity vs. only a new quantity
	// THEN: Only the activity change requests a week recompute

	f := newFixture(t)
	svc, q := newService(f)
	ctx := context.Background()

	line, err := svc.CreateLine(ctx, f.batch, payroll.LineInput{
		WorkerID: f.worker, ActivityID: f.activity, Date: monday, Quantity: dec("8"),
	})
	require.NoError(t, err)

	// quantity-only edit
	_, err = svc.UpdateLine(ctx, line.ID, payroll.LineInput{
		WorkerID: f.worker, ActivityID: f.activity, Date: monday, Quantity: dec("10"),
	})
	require.NoError(t, err)

	// activity swap
	_, err = svc.UpdateLine(ctx, line.ID, payroll.LineInput{
		WorkerID: f.worker, ActivityID: f.cleaning, Date: monday, Quantity: dec("10"),
	})
	require.NoError(t, err)

	require.Len(t, q.names, 3)
	assert.False(t, q.args[1].(payroll.RecalcLineArgs).RecalcWeek, "quantity edit")
	assert.True(t, q.args[2].(payroll.RecalcLineArgs).RecalcWeek, "activity swap")
}

func TestDeleteLine_QueuesRebalancingForTheRemainder(t *testing.T) {
	// GIVEN: An existing line
	// WHEN: Deleting it
	// THEN: The line is gone, the batch flips to processing, and the
	//       after-deletion task carries the (worker, batch, date) key

	f := newFixture(t)
	svc, q := newService(f)
	ctx := context.Background()

	line, err := svc.CreateLine(ctx, f.batch, payroll.LineInput{
		WorkerID: f.worker, ActivityID: f.activity, Date: monday, Quantity: dec("8"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteLine(ctx, line.ID))

	_, err = f.store.GetLine(ctx, line.ID)
	assert.ErrorIs(t, err, payroll.ErrLineNotFound)

	require.Len(t, q.names, 2)
	assert.Equal(t, payroll.TaskRecalcDelete, q.names[1])
	args := q.args[1].(payroll.RecalcDeleteArgs)
	assert.Equal(t, string(f.worker), args.WorkerID)
	assert.Equal(t, string(f.batch), args.BatchID)
	assert.Equal(t, "2025-06-02", args.Date)
}

func TestUpdateLine_MovingToAFullDayIsRejected(t *testing.T) {
	// GIVEN: A worker at the daily limit on Monday and a line on Tuesday
	// WHEN: Moving the Tuesday line onto Monday
	// THEN: The move is rejected by the limit check

	f := newFixture(t)
	svc, _ := newService(f)
	ctx := context.Background()

	require.NoError(t, f.store.CreateActivity(ctx, &payroll.Activity{
		ID: "act-3", Name: "Weeding", LaborTypeID: "lt-field",
	}))
	for _, act := range []payroll.ActivityID{f.activity, f.cleaning, "act-3"} {
		_, err := svc.CreateLine(ctx, f.batch, payroll.LineInput{
			WorkerID: f.worker, ActivityID: act, Date: monday, Quantity: dec("1"),
		})
		require.NoError(t, err)
	}

	tuesday := monday.AddDate(0, 0, 1)
	require.NoError(t, f.store.CreateActivity(ctx, &payroll.Activity{
		ID: "act-4", Name: "Thinning", LaborTypeID: "lt-field",
	}))
	moved, err := svc.CreateLine(ctx, f.batch, payroll.LineInput{
		WorkerID: f.worker, ActivityID: "act-4", Date: tuesday, Quantity: dec("1"),
	})
	require.NoError(t, err)

	_, err = svc.UpdateLine(ctx, moved.ID, payroll.LineInput{
		WorkerID: f.worker, ActivityID: "act-4", Date: monday, Quantity: dec("1"),
	})
	assert.ErrorIs(t, err, payroll.ErrDailyLineLimit)
}
