/*
service.go - Write path and recalculation call policy

PURPOSE:
  The service layer the API talks to for line mutations. It owns the rules
  the calculators must be able to rely on:
    - the daily line limit is enforced before anything else runs
    - the (worker, activity, date) triple stays unique
    - ISO week/year are re-derived from the date on every write
    - the batch flips to "processing" on every mutation and only settles
      back to "ready" once the queued recalculation has completed

CALL POLICY:
  create: recalc with week tier
  update: recalc; week tier only when the activity changed (an activity swap
          can change integral eligibility, a quantity edit cannot)
  delete: day + week rebalancing for what remains

SEE ALSO:
  - orchestrator.go: the cascade itself
  - tasks.go: the queued task handlers driving the orchestrator
*/
package payroll

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaskQueue is the slice of the queue the service needs.
type TaskQueue interface {
	Enqueue(name string, args any) error
}

// Service coordinates line mutations with the recalculation engine.
type Service struct {
	Store TxStore
	Tasks TaskQueue
}

func NewService(store TxStore, tasks TaskQueue) *Service {
	return &Service{Store: store, Tasks: tasks}
}

// LineInput is the writable surface of a line. Computed fields are owned by
// the engine and have no place here.
type LineInput struct {
	WorkerID   WorkerID
	ActivityID ActivityID
	Date       time.Time
	Quantity   decimal.Decimal
}

// CreateLine validates and persists a new line in a batch, then queues the
// full cascade (week tier included).
func (svc *Service) CreateLine(ctx context.Context, batchID BatchID, in LineInput) (*Line, error) {
	batch, err := svc.Store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if _, err := svc.Store.GetWorker(ctx, in.WorkerID); err != nil {
		return nil, err
	}
	if _, err := svc.Store.GetActivity(ctx, in.ActivityID); err != nil {
		return nil, err
	}
	if err := svc.checkDailyLimit(ctx, in.WorkerID, in.Date); err != nil {
		return nil, err
	}

	line := &Line{
		ID:         LineID(uuid.NewString()),
		BatchID:    batch.ID,
		WorkerID:   in.WorkerID,
		ActivityID: in.ActivityID,
		Date:       DateOnly(in.Date),
		Quantity:   in.Quantity,
	}
	line.DeriveISO()

	if err := svc.Store.CreateLine(ctx, line); err != nil {
		return nil, err
	}

	if err := svc.markProcessingAndRecalc(ctx, batch.ID, line.ID, true); err != nil {
		return nil, err
	}
	return line, nil
}

// UpdateLine applies input changes to a line and queues recalculation.
// Only an activity change forces the week tier to re-run.
func (svc *Service) UpdateLine(ctx context.Context, lineID LineID, in LineInput) (*Line, error) {
	line, err := svc.Store.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}

	activityChanged := in.ActivityID != line.ActivityID
	if activityChanged {
		if _, err := svc.Store.GetActivity(ctx, in.ActivityID); err != nil {
			return nil, err
		}
	}

	newDate := DateOnly(in.Date)
	if in.WorkerID != line.WorkerID || !newDate.Equal(line.Date) {
		if _, err := svc.Store.GetWorker(ctx, in.WorkerID); err != nil {
			return nil, err
		}
		if err := svc.checkDailyLimit(ctx, in.WorkerID, newDate); err != nil {
			return nil, err
		}
	}

	line.WorkerID = in.WorkerID
	line.ActivityID = in.ActivityID
	line.Date = newDate
	line.Quantity = in.Quantity
	line.DeriveISO()

	if err := svc.Store.UpdateLine(ctx, line); err != nil {
		return nil, err
	}

	if err := svc.markProcessingAndRecalc(ctx, line.BatchID, line.ID, activityChanged); err != nil {
		return nil, err
	}
	return line, nil
}

// DeleteLine removes a line and queues the after-deletion rebalancing for
// the worker's remaining same-day and same-batch lines.
func (svc *Service) DeleteLine(ctx context.Context, lineID LineID) error {
	line, err := svc.Store.GetLine(ctx, lineID)
	if err != nil {
		return err
	}

	if err := svc.Store.DeleteLine(ctx, line.ID); err != nil {
		return err
	}
	if err := svc.Store.SetBatchStatus(ctx, line.BatchID, BatchProcessing, ""); err != nil {
		return err
	}
	return svc.Tasks.Enqueue(TaskRecalcDelete, RecalcDeleteArgs{
		WorkerID: string(line.WorkerID),
		BatchID:  string(line.BatchID),
		Date:     line.Date.Format(dateLayout),
	})
}

func (svc *Service) checkDailyLimit(ctx context.Context, workerID WorkerID, date time.Time) error {
	cfg, err := svc.Store.GetSettings(ctx)
	if err != nil {
		return err
	}
	if cfg.DailyLineLimit <= 0 {
		return nil
	}
	count, err := svc.Store.CountWorkerDayLines(ctx, workerID, DateOnly(date))
	if err != nil {
		return err
	}
	if count >= cfg.DailyLineLimit {
		return &DailyLimitError{WorkerID: workerID, Date: DateOnly(date), Limit: cfg.DailyLineLimit}
	}
	return nil
}

func (svc *Service) markProcessingAndRecalc(ctx context.Context, batchID BatchID, lineID LineID, recalcWeek bool) error {
	if err := svc.Store.SetBatchStatus(ctx, batchID, BatchProcessing, ""); err != nil {
		return err
	}
	return svc.Tasks.Enqueue(TaskRecalcLine, RecalcLineArgs{
		LineID:     string(lineID),
		RecalcWeek: recalcWeek,
	})
}
