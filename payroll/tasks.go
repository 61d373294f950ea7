/*
tasks.go - Queued recalculation task handlers

PURPOSE:
  The asynchronous side of single-line mutations. The service layer flips
  the batch to "processing" and enqueues one of these; the handler runs the
  orchestrator's transactional cascade and settles the batch back to
  "ready". Polling the batch status is the caller's fence.

RETRY SAFETY:
  Both handlers are pure overwrites keyed by ids, so the queue's
  at-least-once delivery is harmless.
*/
package payroll

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/fieldpay/payroll-engine/queue"
)

const (
	TaskRecalcLine   = "recalc.line"
	TaskRecalcDelete = "recalc.delete"

	dateLayout = "2006-01-02"
)

// RecalcLineArgs is the payload for TaskRecalcLine.
type RecalcLineArgs struct {
	LineID     string `json:"line_id"`
	RecalcWeek bool   `json:"recalc_week"`
}

// RecalcDeleteArgs is the payload for TaskRecalcDelete.
type RecalcDeleteArgs struct {
	WorkerID string `json:"worker_id"`
	BatchID  string `json:"batch_id"`
	Date     string `json:"date"`
}

// RegisterTasks binds the recalculation handlers to the queue.
func RegisterTasks(q *queue.Queue, store TxStore, opts queue.Options) {
	orch := NewOrchestrator(store)

	q.Register(TaskRecalcLine, opts, func(ctx context.Context, payload []byte) error {
		var args RecalcLineArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return fmt.Errorf("recalc.line: decode: %w", err)
		}

		line, err := store.GetLine(ctx, LineID(args.LineID))
		if err != nil {
			if IsNotFound(err) {
				// Deleted between enqueue and processing; the deletion's own
				// task settles the batch status.
				log.Printf("[Recalc] Line %s gone, skipping", args.LineID)
				return nil
			}
			return err
		}

		if err := orch.RecalculateLine(ctx, line.ID, args.RecalcWeek); err != nil {
			return fmt.Errorf("recalc.line %s: %w", args.LineID, err)
		}
		return store.SetBatchStatus(ctx, line.BatchID, BatchReady, "")
	})

	q.Register(TaskRecalcDelete, opts, func(ctx context.Context, payload []byte) error {
		var args RecalcDeleteArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return fmt.Errorf("recalc.delete: decode: %w", err)
		}
		date, err := time.ParseInLocation(dateLayout, args.Date, time.UTC)
		if err != nil {
			return fmt.Errorf("recalc.delete: bad date %q: %w", args.Date, err)
		}

		if err := orch.RecalculateAfterDeletion(ctx, WorkerID(args.WorkerID), BatchID(args.BatchID), date); err != nil {
			return fmt.Errorf("recalc.delete worker=%s batch=%s: %w", args.WorkerID, args.BatchID, err)
		}
		return store.SetBatchStatus(ctx, BatchID(args.BatchID), BatchReady, "")
	})
}
