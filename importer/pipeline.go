/*
pipeline.go - The staged asynchronous import chain

PURPOSE:
  Runs a bulk import as six queue tasks, each independently retryable, each
  enqueueing the next only after its own work committed:

    import.ingest    read + validate the file, hand rows forward
    import.lines     bulk-create lines in fixed-size chunks
    import.inline    inline calculator over every batch line
    import.day       day calculator per multi-line (worker, date) group
    import.week      week calculator per distinct worker
    import.finalize  batch status -> ready

FAILURE MODEL:
  Validation findings are terminal: the batch flips to "error" with the
  capped message and the chain stops without retrying (a retry cannot fix
  the file). Store errors are returned to the queue for its retry policy;
  when retries are exhausted the queue's OnExhausted hook parks the batch
  in "error" so the failure is observable by polling.

RETRY SAFETY:
  Every stage is an overwrite keyed by the batch id. Re-running ingest
  re-reads the same rows; re-running a calculator stage recomputes the same
  deterministic figures.
*/
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fieldpay/payroll-engine/payroll"
	"github.com/fieldpay/payroll-engine/queue"
)

const (
	TaskIngest      = "import.ingest"
	TaskCreateLines = "import.lines"
	TaskInline      = "import.inline"
	TaskDay         = "import.day"
	TaskWeek        = "import.week"
	TaskFinalize    = "import.finalize"

	// chunkSize bounds one bulk insert.
	chunkSize = 500

	dateLayout = "2006-01-02"
)

// Pipeline wires the import stages to the store and the queue.
type Pipeline struct {
	Store payroll.TxStore
	Tasks payroll.TaskQueue
}

func New(store payroll.TxStore, tasks payroll.TaskQueue) *Pipeline {
	return &Pipeline{Store: store, Tasks: tasks}
}

// Start flips the batch to processing and queues the first stage. It
// returns immediately; callers observe progress by polling the batch
// status.
func (p *Pipeline) Start(ctx context.Context, batchID payroll.BatchID, path string) error {
	if _, err := p.Store.GetBatch(ctx, batchID); err != nil {
		return err
	}
	if err := p.Store.SetBatchStatus(ctx, batchID, payroll.BatchProcessing, ""); err != nil {
		return err
	}
	return p.Tasks.Enqueue(TaskIngest, ingestArgs{BatchID: string(batchID), Path: path})
}

// Register binds all six stage handlers to the queue. The shared
// OnExhausted hook parks the batch in "error" once retries run out.
func (p *Pipeline) Register(q *queue.Queue, opts queue.Options) {
	opts.OnExhausted = p.parkBatch

	q.Register(TaskIngest, opts, p.ingest)
	q.Register(TaskCreateLines, opts, p.createLines)
	q.Register(TaskInline, opts, p.inlineStage)
	q.Register(TaskDay, opts, p.dayStage)
	q.Register(TaskWeek, opts, p.weekStage)
	q.Register(TaskFinalize, opts, p.finalize)
}

// =============================================================================
// PAYLOADS
// =============================================================================

type ingestArgs struct {
	BatchID string `json:"batch_id"`
	Path    string `json:"path"`
}

type rowPayload struct {
	Date     string `json:"date"`
	Worker   string `json:"worker"`
	Activity string `json:"activity"`
	Quantity string `json:"quantity"`
}

type linesArgs struct {
	BatchID string       `json:"batch_id"`
	Rows    []rowPayload `json:"rows"`
}

type batchArgs struct {
	BatchID string `json:"batch_id"`
}

// parkBatch is the OnExhausted hook: best-effort flip to "error" so a
// permanently failed stage is visible to pollers.
func (p *Pipeline) parkBatch(ctx context.Context, payload []byte, cause error) {
	var args batchArgs
	if err := json.Unmarshal(payload, &args); err != nil || args.BatchID == "" {
		return
	}
	if err := p.Store.SetBatchStatus(ctx, payroll.BatchID(args.BatchID), payroll.BatchError, cause.Error()); err != nil {
		log.Printf("[Import] Could not park batch %s: %v", args.BatchID, err)
	}
}

// fail is a terminal stop: the file (or its references) is wrong and no
// retry can fix it. Returns nil so the queue acknowledges the task.
func (p *Pipeline) fail(ctx context.Context, batchID payroll.BatchID, msg string) error {
	log.Printf("[Import] Batch %s failed: %s", batchID, msg)
	return p.Store.SetBatchStatus(ctx, batchID, payroll.BatchError, msg)
}

// =============================================================================
// STAGE 1 - VALIDATE & INGEST
// =============================================================================

func (p *Pipeline) ingest(ctx context.Context, payload []byte) error {
	var args ingestArgs
	if err := json.Unmarshal(payload, &args); err != nil {
		return fmt.Errorf("import.ingest: decode: %w", err)
	}
	batchID := payroll.BatchID(args.BatchID)

	headers, raws, err := ReadFile(args.Path)
	if err != nil {
		return p.fail(ctx, batchID, err.Error())
	}
	if errs := CheckStructure(headers); len(errs) > 0 {
		return p.fail(ctx, batchID, FormatErrors(errs))
	}

	validator, err := p.loadValidator(ctx)
	if err != nil {
		return err
	}
	rows, errs := validator.ValidateRows(raws)
	if len(errs) > 0 {
		return p.fail(ctx, batchID, FormatErrors(errs))
	}

	// The validated rows travel in the next payload; the upload file is
	// done with.
	if err := os.Remove(args.Path); err != nil {
		log.Printf("[Import] Could not remove upload %s: %v", args.Path, err)
	}

	next := linesArgs{BatchID: args.BatchID, Rows: make([]rowPayload, 0, len(rows))}
	for _, r := range rows {
		next.Rows = append(next.Rows, rowPayload{
			Date:     r.Date.Format(dateLayout),
			Worker:   r.WorkerBadge,
			Activity: r.ActivityName,
			Quantity: r.Quantity.String(),
		})
	}
	return p.Tasks.Enqueue(TaskCreateLines, next)
}

func (p *Pipeline) loadValidator(ctx context.Context) (*Validator, error) {
	workers, err := p.Store.ListWorkers(ctx, true)
	if err != nil {
		return nil, err
	}
	activities, err := p.Store.ListActivities(ctx)
	if err != nil {
		return nil, err
	}

	v := &Validator{
		WorkerBadges:  make(map[string]bool, len(workers)),
		ActivityNames: make(map[string]bool, len(activities)),
	}
	for _, w := range workers {
		v.WorkerBadges[w.Badge] = true
	}
	for _, a := range activities {
		v.ActivityNames[a.Name] = true
	}
	return v, nil
}

// =============================================================================
// STAGE 2 - BULK-CREATE LINES
// =============================================================================

func (p *Pipeline) createLines(ctx context.Context, payload []byte) error {
	var args linesArgs
	if err := json.Unmarshal(payload, &args); err != nil {
		return fmt.Errorf("import.lines: decode: %w", err)
	}
	batchID := payroll.BatchID(args.BatchID)

	workers, activities, err := p.loadReferences(ctx)
	if err != nil {
		return err
	}

	err = p.Store.WithTx(ctx, func(s payroll.Store) error {
		// Re-runs start from a clean slate: drop anything a previous
		// partial attempt left behind.
		existing, err := s.ListBatchLines(ctx, batchID)
		if err != nil {
			return err
		}
		for _, l := range existing {
			if err := s.DeleteLine(ctx, l.ID); err != nil {
				return err
			}
		}

		chunk := make([]payroll.Line, 0, chunkSize)
		flush := func() error {
			if len(chunk) == 0 {
				return nil
			}
			if err := s.InsertLines(ctx, chunk); err != nil {
				return err
			}
			chunk = chunk[:0]
			return nil
		}

		for _, r := range args.Rows {
			workerID, ok := workers[r.Worker]
			if !ok {
				return &payroll.ReferenceError{Kind: "worker", Ref: r.Worker}
			}
			activityID, ok := activities[r.Activity]
			if !ok {
				return &payroll.ReferenceError{Kind: "activity", Ref: r.Activity}
			}
			date, err := time.ParseInLocation(dateLayout, r.Date, time.UTC)
			if err != nil {
				return fmt.Errorf("row date %q: %w", r.Date, err)
			}
			qty, err := decimal.NewFromString(r.Quantity)
			if err != nil {
				return fmt.Errorf("row quantity %q: %w", r.Quantity, err)
			}

			line := payroll.Line{
				ID:         payroll.LineID(uuid.NewString()),
				BatchID:    batchID,
				WorkerID:   workerID,
				ActivityID: activityID,
				Date:       date,
				Quantity:   qty,
			}
			line.DeriveISO()

			chunk = append(chunk, line)
			if len(chunk) >= chunkSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})
	if err != nil {
		// Bad references or duplicate triples are the file's fault: terminal.
		return p.fail(ctx, batchID, err.Error())
	}

	return p.Tasks.Enqueue(TaskInline, batchArgs{BatchID: args.BatchID})
}

func (p *Pipeline) loadReferences(ctx context.Context) (map[string]payroll.WorkerID, map[string]payroll.ActivityID, error) {
	allWorkers, err := p.Store.ListWorkers(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	allActivities, err := p.Store.ListActivities(ctx)
	if err != nil {
		return nil, nil, err
	}

	workers := make(map[string]payroll.WorkerID, len(allWorkers))
	for _, w := range allWorkers {
		workers[w.Badge] = w.ID
	}
	activities := make(map[string]payroll.ActivityID, len(allActivities))
	for _, a := range allActivities {
		activities[a.Name] = a.ID
	}
	return workers, activities, nil
}

// =============================================================================
// STAGES 3-5 - THE CALCULATOR TIERS OVER THE WHOLE BATCH
// =============================================================================

func (p *Pipeline) inlineStage(ctx context.Context, payload []byte) error {
	var args batchArgs
	if err := json.Unmarshal(payload, &args); err != nil {
		return fmt.Errorf("import.inline: decode: %w", err)
	}
	batchID := payroll.BatchID(args.BatchID)

	err := p.Store.WithTx(ctx, func(s payroll.Store) error {
		lines, err := s.ListBatchLines(ctx, batchID)
		if err != nil {
			return err
		}
		_, err = payroll.InlineCalculator{}.CalculateBulk(ctx, s, lines)
		return err
	})
	if err != nil {
		return fmt.Errorf("import.inline batch=%s: %w", args.BatchID, err)
	}
	return p.Tasks.Enqueue(TaskDay, batchArgs{BatchID: args.BatchID})
}

func (p *Pipeline) dayStage(ctx context.Context, payload []byte) error {
	var args batchArgs
	if err := json.Unmarshal(payload, &args); err != nil {
		return fmt.Errorf("import.day: decode: %w", err)
	}
	batchID := payroll.BatchID(args.BatchID)

	err := p.Store.WithTx(ctx, func(s payroll.Store) error {
		lines, err := s.ListBatchLines(ctx, batchID)
		if err != nil {
			return err
		}

		type groupKey struct {
			worker payroll.WorkerID
			date   time.Time
		}
		groups := make(map[groupKey]int)
		for _, l := range lines {
			groups[groupKey{l.WorkerID, payroll.DateOnly(l.Date)}]++
		}

		day := payroll.DayCalculator{}
		for key, n := range groups {
			if n < 2 {
				continue
			}
			if err := day.Calculate(ctx, s, key.worker, batchID, key.date); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import.day batch=%s: %w", args.BatchID, err)
	}
	return p.Tasks.Enqueue(TaskWeek, batchArgs{BatchID: args.BatchID})
}

func (p *Pipeline) weekStage(ctx context.Context, payload []byte) error {
	var args batchArgs
	if err := json.Unmarshal(payload, &args); err != nil {
		return fmt.Errorf("import.week: decode: %w", err)
	}
	batchID := payroll.BatchID(args.BatchID)

	err := p.Store.WithTx(ctx, func(s payroll.Store) error {
		workerIDs, err := s.ListBatchWorkerIDs(ctx, batchID)
		if err != nil {
			return err
		}
		week := payroll.WeekCalculator{}
		for _, workerID := range workerIDs {
			if err := week.Calculate(ctx, s, workerID, batchID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import.week batch=%s: %w", args.BatchID, err)
	}
	return p.Tasks.Enqueue(TaskFinalize, batchArgs{BatchID: args.BatchID})
}

// =============================================================================
// STAGE 6 - FINALIZE
// =============================================================================

func (p *Pipeline) finalize(ctx context.Context, payload []byte) error {
	var args batchArgs
	if err := json.Unmarshal(payload, &args); err != nil {
		return fmt.Errorf("import.finalize: decode: %w", err)
	}
	log.Printf("[Import] Batch %s ready", args.BatchID)
	return p.Store.SetBatchStatus(ctx, payroll.BatchID(args.BatchID), payroll.BatchReady, "")
}
