/*
Package hrsync ingests worker and contract updates pushed by the upstream
HR system.

PURPOSE:
  Two webhook-fed event streams keep worker master data (identity, monthly
  wage, contract dates) current. Delivery order is not guaranteed, and the
  upstream may replay events, so every apply is guarded by a timestamp:
  an event only lands if it is strictly newer than the worker's stored
  LastSync. Last-writer-wins by event time, not arrival order.

DESIGN:
  - Employee events create-or-update a worker keyed by the upstream
    employee id.
  - Contract events fan out to every worker holding the contract id (there
    should be one, but more than one is tolerated), inside one store
    transaction so two concurrent contract events cannot interleave on the
    same rows.
  - A payload missing a required key is rejected with a retryable error.
    The queue's bounded retry (3 attempts, fixed delay) surfaces it for
    manual intervention rather than looping forever.
*/
package hrsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fieldpay/payroll-engine/payroll"
	"github.com/fieldpay/payroll-engine/queue"
)

const (
	TaskSyncEmployee = "sync.employee"
	TaskSyncContract = "sync.contract"

	dateLayout = "2006-01-02"
)

// EmployeeEvent mirrors the upstream employee webhook payload. Pointer
// fields distinguish "key absent" from a zero value.
type EmployeeEvent struct {
	ID          *int64  `json:"id"`
	Name        *string `json:"name"`
	MobilePhone *string `json:"mobile_phone"`
	Email       *string `json:"email"`
	Badge       *string `json:"identification_number"`
	ContractRef *int64  `json:"contract_id"`

	Wage           *decimal.Decimal `json:"wage"`
	StartDate      *string          `json:"start_date"`
	EndDate        *string          `json:"end_date"`
	ContractStatus *string          `json:"contract_status"`

	Action    string     `json:"action"`
	Timestamp *time.Time `json:"timestamp"`
}

// ContractEvent mirrors the upstream contract webhook payload.
type ContractEvent struct {
	ContractRef    *int64           `json:"contract_id"`
	Wage           *decimal.Decimal `json:"wage"`
	StartDate      *string          `json:"start_date"`
	EndDate        *string          `json:"end_date"`
	ContractStatus *string          `json:"contract_status"`

	Action    string     `json:"action"`
	Timestamp *time.Time `json:"timestamp"`
}

// Syncer applies HR events against the store.
type Syncer struct {
	Store payroll.TxStore
}

func New(store payroll.TxStore) *Syncer {
	return &Syncer{Store: store}
}

// Register binds both handlers with the bounded-retry policy the sync
// contract calls for.
func Register(q *queue.Queue, store payroll.TxStore, opts queue.Options) {
	s := New(store)
	q.Register(TaskSyncEmployee, opts, s.handleEmployee)
	q.Register(TaskSyncContract, opts, s.handleContract)
}

func (s *Syncer) handleEmployee(ctx context.Context, payload []byte) error {
	var ev EmployeeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("sync.employee: decode: %w", err)
	}
	return s.SyncEmployee(ctx, ev)
}

func (s *Syncer) handleContract(ctx context.Context, payload []byte) error {
	var ev ContractEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("sync.contract: decode: %w", err)
	}
	return s.SyncContract(ctx, ev)
}

// =============================================================================
// EMPLOYEE EVENTS
// =============================================================================

// SyncEmployee creates or updates the worker identified by the event's
// upstream employee id. Stale events (timestamp not strictly newer than
// the worker's LastSync) are discarded silently.
func (s *Syncer) SyncEmployee(ctx context.Context, ev EmployeeEvent) error {
	if err := ev.validate(); err != nil {
		return err
	}

	action := ev.Action
	if action == "" {
		action = "create"
	}
	if action != "create" && action != "update" {
		log.Printf("[HRSync] Ignoring employee event with action %q", action)
		return nil
	}

	return s.Store.WithTx(ctx, func(st payroll.Store) error {
		existing, err := st.GetWorkerByEmployeeRef(ctx, *ev.ID)
		if err != nil && !payroll.IsNotFound(err) {
			return err
		}

		if existing == nil {
			w := &payroll.Worker{
				ID:          payroll.WorkerID(uuid.NewString()),
				EmployeeRef: *ev.ID,
				Active:      true,
			}
			ev.applyTo(w)
			log.Printf("[HRSync] Creating worker ref=%d badge=%s", w.EmployeeRef, w.Badge)
			return st.CreateWorker(ctx, w)
		}

		if !ev.Timestamp.After(existing.LastSync) {
			log.Printf("[HRSync] Discarding stale employee event ref=%d ts=%s last_sync=%s",
				*ev.ID, ev.Timestamp.Format(time.RFC3339), existing.LastSync.Format(time.RFC3339))
			return nil
		}

		ev.applyTo(existing)
		log.Printf("[HRSync] Updating worker ref=%d badge=%s", existing.EmployeeRef, existing.Badge)
		return st.UpdateWorker(ctx, existing)
	})
}

func (ev *EmployeeEvent) validate() error {
	switch {
	case ev.ID == nil:
		return &payroll.MissingFieldError{Field: "id"}
	case ev.Name == nil:
		return &payroll.MissingFieldError{Field: "name"}
	case ev.MobilePhone == nil:
		return &payroll.MissingFieldError{Field: "mobile_phone"}
	case ev.Email == nil:
		return &payroll.MissingFieldError{Field: "email"}
	case ev.Badge == nil:
		return &payroll.MissingFieldError{Field: "identification_number"}
	case ev.ContractRef == nil:
		return &payroll.MissingFieldError{Field: "contract_id"}
	case ev.Timestamp == nil:
		return &payroll.MissingFieldError{Field: "timestamp"}
	}
	return nil
}

func (ev *EmployeeEvent) applyTo(w *payroll.Worker) {
	w.Name = *ev.Name
	w.MobilePhone = *ev.MobilePhone
	w.Email = *ev.Email
	w.Badge = *ev.Badge
	w.ContractRef = ev.ContractRef

	if ev.Wage != nil {
		wage := *ev.Wage
		w.Wage = &wage
	}
	if ev.StartDate != nil {
		w.StartDate = parseDate(*ev.StartDate)
	}
	if ev.EndDate != nil {
		w.EndDate = parseDate(*ev.EndDate)
	}
	if ev.ContractStatus != nil {
		w.ContractStatus = *ev.ContractStatus
	}
	w.LastSync = *ev.Timestamp
}

// =============================================================================
// CONTRACT EVENTS
// =============================================================================

// SyncContract applies a contract update to every worker holding the
// contract id. The whole fan-out runs in one transaction so the matching
// rows cannot be touched by a concurrent contract event mid-apply; the
// newer-than check still runs per worker. No matching worker is a skip,
// not an error.
func (s *Syncer) SyncContract(ctx context.Context, ev ContractEvent) error {
	if err := ev.validate(); err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(st payroll.Store) error {
		workers, err := st.ListWorkersByContractRef(ctx, *ev.ContractRef)
		if err != nil {
			return err
		}
		if len(workers) == 0 {
			log.Printf("[HRSync] No worker holds contract %d, skipping", *ev.ContractRef)
			return nil
		}
		if len(workers) > 1 {
			log.Printf("[HRSync] Contract %d matches %d workers", *ev.ContractRef, len(workers))
		}

		for i := range workers {
			w := &workers[i]
			if !ev.Timestamp.After(w.LastSync) {
				log.Printf("[HRSync] Discarding stale contract event contract=%d worker=%s",
					*ev.ContractRef, w.ID)
				continue
			}

			wage := *ev.Wage
			w.Wage = &wage
			if ev.StartDate != nil {
				w.StartDate = parseDate(*ev.StartDate)
			}
			if ev.EndDate != nil {
				w.EndDate = parseDate(*ev.EndDate)
			}
			if ev.ContractStatus != nil {
				w.ContractStatus = *ev.ContractStatus
			}
			w.LastSync = *ev.Timestamp

			log.Printf("[HRSync] Updating worker %s from contract %d", w.ID, *ev.ContractRef)
			if err := st.UpdateWorker(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func (ev *ContractEvent) validate() error {
	switch {
	case ev.ContractRef == nil:
		return &payroll.MissingFieldError{Field: "contract_id"}
	case ev.Wage == nil:
		return &payroll.MissingFieldError{Field: "wage"}
	case ev.Timestamp == nil:
		return &payroll.MissingFieldError{Field: "timestamp"}
	}
	return nil
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		log.Printf("[HRSync] Unparseable date %q, leaving unset", s)
		return nil
	}
	return &t
}
