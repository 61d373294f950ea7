// Package store provides an in-memory Store implementation (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldpay/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements payroll.TxStore with plain maps. Transactions are
// simulated with a snapshot + restore on error; a dedicated mutex serializes
// them, which is all the consistency the tests need.
type Memory struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	workers    map[payroll.WorkerID]payroll.Worker
	laborTypes map[payroll.LaborTypeID]payroll.LaborType
	activities map[payroll.ActivityID]payroll.Activity
	farms      map[payroll.FarmID]payroll.Farm
	tariffs    map[payroll.TariffID]payroll.Tariff
	batches    map[payroll.BatchID]payroll.Batch
	lines      map[payroll.LineID]payroll.Line
	settings   *payroll.Settings
}

func NewMemory() *Memory {
	return &Memory{
		workers:    make(map[payroll.WorkerID]payroll.Worker),
		laborTypes: make(map[payroll.LaborTypeID]payroll.LaborType),
		activities: make(map[payroll.ActivityID]payroll.Activity),
		farms:      make(map[payroll.FarmID]payroll.Farm),
		tariffs:    make(map[payroll.TariffID]payroll.Tariff),
		batches:    make(map[payroll.BatchID]payroll.Batch),
		lines:      make(map[payroll.LineID]payroll.Line),
	}
}

// =============================================================================
// WORKERS
// =============================================================================

func (m *Memory) CreateWorker(_ context.Context, w *payroll.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	m.workers[w.ID] = *w
	return nil
}

func (m *Memory) UpdateWorker(_ context.Context, w *payroll.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workers[w.ID]; !ok {
		return payroll.ErrWorkerNotFound
	}
	w.UpdatedAt = time.Now().UTC()
	m.workers[w.ID] = *w
	return nil
}

func (m *Memory) GetWorker(_ context.Context, id payroll.WorkerID) (*payroll.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	if !ok {
		return nil, payroll.ErrWorkerNotFound
	}
	return &w, nil
}

func (m *Memory) GetWorkerByEmployeeRef(_ context.Context, ref int64) (*payroll.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.workers {
		if w.EmployeeRef == ref {
			w := w
			return &w, nil
		}
	}
	return nil, payroll.ErrWorkerNotFound
}

func (m *Memory) GetWorkerByBadge(_ context.Context, badge string) (*payroll.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.workers {
		if w.Badge == badge {
			w := w
			return &w, nil
		}
	}
	return nil, payroll.ErrWorkerNotFound
}

func (m *Memory) ListWorkers(_ context.Context, includeInactive bool) ([]payroll.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.Worker
	for _, w := range m.workers {
		if !includeInactive && !w.Active {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListWorkersByContractRef(_ context.Context, ref int64) ([]payroll.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []payroll.Worker
	for _, w := range m.workers {
		if w.ContractRef != nil && *w.ContractRef == ref {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// MASTER DATA
// =============================================================================

func (m *Memory) CreateLaborType(_ context.Context, lt *payroll.LaborType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.laborTypes[lt.ID] = *lt
	return nil
}

func (m *Memory) ListLaborTypes(_ context.Context) ([]payroll.LaborType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.LaborType, 0, len(m.laborTypes))
	for _, lt := range m.laborTypes {
		out = append(out, lt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) CreateActivity(_ context.Context, a *payroll.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities[a.ID] = *a
	return nil
}

func (m *Memory) GetActivity(_ context.Context, id payroll.ActivityID) (*payroll.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.activities[id]
	if !ok {
		return nil, payroll.ErrActivityNotFound
	}
	return &a, nil
}

func (m *Memory) GetActivityByName(_ context.Context, name string) (*payroll.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.activities {
		if a.Name == name {
			a := a
			return &a, nil
		}
	}
	return nil, payroll.ErrActivityNotFound
}

func (m *Memory) ListActivities(_ context.Context) ([]payroll.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.Activity, 0, len(m.activities))
	for _, a := range m.activities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateFarm(_ context.Context, f *payroll.Farm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.farms[f.ID] = *f
	return nil
}

func (m *Memory) GetFarm(_ context.Context, id payroll.FarmID) (*payroll.Farm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.farms[id]
	if !ok {
		return nil, payroll.ErrFarmNotFound
	}
	return &f, nil
}

func (m *Memory) ListFarms(_ context.Context) ([]payroll.Farm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.Farm, 0, len(m.farms))
	for _, f := range m.farms {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateTariff(_ context.Context, t *payroll.Tariff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tariffs[t.ID] = *t
	return nil
}

func (m *Memory) ListTariffs(_ context.Context) ([]payroll.Tariff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.Tariff, 0, len(m.tariffs))
	for _, t := range m.tariffs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) LookupTariff(_ context.Context, activityID payroll.ActivityID, farmID payroll.FarmID) (decimal.Decimal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tariffs {
		if t.ActivityID == activityID && t.FarmID == farmID {
			return t.CostPerUnit, true, nil
		}
	}
	return decimal.Zero, false, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Memory) GetSettings(_ context.Context) (payroll.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		s := payroll.DefaultSettings()
		m.settings = &s
	}
	return *m.settings, nil
}

func (m *Memory) SaveSettings(_ context.Context, s payroll.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

// =============================================================================
// BATCHES
// =============================================================================

func (m *Memory) CreateBatch(_ context.Context, b *payroll.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	m.batches[b.ID] = *b
	return nil
}

func (m *Memory) GetBatch(_ context.Context, id payroll.BatchID) (*payroll.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, payroll.ErrBatchNotFound
	}
	return &b, nil
}

func (m *Memory) ListBatches(_ context.Context) ([]payroll.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]payroll.Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetBatchStatus(_ context.Context, id payroll.BatchID, status payroll.BatchStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return payroll.ErrBatchNotFound
	}
	b.Status = status
	b.ErrorMsg = errMsg
	b.UpdatedAt = time.Now().UTC()
	m.batches[id] = b
	return nil
}

// =============================================================================
// LINES
// =============================================================================

func (m *Memory) CreateLine(_ context.Context, l *payroll.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tripleExistsLocked(l.WorkerID, l.ActivityID, l.Date, l.ID) {
		return payroll.ErrDuplicateLine
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	m.lines[l.ID] = *l
	return nil
}

func (m *Memory) UpdateLine(_ context.Context, l *payroll.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.lines[l.ID]
	if !ok {
		return payroll.ErrLineNotFound
	}
	if m.tripleExistsLocked(l.WorkerID, l.ActivityID, l.Date, l.ID) {
		return payroll.ErrDuplicateLine
	}
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = time.Now().UTC()
	m.lines[l.ID] = *l
	return nil
}

func (m *Memory) tripleExistsLocked(workerID payroll.WorkerID, activityID payroll.ActivityID, date time.Time, exclude payroll.LineID) bool {
	for id, other := range m.lines {
		if id == exclude {
			continue
		}
		if other.WorkerID == workerID && other.ActivityID == activityID && other.Date.Equal(date) {
			return true
		}
	}
	return false
}

func (m *Memory) DeleteLine(_ context.Context, id payroll.LineID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lines[id]; !ok {
		return payroll.ErrLineNotFound
	}
	delete(m.lines, id)
	return nil
}

func (m *Memory) GetLine(_ context.Context, id payroll.LineID) (*payroll.Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lines[id]
	if !ok {
		return nil, payroll.ErrLineNotFound
	}
	return &l, nil
}

func (m *Memory) InsertLines(_ context.Context, lines []payroll.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range lines {
		if m.tripleExistsLocked(l.WorkerID, l.ActivityID, l.Date, l.ID) {
			return payroll.ErrDuplicateLine
		}
	}
	now := time.Now().UTC()
	for _, l := range lines {
		l.CreatedAt, l.UpdatedAt = now, now
		m.lines[l.ID] = l
	}
	return nil
}

func (m *Memory) ListBatchLines(_ context.Context, batchID payroll.BatchID) ([]payroll.Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectLocked(func(l payroll.Line) bool { return l.BatchID == batchID }), nil
}

func (m *Memory) ListWorkerBatchLines(_ context.Context, workerID payroll.WorkerID, batchID payroll.BatchID) ([]payroll.Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectLocked(func(l payroll.Line) bool {
		return l.WorkerID == workerID && l.BatchID == batchID
	}), nil
}

func (m *Memory) ListDayLines(_ context.Context, workerID payroll.WorkerID, batchID payroll.BatchID, date time.Time) ([]payroll.Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	day := payroll.DateOnly(date)
	return m.collectLocked(func(l payroll.Line) bool {
		return l.WorkerID == workerID && l.BatchID == batchID && l.Date.Equal(day)
	}), nil
}

func (m *Memory) ListBatchWorkerIDs(_ context.Context, batchID payroll.BatchID) ([]payroll.WorkerID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[payroll.WorkerID]bool)
	var out []payroll.WorkerID
	for _, l := range m.lines {
		if l.BatchID == batchID && !seen[l.WorkerID] {
			seen[l.WorkerID] = true
			out = append(out, l.WorkerID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) CountWorkerDayLines(_ context.Context, workerID payroll.WorkerID, date time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	day := payroll.DateOnly(date)
	count := 0
	for _, l := range m.lines {
		if l.WorkerID == workerID && l.Date.Equal(day) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) CountQualifyingDays(_ context.Context, workerID payroll.WorkerID, batchID payroll.BatchID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	days := make(map[time.Time]bool)
	for _, l := range m.lines {
		if l.WorkerID != workerID || l.BatchID != batchID {
			continue
		}
		if m.qualifiesLocked(l.ActivityID) {
			days[payroll.DateOnly(l.Date)] = true
		}
	}
	return len(days), nil
}

func (m *Memory) qualifiesLocked(activityID payroll.ActivityID) bool {
	a, ok := m.activities[activityID]
	if !ok {
		return false
	}
	lt, ok := m.laborTypes[a.LaborTypeID]
	return ok && lt.CalculatesIntegral
}

func (m *Memory) collectLocked(match func(payroll.Line) bool) []payroll.Line {
	var out []payroll.Line
	for _, l := range m.lines {
		if match(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// COMPUTED-FIELD WRITES
// =============================================================================

func (m *Memory) UpdateLineFigures(_ context.Context, id payroll.LineID, f payroll.LineFigures) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lines[id]
	if !ok {
		return payroll.ErrLineNotFound
	}
	l.Figures = f
	l.UpdatedAt = time.Now().UTC()
	m.lines[id] = l
	return nil
}

func (m *Memory) UpdateLineFiguresBulk(_ context.Context, lines []payroll.Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, in := range lines {
		l, ok := m.lines[in.ID]
		if !ok {
			return payroll.ErrLineNotFound
		}
		l.Figures = in.Figures
		l.UpdatedAt = now
		m.lines[in.ID] = l
	}
	return nil
}

func (m *Memory) ResetIntegral(_ context.Context, workerID payroll.WorkerID, batchID payroll.BatchID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.lines {
		if l.WorkerID == workerID && l.BatchID == batchID {
			l.Figures.IntegralBonus = decimal.Zero
			m.lines[id] = l
		}
	}
	return nil
}

func (m *Memory) SetQualifyingIntegral(_ context.Context, workerID payroll.WorkerID, batchID payroll.BatchID, value decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.lines {
		if l.WorkerID == workerID && l.BatchID == batchID && m.qualifiesLocked(l.ActivityID) {
			l.Figures.IntegralBonus = value
			m.lines[id] = l
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONS - snapshot + restore
// =============================================================================

// WithTx serializes transactions and rolls back to a snapshot when fn
// fails. Good enough for tests; real isolation lives in store/sqlite.
func (m *Memory) WithTx(_ context.Context, fn func(payroll.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	workers    map[payroll.WorkerID]payroll.Worker
	laborTypes map[payroll.LaborTypeID]payroll.LaborType
	activities map[payroll.ActivityID]payroll.Activity
	farms      map[payroll.FarmID]payroll.Farm
	tariffs    map[payroll.TariffID]payroll.Tariff
	batches    map[payroll.BatchID]payroll.Batch
	lines      map[payroll.LineID]payroll.Line
	settings   *payroll.Settings
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := memorySnapshot{
		workers:    make(map[payroll.WorkerID]payroll.Worker, len(m.workers)),
		laborTypes: make(map[payroll.LaborTypeID]payroll.LaborType, len(m.laborTypes)),
		activities: make(map[payroll.ActivityID]payroll.Activity, len(m.activities)),
		farms:      make(map[payroll.FarmID]payroll.Farm, len(m.farms)),
		tariffs:    make(map[payroll.TariffID]payroll.Tariff, len(m.tariffs)),
		batches:    make(map[payroll.BatchID]payroll.Batch, len(m.batches)),
		lines:      make(map[payroll.LineID]payroll.Line, len(m.lines)),
	}
	for k, v := range m.workers {
		snap.workers[k] = v
	}
	for k, v := range m.laborTypes {
		snap.laborTypes[k] = v
	}
	for k, v := range m.activities {
		snap.activities[k] = v
	}
	for k, v := range m.farms {
		snap.farms[k] = v
	}
	for k, v := range m.tariffs {
		snap.tariffs[k] = v
	}
	for k, v := range m.batches {
		snap.batches[k] = v
	}
	for k, v := range m.lines {
		snap.lines[k] = v
	}
	if m.settings != nil {
		s := *m.settings
		snap.settings = &s
	}
	return snap
}

func (m *Memory) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = snap.workers
	m.laborTypes = snap.laborTypes
	m.activities = snap.activities
	m.farms = snap.farms
	m.tariffs = snap.tariffs
	m.batches = snap.batches
	m.lines = snap.lines
	m.settings = snap.settings
}
