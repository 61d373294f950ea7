/*
handlers_test.go - HTTP-level tests for the payroll API

Tests run against the real chi router with the in-memory store and a
recording queue, so assertions cover routing, status mapping and the
queueing side effects of each write.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldpay/payroll-engine/api"
	"github.com/fieldpay/payroll-engine/hrsync"
	"github.com/fieldpay/payroll-engine/importer"
	"github.com/fieldpay/payroll-engine/payroll"
	"github.com/fieldpay/payroll-engine/payroll/store"
)

// =============================================================================
// HARNESS
// =============================================================================

// recordingQueue captures enqueued tasks instead of running them, so tests
// can assert the queueing side effect of each endpoint synchronously.
type recordingQueue struct {
	mu    sync.Mutex
	names []string
}

func (q *recordingQueue) Enqueue(name string, _ any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.names = append(q.names, name)
	return nil
}

func (q *recordingQueue) taskNames() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.names...)
}

type env struct {
	store  *store.Memory
	queue  *recordingQueue
	router http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.SaveSettings(ctx, payroll.Settings{
		MobilizationPct:     dec("10"),
		ExtraHoursPct:       dec("20"),
		ExtraHourMultiplier: dec("1.5"),
		BasicMonthlyWage:    dec("450"),
		DailyLineLimit:      3,
	}))

	wage := dec("600")
	require.NoError(t, m.CreateWorker(ctx, &payroll.Worker{
		ID: "w1", EmployeeRef: 99, Name: "John Doe", Badge: "1234567899",
		Wage: &wage, Active: true, LastSync: time.Now().UTC(),
	}))
	require.NoError(t, m.CreateLaborType(ctx, &payroll.LaborType{
		ID: "lt-field", Name: "Field work", CalculatesIntegral: true,
	}))
	require.NoError(t, m.CreateActivity(ctx, &payroll.Activity{
		ID: "act-prune", Name: "Pruning", LaborTypeID: "lt-field",
	}))
	require.NoError(t, m.CreateFarm(ctx, &payroll.Farm{ID: "farm1", Name: "North"}))
	require.NoError(t, m.CreateTariff(ctx, &payroll.Tariff{
		ID: "tar1", ActivityID: "act-prune", FarmID: "farm1", CostPerUnit: dec("2.5"),
	}))

	batch := &payroll.Batch{
		ID: "b1", Name: "Week 23", FarmID: "farm1",
		StartDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC),
		Status:    payroll.BatchDraft,
	}
	batch.DeriveISO()
	require.NoError(t, m.CreateBatch(ctx, batch))

	q := &recordingQueue{}
	svc := payroll.NewService(m, q)
	pipeline := importer.New(m, q)
	h := api.NewHandler(m, svc, q, pipeline, t.TempDir())

	return &env{store: m, queue: q, router: api.NewRouter(h)}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

// =============================================================================
// WEBHOOKS
// =============================================================================

func TestHooks_ValidPayloadIsQueued(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/hooks/employee", map[string]any{"id": 99})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"queued"}`, rec.Body.String())
	assert.Equal(t, []string{hrsync.TaskSyncEmployee}, e.queue.taskNames())
}

func TestHooks_MalformedJSONIsRejected(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/hooks/contract", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, e.queue.taskNames())
}

// =============================================================================
// BATCHES
// =============================================================================

func TestCreateBatch_DerivesISOWeek(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/batches", map[string]string{
		"name": "Week 24", "farm_id": "farm1",
		"start_date": "2025-06-09", "end_date": "2025-06-15",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	b := decode[api.BatchDTO](t, rec)
	assert.Equal(t, 2025, b.ISOYear)
	assert.Equal(t, 24, b.ISOWeek)
	assert.Equal(t, string(payroll.BatchDraft), b.Status)
}

func TestCreateBatch_UnknownFarmIs404(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/batches", map[string]string{
		"name": "Week 24", "farm_id": "nope",
		"start_date": "2025-06-09", "end_date": "2025-06-15",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateBatch_InvertedDatesAreRejected(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/batches", map[string]string{
		"name": "Backwards", "farm_id": "farm1",
		"start_date": "2025-06-15", "end_date": "2025-06-09",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportBatch_MissingFileFieldIsRejected(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/batches/b1/import", bytes.NewBufferString("--x--"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// LINES
// =============================================================================

func lineBody(date, qty string) map[string]any {
	return map[string]any{
		"worker_id": "w1", "activity_id": "act-prune",
		"date": date, "quantity": qty,
	}
}

func TestCreateLine_QueuesTheCascade(t *testing.T) {
	// GIVEN: A draft batch
	// WHEN: Creating a line
	// THEN: 201 with the raw (not yet calculated) line, cascade queued

	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/batches/b1/lines", lineBody("2025-06-02", "8"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	l := decode[api.LineDTO](t, rec)
	assert.Equal(t, "b1", l.BatchID)
	assert.Equal(t, "2025-06-02", l.Date)
	assert.Equal(t, 23, l.ISOWeek)
	assert.True(t, l.TotalCost.IsZero(), "figures are computed asynchronously")

	assert.Equal(t, []string{payroll.TaskRecalcLine}, e.queue.taskNames())
}

func TestCreateLine_DuplicateTripleIs409(t *testing.T) {
	e := newEnv(t)

	first := e.do(t, http.MethodPost, "/api/batches/b1/lines", lineBody("2025-06-02", "8"))
	require.Equal(t, http.StatusCreated, first.Code)

	dup := e.do(t, http.MethodPost, "/api/batches/b1/lines", lineBody("2025-06-02", "9"))
	assert.Equal(t, http.StatusConflict, dup.Code)
}

func TestCreateLine_DailyLimitIs409(t *testing.T) {
	// The worker may hold at most 3 lines per calendar day.
	e := newEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		line := &payroll.Line{
			ID: payroll.LineID(fmt.Sprintf("seed-%d", i)), BatchID: "b1", WorkerID: "w1",
			ActivityID: payroll.ActivityID(fmt.Sprintf("act-%d", i)),
			Date:       time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), Quantity: dec("1"),
		}
		line.DeriveISO()
		require.NoError(t, e.store.CreateLine(ctx, line))
	}

	rec := e.do(t, http.MethodPost, "/api/batches/b1/lines", lineBody("2025-06-02", "8"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	resp := decode[api.ErrorResponse](t, rec)
	assert.Contains(t, resp.Details, "already has 3 lines")
}

func TestCreateLine_NegativeQuantityIsRejected(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/batches/b1/lines", lineBody("2025-06-02", "-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, e.queue.taskNames())
}

func TestUpdateLine_RoundTrips(t *testing.T) {
	e := newEnv(t)

	created := decode[api.LineDTO](t, e.do(t, http.MethodPost, "/api/batches/b1/lines", lineBody("2025-06-02", "8")))

	rec := e.do(t, http.MethodPut, "/api/lines/"+created.ID, lineBody("2025-06-02", "10"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[api.LineDTO](t, rec)
	assert.True(t, updated.Quantity.Equal(dec("10")))
}

func TestDeleteLine_QueuesRebalancing(t *testing.T) {
	e := newEnv(t)

	created := decode[api.LineDTO](t, e.do(t, http.MethodPost, "/api/batches/b1/lines", lineBody("2025-06-02", "8")))

	rec := e.do(t, http.MethodDelete, "/api/lines/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{payroll.TaskRecalcLine, payroll.TaskRecalcDelete}, e.queue.taskNames())

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/lines/"+created.ID, nil).Code)
}

func TestListBatchLines_UnknownBatchIs404(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/batches/nope/lines", nil).Code)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_RoundTrip(t *testing.T) {
	e := newEnv(t)

	put := e.do(t, http.MethodPut, "/api/settings", api.SettingsDTO{
		MobilizationPct:     dec("12"),
		ExtraHoursPct:       dec("25"),
		ExtraHourMultiplier: dec("2"),
		BasicMonthlyWage:    dec("470"),
		DailyLineLimit:      5,
	})
	require.Equal(t, http.StatusOK, put.Code)

	got := decode[api.SettingsDTO](t, e.do(t, http.MethodGet, "/api/settings", nil))
	assert.True(t, got.MobilizationPct.Equal(dec("12")))
	assert.Equal(t, 5, got.DailyLineLimit)
}

func TestSettings_NegativeLimitIsRejected(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPut, "/api/settings", api.SettingsDTO{DailyLineLimit: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// WORKERS AND MASTER DATA
// =============================================================================

func TestGetWorker_UnknownIs404(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/workers/nope", nil).Code)
}

func TestListWorkers_HidesInactiveByDefault(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.store.CreateWorker(context.Background(), &payroll.Worker{
		ID: "w2", EmployeeRef: 100, Name: "Gone", Badge: "0000000001", Active: false,
	}))

	active := decode[[]api.WorkerDTO](t, e.do(t, http.MethodGet, "/api/workers", nil))
	assert.Len(t, active, 1)

	all := decode[[]api.WorkerDTO](t, e.do(t, http.MethodGet, "/api/workers?all=true", nil))
	assert.Len(t, all, 2)
}

func TestCreateTariff_UnknownActivityIs404(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/tariffs", map[string]any{
		"activity_id": "nope", "farm_id": "farm1", "cost_per_unit": "2",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateActivity_RequiresLaborType(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/activities", map[string]string{"name": "Mowing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
