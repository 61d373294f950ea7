/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Workers:
    GET    /api/workers                List workers (?all=true for inactive)
    GET    /api/workers/{id}           Get worker details

  Webhooks (fire-and-forget, queued):
    POST   /api/hooks/employee         Upstream employee event
    POST   /api/hooks/contract         Upstream contract event

  Settings:
    GET    /api/settings               Read the singleton configuration
    PUT    /api/settings               Replace the singleton configuration

  Batches:
    GET    /api/batches                List batches
    POST   /api/batches                Create batch
    GET    /api/batches/{id}           Get batch (status observable here)
    POST   /api/batches/{id}/import    Upload a file, returns 202
    GET    /api/batches/{id}/lines     List batch lines
    POST   /api/batches/{id}/lines     Create line (queues recalculation)

  Lines:
    GET    /api/lines/{id}             Get line with computed fields
    PUT    /api/lines/{id}             Update line (queues recalculation)
    DELETE /api/lines/{id}             Delete line (queues rebalancing)

  Master data:
    GET/POST /api/farms, /api/activities, /api/tariffs

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (service, pipeline, queue)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate triple, daily limit)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fieldpay/payroll-engine/hrsync"
	"github.com/fieldpay/payroll-engine/importer"
	"github.com/fieldpay/payroll-engine/payroll"
)

// maxUploadBytes caps import file uploads.
const maxUploadBytes = 32 << 20

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     payroll.TxStore
	Service   *payroll.Service
	Tasks     payroll.TaskQueue
	Pipeline  *importer.Pipeline
	UploadDir string
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(store payroll.TxStore, svc *payroll.Service, tasks payroll.TaskQueue, pipeline *importer.Pipeline, uploadDir string) *Handler {
	return &Handler{
		Store:     store,
		Service:   svc,
		Tasks:     tasks,
		Pipeline:  pipeline,
		UploadDir: uploadDir,
	}
}

// =============================================================================
// WEBHOOK HANDLERS
// =============================================================================

// HookEmployee accepts an upstream employee event and queues it. The hook
// answers immediately; idempotency and staleness checks happen in the
// sync handler.
// POST /api/hooks/employee
func (h *Handler) HookEmployee(w http.ResponseWriter, r *http.Request) {
	h.enqueueHook(w, r, hrsync.TaskSyncEmployee)
}

// HookContract accepts an upstream contract event and queues it.
// POST /api/hooks/contract
func (h *Handler) HookContract(w http.ResponseWriter, r *http.Request) {
	h.enqueueHook(w, r, hrsync.TaskSyncContract)
}

func (h *Handler) enqueueHook(w http.ResponseWriter, r *http.Request, task string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload", nil)
		return
	}
	if err := h.Tasks.Enqueue(task, json.RawMessage(body)); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to queue event", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// =============================================================================
// WORKER HANDLERS
// =============================================================================

// ListWorkers returns active workers, all workers with ?all=true.
// GET /api/workers
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("all") == "true"
	workers, err := h.Store.ListWorkers(r.Context(), includeInactive)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list workers", err)
		return
	}

	dtos := make([]WorkerDTO, len(workers))
	for i, wk := range workers {
		dtos[i] = toWorkerDTO(wk)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetWorker returns one worker.
// GET /api/workers/{id}
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	id := payroll.WorkerID(chi.URLParam(r, "id"))
	worker, err := h.Store.GetWorker(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get worker", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkerDTO(*worker))
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// GetSettings returns the singleton configuration, creating it with
// defaults on first access.
// GET /api/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Store.GetSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(s))
}

// UpdateSettings replaces the singleton configuration. There is no delete:
// the singleton is permanent.
// PUT /api/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.DailyLineLimit < 0 {
		writeError(w, http.StatusBadRequest, "daily_line_limit cannot be negative", nil)
		return
	}

	s := payroll.Settings{
		MobilizationPct:     req.MobilizationPct,
		ExtraHoursPct:       req.ExtraHoursPct,
		ExtraHourMultiplier: req.ExtraHourMultiplier,
		BasicMonthlyWage:    req.BasicMonthlyWage,
		DailyLineLimit:      req.DailyLineLimit,
	}
	if err := h.Store.SaveSettings(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(s))
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// ListBatches returns all batches.
// GET /api/batches
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.Store.ListBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list batches", err)
		return
	}

	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = toBatchDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateBatch creates a batch in draft status with its ISO week derived
// from the start date.
// POST /api/batches
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.FarmID == "" {
		writeError(w, http.StatusBadRequest, "name and farm_id are required", nil)
		return
	}

	start, err := time.ParseInLocation(dateLayout, req.StartDate, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	end, err := time.ParseInLocation(dateLayout, req.EndDate, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_date is before start_date", nil)
		return
	}
	if _, err := h.Store.GetFarm(r.Context(), payroll.FarmID(req.FarmID)); err != nil {
		writeDomainError(w, "Failed to resolve farm", err)
		return
	}

	batch := &payroll.Batch{
		ID:        payroll.BatchID(uuid.NewString()),
		Name:      req.Name,
		FarmID:    payroll.FarmID(req.FarmID),
		StartDate: start,
		EndDate:   end,
		Status:    payroll.BatchDraft,
	}
	batch.DeriveISO()

	if err := h.Store.CreateBatch(r.Context(), batch); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create batch", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBatchDTO(*batch))
}

// GetBatch returns one batch; clients poll this for status settling.
// GET /api/batches/{id}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := payroll.BatchID(chi.URLParam(r, "id"))
	batch, err := h.Store.GetBatch(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get batch", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(*batch))
}

// ImportBatch accepts a spreadsheet upload and starts the asynchronous
// import chain. Returns 202; progress is observable on the batch status.
// POST /api/batches/{id}/import
func (h *Handler) ImportBatch(w http.ResponseWriter, r *http.Request) {
	id := payroll.BatchID(chi.URLParam(r, "id"))

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field", err)
		return
	}
	defer file.Close()

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to prepare upload dir", err)
		return
	}
	path := filepath.Join(h.UploadDir, uuid.NewString()+filepath.Ext(header.Filename))
	dst, err := os.Create(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store upload", err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(path)
		writeError(w, http.StatusInternalServerError, "Failed to store upload", err)
		return
	}
	dst.Close()

	if err := h.Pipeline.Start(r.Context(), id, path); err != nil {
		os.Remove(path)
		writeDomainError(w, "Failed to start import", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"batch_id": string(id),
		"status":   string(payroll.BatchProcessing),
	})
}

// =============================================================================
// LINE HANDLERS
// =============================================================================

// ListBatchLines returns all lines of a batch with their computed fields.
// GET /api/batches/{id}/lines
func (h *Handler) ListBatchLines(w http.ResponseWriter, r *http.Request) {
	id := payroll.BatchID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetBatch(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get batch", err)
		return
	}

	lines, err := h.Store.ListBatchLines(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list lines", err)
		return
	}

	dtos := make([]LineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = toLineDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLine creates one line and queues the full recalculation cascade.
// POST /api/batches/{id}/lines
func (h *Handler) CreateLine(w http.ResponseWriter, r *http.Request) {
	batchID := payroll.BatchID(chi.URLParam(r, "id"))

	in, ok := h.parseLineRequest(w, r)
	if !ok {
		return
	}

	line, err := h.Service.CreateLine(r.Context(), batchID, in)
	if err != nil {
		writeDomainError(w, "Failed to create line", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLineDTO(*line))
}

// GetLine returns one line.
// GET /api/lines/{id}
func (h *Handler) GetLine(w http.ResponseWriter, r *http.Request) {
	id := payroll.LineID(chi.URLParam(r, "id"))
	line, err := h.Store.GetLine(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get line", err)
		return
	}
	writeJSON(w, http.StatusOK, toLineDTO(*line))
}

// UpdateLine applies input changes and queues recalculation.
// PUT /api/lines/{id}
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	id := payroll.LineID(chi.URLParam(r, "id"))

	in, ok := h.parseLineRequest(w, r)
	if !ok {
		return
	}

	line, err := h.Service.UpdateLine(r.Context(), id, in)
	if err != nil {
		writeDomainError(w, "Failed to update line", err)
		return
	}
	writeJSON(w, http.StatusOK, toLineDTO(*line))
}

// DeleteLine removes a line and queues rebalancing of what remains.
// DELETE /api/lines/{id}
func (h *Handler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	id := payroll.LineID(chi.URLParam(r, "id"))
	if err := h.Service.DeleteLine(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete line", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseLineRequest(w http.ResponseWriter, r *http.Request) (payroll.LineInput, bool) {
	var req LineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return payroll.LineInput{}, false
	}
	if req.WorkerID == "" || req.ActivityID == "" {
		writeError(w, http.StatusBadRequest, "worker_id and activity_id are required", nil)
		return payroll.LineInput{}, false
	}
	if req.Quantity.IsNegative() {
		writeError(w, http.StatusBadRequest, "quantity cannot be negative", nil)
		return payroll.LineInput{}, false
	}

	date, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return payroll.LineInput{}, false
	}

	return payroll.LineInput{
		WorkerID:   payroll.WorkerID(req.WorkerID),
		ActivityID: payroll.ActivityID(req.ActivityID),
		Date:       date,
		Quantity:   req.Quantity,
	}, true
}

// =============================================================================
// MASTER DATA HANDLERS
// =============================================================================

// ListFarms returns all farms.
// GET /api/farms
func (h *Handler) ListFarms(w http.ResponseWriter, r *http.Request) {
	farms, err := h.Store.ListFarms(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list farms", err)
		return
	}

	dtos := make([]FarmDTO, len(farms))
	for i, f := range farms {
		dtos[i] = FarmDTO{ID: string(f.ID), Name: f.Name, Code: f.Code, Description: f.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateFarm creates a farm.
// POST /api/farms
func (h *Handler) CreateFarm(w http.ResponseWriter, r *http.Request) {
	var req FarmDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	farm := &payroll.Farm{
		ID:          payroll.FarmID(uuid.NewString()),
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
	}
	if err := h.Store.CreateFarm(r.Context(), farm); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create farm", err)
		return
	}
	req.ID = string(farm.ID)
	writeJSON(w, http.StatusCreated, req)
}

// ListActivities returns all activities.
// GET /api/activities
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.Store.ListActivities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list activities", err)
		return
	}

	dtos := make([]ActivityDTO, len(activities))
	for i, a := range activities {
		dtos[i] = ActivityDTO{
			ID:          string(a.ID),
			Name:        a.Name,
			LaborTypeID: string(a.LaborTypeID),
			Group:       a.Group,
			Uom:         a.Uom,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateActivity creates an activity under an existing labor type.
// POST /api/activities
func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req ActivityDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.LaborTypeID == "" {
		writeError(w, http.StatusBadRequest, "name and labor_type_id are required", nil)
		return
	}

	activity := &payroll.Activity{
		ID:          payroll.ActivityID(uuid.NewString()),
		Name:        req.Name,
		LaborTypeID: payroll.LaborTypeID(req.LaborTypeID),
		Group:       req.Group,
		Uom:         req.Uom,
	}
	if err := h.Store.CreateActivity(r.Context(), activity); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create activity", err)
		return
	}
	req.ID = string(activity.ID)
	writeJSON(w, http.StatusCreated, req)
}

// ListTariffs returns all tariffs.
// GET /api/tariffs
func (h *Handler) ListTariffs(w http.ResponseWriter, r *http.Request) {
	tariffs, err := h.Store.ListTariffs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tariffs", err)
		return
	}

	dtos := make([]TariffDTO, len(tariffs))
	for i, t := range tariffs {
		dtos[i] = TariffDTO{
			ID:          string(t.ID),
			Name:        t.Name,
			ActivityID:  string(t.ActivityID),
			FarmID:      string(t.FarmID),
			CostPerUnit: t.CostPerUnit,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTariff creates a tariff for an (activity, farm) pair.
// POST /api/tariffs
func (h *Handler) CreateTariff(w http.ResponseWriter, r *http.Request) {
	var req TariffDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ActivityID == "" || req.FarmID == "" {
		writeError(w, http.StatusBadRequest, "activity_id and farm_id are required", nil)
		return
	}
	if req.CostPerUnit.IsNegative() {
		writeError(w, http.StatusBadRequest, "cost_per_unit cannot be negative", nil)
		return
	}
	if _, err := h.Store.GetActivity(r.Context(), payroll.ActivityID(req.ActivityID)); err != nil {
		writeDomainError(w, "Failed to resolve activity", err)
		return
	}
	if _, err := h.Store.GetFarm(r.Context(), payroll.FarmID(req.FarmID)); err != nil {
		writeDomainError(w, "Failed to resolve farm", err)
		return
	}

	tariff := &payroll.Tariff{
		ID:          payroll.TariffID(uuid.NewString()),
		Name:        req.Name,
		ActivityID:  payroll.ActivityID(req.ActivityID),
		FarmID:      payroll.FarmID(req.FarmID),
		CostPerUnit: req.CostPerUnit,
	}
	if err := h.Store.CreateTariff(r.Context(), tariff); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create tariff", err)
		return
	}
	req.ID = string(tariff.ID)
	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, payroll.ErrDuplicateLine), errors.Is(err, payroll.ErrDailyLineLimit):
		writeError(w, http.StatusConflict, message, err)
	case payroll.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
