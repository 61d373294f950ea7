/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fieldpay/payroll-engine/payroll"
)

// =============================================================================
// WORKERS
// =============================================================================

// WorkerDTO represents a field worker in API responses.
type WorkerDTO struct {
	ID             string  `json:"id"`
	EmployeeRef    int64   `json:"employee_ref"`
	ContractRef    *int64  `json:"contract_ref,omitempty"`
	Name           string  `json:"name"`
	MobilePhone    string  `json:"mobile_phone,omitempty"`
	Email          string  `json:"email,omitempty"`
	Badge          string  `json:"badge"`
	Wage           *string `json:"wage,omitempty"`
	StartDate      *string `json:"start_date,omitempty"`
	EndDate        *string `json:"end_date,omitempty"`
	ContractStatus string  `json:"contract_status,omitempty"`
	Active         bool    `json:"active"`
	LastSync       string  `json:"last_sync"`
}

// =============================================================================
// SETTINGS
// =============================================================================

// SettingsDTO is the singleton engine configuration. Percentages use the
// 0-100 scale.
type SettingsDTO struct {
	MobilizationPct     decimal.Decimal `json:"mobilization_pct"`
	ExtraHoursPct       decimal.Decimal `json:"extra_hours_pct"`
	ExtraHourMultiplier decimal.Decimal `json:"extra_hour_multiplier"`
	BasicMonthlyWage    decimal.Decimal `json:"basic_monthly_wage"`
	DailyLineLimit      int             `json:"daily_line_limit"`
}

// =============================================================================
// BATCHES
// =============================================================================

// BatchDTO represents a batch in API responses.
type BatchDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FarmID    string `json:"farm_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	ISOYear   int    `json:"iso_year"`
	ISOWeek   int    `json:"iso_week"`
	Status    string `json:"status"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// CreateBatchRequest is the request to create a batch.
type CreateBatchRequest struct {
	Name      string `json:"name"`
	FarmID    string `json:"farm_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// =============================================================================
// LINES
// =============================================================================

// LineDTO represents a line with its computed fields.
type LineDTO struct {
	ID         string          `json:"id"`
	BatchID    string          `json:"batch_id"`
	WorkerID   string          `json:"worker_id"`
	ActivityID string          `json:"activity_id"`
	Date       string          `json:"date"`
	Quantity   decimal.Decimal `json:"quantity"`
	ISOYear    int             `json:"iso_year"`
	ISOWeek    int             `json:"iso_week"`

	TotalCost         decimal.Decimal `json:"total_cost"`
	SalarySurplus     decimal.Decimal `json:"salary_surplus"`
	MobilizationBonus decimal.Decimal `json:"mobilization_bonus"`
	ExtraHoursValue   decimal.Decimal `json:"extra_hours_value"`
	ExtraHoursQty     decimal.Decimal `json:"extra_hours_qty"`
	ThirteenthBonus   decimal.Decimal `json:"thirteenth_bonus"`
	FourteenthBonus   decimal.Decimal `json:"fourteenth_bonus"`
	IntegralBonus     decimal.Decimal `json:"integral_bonus"`
}

// LineRequest is the writable surface of a line; computed fields are
// engine-owned and never accepted from clients.
type LineRequest struct {
	WorkerID   string          `json:"worker_id"`
	ActivityID string          `json:"activity_id"`
	Date       string          `json:"date"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// =============================================================================
// MASTER DATA
// =============================================================================

// ActivityDTO represents an activity in API responses.
type ActivityDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LaborTypeID string `json:"labor_type_id"`
	Group       string `json:"group,omitempty"`
	Uom         string `json:"uom,omitempty"`
}

// FarmDTO represents a farm in API responses.
type FarmDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

// TariffDTO represents a tariff in API responses.
type TariffDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	ActivityID  string          `json:"activity_id"`
	FarmID      string          `json:"farm_id"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

const dateLayout = "2006-01-02"

func toWorkerDTO(w payroll.Worker) WorkerDTO {
	dto := WorkerDTO{
		ID:             string(w.ID),
		EmployeeRef:    w.EmployeeRef,
		ContractRef:    w.ContractRef,
		Name:           w.Name,
		MobilePhone:    w.MobilePhone,
		Email:          w.Email,
		Badge:          w.Badge,
		ContractStatus: w.ContractStatus,
		Active:         w.Active,
		LastSync:       w.LastSync.Format(time.RFC3339),
	}
	if w.Wage != nil {
		s := w.Wage.String()
		dto.Wage = &s
	}
	if w.StartDate != nil {
		s := w.StartDate.Format(dateLayout)
		dto.StartDate = &s
	}
	if w.EndDate != nil {
		s := w.EndDate.Format(dateLayout)
		dto.EndDate = &s
	}
	return dto
}

func toBatchDTO(b payroll.Batch) BatchDTO {
	return BatchDTO{
		ID:        string(b.ID),
		Name:      b.Name,
		FarmID:    string(b.FarmID),
		StartDate: b.StartDate.Format(dateLayout),
		EndDate:   b.EndDate.Format(dateLayout),
		ISOYear:   b.ISOYear,
		ISOWeek:   b.ISOWeek,
		Status:    string(b.Status),
		ErrorMsg:  b.ErrorMsg,
	}
}

func toLineDTO(l payroll.Line) LineDTO {
	return LineDTO{
		ID:         string(l.ID),
		BatchID:    string(l.BatchID),
		WorkerID:   string(l.WorkerID),
		ActivityID: string(l.ActivityID),
		Date:       l.Date.Format(dateLayout),
		Quantity:   l.Quantity,
		ISOYear:    l.ISOYear,
		ISOWeek:    l.ISOWeek,

		TotalCost:         l.Figures.TotalCost,
		SalarySurplus:     l.Figures.SalarySurplus,
		MobilizationBonus: l.Figures.MobilizationBonus,
		ExtraHoursValue:   l.Figures.ExtraHoursValue,
		ExtraHoursQty:     l.Figures.ExtraHoursQty,
		ThirteenthBonus:   l.Figures.ThirteenthBonus,
		FourteenthBonus:   l.Figures.FourteenthBonus,
		IntegralBonus:     l.Figures.IntegralBonus,
	}
}

func toSettingsDTO(s payroll.Settings) SettingsDTO {
	return SettingsDTO{
		MobilizationPct:     s.MobilizationPct,
		ExtraHoursPct:       s.ExtraHoursPct,
		ExtraHourMultiplier: s.ExtraHourMultiplier,
		BasicMonthlyWage:    s.BasicMonthlyWage,
		DailyLineLimit:      s.DailyLineLimit,
	}
}
