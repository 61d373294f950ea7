/*
Package seed provides JSON to Go master-data conversion.

PURPOSE:
  Converts a JSON dataset into farms, labor types, activities and tariffs.
  This enables master-data bootstrap without code changes - operations can
  define the catalogue in JSON and point the server at it on first boot.

WHY JSON?
  - Non-developers can maintain the catalogue
  - Version control for farm and tariff definitions
  - One file stands up a complete demo or staging environment

JSON SCHEMA:
  {
    "settings": {
      "mobilization_pct": "10",
      "extra_hours_pct": "20",
      "extra_hour_multiplier": "1.5",
      "basic_monthly_wage": "450",
      "daily_line_limit": 3
    },
    "farms": [
      {"name": "North", "code": "N1", "description": "North plantation"}
    ],
    "labor_types": [
      {"name": "Field work", "calculates_integral": true}
    ],
    "activities": [
      {"name": "Pruning", "labor_type": "Field work", "group": "Maintenance", "uom": "plant"}
    ],
    "tariffs": [
      {"activity": "Pruning", "farm": "North", "cost_per_unit": "2.5"}
    ]
  }

KEY BEHAVIORS:
  - Activities reference labor types by name, tariffs reference activities
    and farms by name; a dangling name fails the whole load
  - Applying is idempotent by name: entities that already exist are left
    untouched, so the file can stay configured across restarts
  - Settings are only written when the block is present

USAGE:
  ds, err := seed.Load("catalogue.json")
  err = ds.Apply(ctx, store)
*/
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fieldpay/payroll-engine/payroll"
)

// =============================================================================
// DATASET
// =============================================================================

// Dataset is the parsed seed file.
type Dataset struct {
	Settings   *SettingsDef   `json:"settings"`
	Farms      []FarmDef      `json:"farms"`
	LaborTypes []LaborTypeDef `json:"labor_types"`
	Activities []ActivityDef  `json:"activities"`
	Tariffs    []TariffDef    `json:"tariffs"`
}

type SettingsDef struct {
	MobilizationPct     decimal.Decimal `json:"mobilization_pct"`
	ExtraHoursPct       decimal.Decimal `json:"extra_hours_pct"`
	ExtraHourMultiplier decimal.Decimal `json:"extra_hour_multiplier"`
	BasicMonthlyWage    decimal.Decimal `json:"basic_monthly_wage"`
	DailyLineLimit      int             `json:"daily_line_limit"`
}

type FarmDef struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

type LaborTypeDef struct {
	Name               string `json:"name"`
	CalculatesIntegral bool   `json:"calculates_integral"`
}

type ActivityDef struct {
	Name      string `json:"name"`
	LaborType string `json:"labor_type"`
	Group     string `json:"group"`
	Uom       string `json:"uom"`
}

type TariffDef struct {
	Name        string          `json:"name"`
	Activity    string          `json:"activity"`
	Farm        string          `json:"farm"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
}

// Load reads and validates a seed file.
func Load(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := ds.validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (ds *Dataset) validate() error {
	laborTypes := make(map[string]bool, len(ds.LaborTypes))
	for _, lt := range ds.LaborTypes {
		if lt.Name == "" {
			return fmt.Errorf("labor type with empty name")
		}
		laborTypes[lt.Name] = true
	}
	farms := make(map[string]bool, len(ds.Farms))
	for _, f := range ds.Farms {
		if f.Name == "" {
			return fmt.Errorf("farm with empty name")
		}
		farms[f.Name] = true
	}
	activities := make(map[string]bool, len(ds.Activities))
	for _, a := range ds.Activities {
		if a.Name == "" {
			return fmt.Errorf("activity with empty name")
		}
		if !laborTypes[a.LaborType] {
			return fmt.Errorf("activity %q references unknown labor type %q", a.Name, a.LaborType)
		}
		activities[a.Name] = true
	}
	for _, t := range ds.Tariffs {
		if !activities[t.Activity] {
			return fmt.Errorf("tariff references unknown activity %q", t.Activity)
		}
		if !farms[t.Farm] {
			return fmt.Errorf("tariff references unknown farm %q", t.Farm)
		}
		if t.CostPerUnit.IsNegative() {
			return fmt.Errorf("tariff for %q on %q has negative cost", t.Activity, t.Farm)
		}
	}
	if ds.Settings != nil && ds.Settings.DailyLineLimit < 0 {
		return fmt.Errorf("daily_line_limit cannot be negative")
	}
	return nil
}

// =============================================================================
// APPLY
// =============================================================================

// Apply writes the dataset to the store, skipping entities that already
// exist under the same name. Tariff existence is keyed by (activity, farm).
func (ds *Dataset) Apply(ctx context.Context, s payroll.Store) error {
	if ds.Settings != nil {
		if err := s.SaveSettings(ctx, payroll.Settings{
			MobilizationPct:     ds.Settings.MobilizationPct,
			ExtraHoursPct:       ds.Settings.ExtraHoursPct,
			ExtraHourMultiplier: ds.Settings.ExtraHourMultiplier,
			BasicMonthlyWage:    ds.Settings.BasicMonthlyWage,
			DailyLineLimit:      ds.Settings.DailyLineLimit,
		}); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
	}

	farms, err := ds.applyFarms(ctx, s)
	if err != nil {
		return err
	}
	activities, err := ds.applyActivities(ctx, s)
	if err != nil {
		return err
	}
	return ds.applyTariffs(ctx, s, farms, activities)
}

func (ds *Dataset) applyFarms(ctx context.Context, s payroll.Store) (map[string]payroll.FarmID, error) {
	existing, err := s.ListFarms(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]payroll.FarmID, len(existing))
	for _, f := range existing {
		byName[f.Name] = f.ID
	}

	for _, def := range ds.Farms {
		if _, ok := byName[def.Name]; ok {
			continue
		}
		farm := &payroll.Farm{
			ID:          payroll.FarmID(uuid.NewString()),
			Name:        def.Name,
			Code:        def.Code,
			Description: def.Description,
		}
		if err := s.CreateFarm(ctx, farm); err != nil {
			return nil, fmt.Errorf("seed farm %q: %w", def.Name, err)
		}
		byName[def.Name] = farm.ID
		log.Printf("[Seed] Created farm %q", def.Name)
	}
	return byName, nil
}

func (ds *Dataset) applyActivities(ctx context.Context, s payroll.Store) (map[string]payroll.ActivityID, error) {
	existing, err := s.ListActivities(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]payroll.ActivityID, len(existing))
	for _, a := range existing {
		byName[a.Name] = a.ID
	}

	existingLT, err := s.ListLaborTypes(ctx)
	if err != nil {
		return nil, err
	}
	laborTypes := make(map[string]payroll.LaborTypeID, len(existingLT)+len(ds.LaborTypes))
	for _, lt := range existingLT {
		laborTypes[lt.Name] = lt.ID
	}
	for _, def := range ds.LaborTypes {
		if _, ok := laborTypes[def.Name]; ok {
			continue
		}
		lt := &payroll.LaborType{
			ID:                 payroll.LaborTypeID(uuid.NewString()),
			Name:               def.Name,
			CalculatesIntegral: def.CalculatesIntegral,
		}
		if err := s.CreateLaborType(ctx, lt); err != nil {
			return nil, fmt.Errorf("seed labor type %q: %w", def.Name, err)
		}
		laborTypes[def.Name] = lt.ID
	}

	for _, def := range ds.Activities {
		if _, ok := byName[def.Name]; ok {
			continue
		}
		activity := &payroll.Activity{
			ID:          payroll.ActivityID(uuid.NewString()),
			Name:        def.Name,
			LaborTypeID: laborTypes[def.LaborType],
			Group:       def.Group,
			Uom:         def.Uom,
		}
		if err := s.CreateActivity(ctx, activity); err != nil {
			return nil, fmt.Errorf("seed activity %q: %w", def.Name, err)
		}
		byName[def.Name] = activity.ID
		log.Printf("[Seed] Created activity %q", def.Name)
	}
	return byName, nil
}

func (ds *Dataset) applyTariffs(ctx context.Context, s payroll.Store, farms map[string]payroll.FarmID, activities map[string]payroll.ActivityID) error {
	existing, err := s.ListTariffs(ctx)
	if err != nil {
		return err
	}
	type pair struct {
		activity payroll.ActivityID
		farm     payroll.FarmID
	}
	present := make(map[pair]bool, len(existing))
	for _, t := range existing {
		present[pair{t.ActivityID, t.FarmID}] = true
	}

	for _, def := range ds.Tariffs {
		key := pair{activities[def.Activity], farms[def.Farm]}
		if present[key] {
			continue
		}
		tariff := &payroll.Tariff{
			ID:          payroll.TariffID(uuid.NewString()),
			Name:        def.Name,
			ActivityID:  key.activity,
			FarmID:      key.farm,
			CostPerUnit: def.CostPerUnit,
		}
		if err := s.CreateTariff(ctx, tariff); err != nil {
			return fmt.Errorf("seed tariff %q/%q: %w", def.Activity, def.Farm, err)
		}
		present[key] = true
		log.Printf("[Seed] Created tariff %q on %q", def.Activity, def.Farm)
	}
	return nil
}
