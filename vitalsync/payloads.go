// Copyright 2026 Vitaltrack Authors
// SPDX-License-Identifier: Apache-2.0

package vitalsync

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Typed row payloads, one per synced table. SyncChange carries the payload as
// raw JSON on the wire, but it is decoded into the table's concrete struct at
// the protocol boundary (server push, client pull validation) so malformed or
// unknown data is rejected before it is stored anywhere.

// SyncMeta holds the replication columns shared by every synced row.
type SyncMeta struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	UpdatedAt int64  `json:"updated_at"`           // epoch millis, replication watermark
	DeletedAt *int64 `json:"deleted_at,omitempty"` // non-nil marks a soft delete
}

// RowPayload is implemented by every typed table payload.
type RowPayload interface {
	Table() string
	Meta() *SyncMeta

	// columns and args describe the table-specific columns for server-side
	// upserts, in matching order.
	columns() []string
	args() []any
}

// WeightLogPayload is one body-weight reading.
type WeightLogPayload struct {
	SyncMeta
	LoggedAt int64   `json:"logged_at"`
	WeightKg float64 `json:"weight_kg"`
	Note     string  `json:"note,omitempty"`
}

func (p *WeightLogPayload) Table() string     { return TableWeightLogs }
func (p *WeightLogPayload) Meta() *SyncMeta   { return &p.SyncMeta }
func (p *WeightLogPayload) columns() []string { return []string{"logged_at", "weight_kg", "note"} }
func (p *WeightLogPayload) args() []any       { return []any{p.LoggedAt, p.WeightKg, p.Note} }

// InjectionLogPayload is one administered medication injection.
type InjectionLogPayload struct {
	SyncMeta
	InjectedAt int64   `json:"injected_at"`
	Medication string  `json:"medication"`
	DoseMg     float64 `json:"dose_mg"`
	Site       string  `json:"injection_site,omitempty"`
	Note       string  `json:"note,omitempty"`
}

func (p *InjectionLogPayload) Table() string   { return TableInjectionLogs }
func (p *InjectionLogPayload) Meta() *SyncMeta { return &p.SyncMeta }
func (p *InjectionLogPayload) columns() []string {
	return []string{"injected_at", "medication", "dose_mg", "injection_site", "note"}
}
func (p *InjectionLogPayload) args() []any {
	return []any{p.InjectedAt, p.Medication, p.DoseMg, p.Site, p.Note}
}

// InventoryItemPayload is one vial or pen in the medication inventory.
type InventoryItemPayload struct {
	SyncMeta
	Medication  string  `json:"medication"`
	Form        string  `json:"form"` // vial or pen
	TotalMg     float64 `json:"total_mg"`
	RemainingMg float64 `json:"remaining_mg"`
	AcquiredAt  int64   `json:"acquired_at"`
	ExpiresAt   *int64  `json:"expires_at,omitempty"`
}

func (p *InventoryItemPayload) Table() string   { return TableInventoryItems }
func (p *InventoryItemPayload) Meta() *SyncMeta { return &p.SyncMeta }
func (p *InventoryItemPayload) columns() []string {
	return []string{"medication", "form", "total_mg", "remaining_mg", "acquired_at", "expires_at"}
}
func (p *InventoryItemPayload) args() []any {
	return []any{p.Medication, p.Form, p.TotalMg, p.RemainingMg, p.AcquiredAt, p.ExpiresAt}
}

// SchedulePayload is a titration schedule.
type SchedulePayload struct {
	SyncMeta
	Name       string `json:"name"`
	Medication string `json:"medication"`
	StartDate  string `json:"start_date"` // YYYY-MM-DD
	Active     bool   `json:"active"`
}

func (p *SchedulePayload) Table() string   { return TableSchedules }
func (p *SchedulePayload) Meta() *SyncMeta { return &p.SyncMeta }
func (p *SchedulePayload) columns() []string {
	return []string{"name", "medication", "start_date", "active"}
}
func (p *SchedulePayload) args() []any {
	return []any{p.Name, p.Medication, p.StartDate, p.Active}
}

// SchedulePhasePayload is one dose step within a titration schedule.
type SchedulePhasePayload struct {
	SyncMeta
	ScheduleID    string  `json:"schedule_id"`
	Position      int     `json:"position"`
	DoseMg        float64 `json:"dose_mg"`
	IntervalDays  int     `json:"interval_days"`
	DurationWeeks int     `json:"duration_weeks"`
}

func (p *SchedulePhasePayload) Table() string   { return TableSchedulePhases }
func (p *SchedulePhasePayload) Meta() *SyncMeta { return &p.SyncMeta }
func (p *SchedulePhasePayload) columns() []string {
	return []string{"schedule_id", "position", "dose_mg", "interval_days", "duration_weeks"}
}
func (p *SchedulePhasePayload) args() []any {
	return []any{p.ScheduleID, p.Position, p.DoseMg, p.IntervalDays, p.DurationWeeks}
}

// GoalPayload is a user goal such as a target weight.
type GoalPayload struct {
	SyncMeta
	Kind       string  `json:"kind"`
	TargetKg   float64 `json:"target_weight_kg"`
	TargetDate *string `json:"target_date,omitempty"` // YYYY-MM-DD
	Achieved   bool    `json:"achieved"`
}

func (p *GoalPayload) Table() string   { return TableGoals }
func (p *GoalPayload) Meta() *SyncMeta { return &p.SyncMeta }
func (p *GoalPayload) columns() []string {
	return []string{"kind", "target_weight_kg", "target_date", "achieved"}
}
func (p *GoalPayload) args() []any {
	return []any{p.Kind, p.TargetKg, p.TargetDate, p.Achieved}
}

// UserSettingsPayload is the per-user settings row.
type UserSettingsPayload struct {
	SyncMeta
	WeightUnit       string `json:"weight_unit"` // kg or lb
	Timezone         string `json:"timezone"`
	WeekStartsOn     int    `json:"week_starts_on"`
	RemindersEnabled bool   `json:"reminders_enabled"`
}

func (p *UserSettingsPayload) Table() string   { return TableUserSettings }
func (p *UserSettingsPayload) Meta() *SyncMeta { return &p.SyncMeta }
func (p *UserSettingsPayload) columns() []string {
	return []string{"weight_unit", "timezone", "week_starts_on", "reminders_enabled"}
}
func (p *UserSettingsPayload) args() []any {
	return []any{p.WeightUnit, p.Timezone, p.WeekStartsOn, p.RemindersEnabled}
}

// newPayload returns the empty payload struct for a table.
func newPayload(table string) (RowPayload, error) {
	switch table {
	case TableWeightLogs:
		return &WeightLogPayload{}, nil
	case TableInjectionLogs:
		return &InjectionLogPayload{}, nil
	case TableInventoryItems:
		return &InventoryItemPayload{}, nil
	case TableSchedules:
		return &SchedulePayload{}, nil
	case TableSchedulePhases:
		return &SchedulePhasePayload{}, nil
	case TableGoals:
		return &GoalPayload{}, nil
	case TableUserSettings:
		return &UserSettingsPayload{}, nil
	default:
		return nil, fmt.Errorf("unknown synced table %q", table)
	}
}

// DecodePayload decodes and validates a raw payload against the table's typed
// shape. This is the only place untyped JSON crosses into the system.
func DecodePayload(table string, raw json.RawMessage) (RowPayload, error) {
	p, err := newPayload(table)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty payload for table %q", table)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", table, err)
	}
	meta := p.Meta()
	if _, err := uuid.Parse(meta.ID); err != nil {
		return nil, fmt.Errorf("%s payload has invalid id %q: %w", table, meta.ID, err)
	}
	if meta.UserID == "" {
		return nil, fmt.Errorf("%s payload %s is missing user_id", table, meta.ID)
	}
	if meta.UpdatedAt <= 0 {
		return nil, fmt.Errorf("%s payload %s is missing updated_at", table, meta.ID)
	}
	return p, nil
}

// EncodePayload marshals a typed payload back to its wire form.
func EncodePayload(p RowPayload) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", p.Table(), err)
	}
	return data, nil
}
