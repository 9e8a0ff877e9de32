package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a reconciliation run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunTrigger records what started a run.
type RunTrigger string

const (
	RunTriggerAPI       RunTrigger = "api"
	RunTriggerScheduler RunTrigger = "scheduler"
)

// SyncRun is one record in the execution-history ledger. A run is created as
// running and moved to a terminal status exactly once; terminal records are
// never modified again.
type SyncRun struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Status      RunStatus  `json:"status" db:"status"`
	Trigger     RunTrigger `json:"trigger" db:"trigger"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// Aggregate counts; Total = Updated + Failed + Unchanged
	Total     int `json:"total" db:"total"`
	Updated   int `json:"updated" db:"updated"`
	Failed    int `json:"failed" db:"failed"`
	Unchanged int `json:"unchanged" db:"unchanged"`

	// Status-transition counts
	Published int `json:"published" db:"published"`
	Drafted   int `json:"drafted" db:"drafted"`

	DurationMS   int64           `json:"duration_ms" db:"duration_ms"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RunSummary is the terminal outcome reported by the engine when a run ends.
type RunSummary struct {
	Total     int `json:"total"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
	Unchanged int `json:"unchanged"`
	Published int `json:"published"`
	Drafted   int `json:"drafted"`

	// PhaseTimings maps phase name to elapsed milliseconds
	PhaseTimings map[string]int64 `json:"phase_timings,omitempty"`
}
