package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// MergeAudit is the append-only record of one merge operation.
type MergeAudit struct {
	ID          string                   `json:"id" db:"id"`
	TenantID    string                   `json:"tenant_id" db:"tenant_id"`
	EntityKind  EntityKind               `json:"entity_kind" db:"entity_kind"`
	PrimaryID   string                   `json:"primary_id" db:"primary_id"`
	AbsorbedIDs database.JSONB[[]string] `json:"absorbed_ids" db:"absorbed_ids"`
	PerformedBy *string                  `json:"performed_by,omitempty" db:"performed_by"`
	PerformedAt time.Time                `json:"performed_at" db:"performed_at"`
}

// MergeResult is returned after a successful merge.
type MergeResult struct {
	SurvivorID  string   `json:"survivor_id"`
	AbsorbedIDs []string `json:"absorbed_ids"`
	AuditID     string   `json:"audit_id"`
}

// MergeRequest asks for duplicates to be merged into a primary record.
type MergeRequest struct {
	PrimaryID    string   `json:"primary_id" validate:"required,uuid"`
	DuplicateIDs []string `json:"duplicate_ids" validate:"required,min=1,dive,uuid"`
}

// AutoMergeRun records one pass of the auto-merge policy over a tenant.
type AutoMergeRun struct {
	ID          string     `json:"id" db:"id"`
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	Examined    int        `json:"examined" db:"examined"`
	Merged      int        `json:"merged" db:"merged"`
	Skipped     int        `json:"skipped" db:"skipped"`
	Errored     int        `json:"errored" db:"errored"`
	DryRun      bool       `json:"dry_run" db:"dry_run"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}
