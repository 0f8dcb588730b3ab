package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// DuplicateCandidateStatus is the review state of a detected duplicate pair.
type DuplicateCandidateStatus string

const (
	// DuplicateCandidateStatusPending awaits review or auto-merge
	DuplicateCandidateStatusPending DuplicateCandidateStatus = "pending"
	// DuplicateCandidateStatusMerged was resolved by merging the pair
	DuplicateCandidateStatusMerged DuplicateCandidateStatus = "merged"
	// DuplicateCandidateStatusDismissed was reviewed and rejected
	DuplicateCandidateStatusDismissed DuplicateCandidateStatus = "dismissed"
	// DuplicateCandidateStatusSkipped could not be processed (entity no longer live, dry run)
	DuplicateCandidateStatusSkipped DuplicateCandidateStatus = "skipped"
	// DuplicateCandidateStatusExpired aged out without review
	DuplicateCandidateStatusExpired DuplicateCandidateStatus = "expired"
)

// DuplicateCandidate is a persisted suspicion that two live entities are the
// same real-world thing. The pair is unordered; (A,B) and (B,A) are the same
// candidate.
type DuplicateCandidate struct {
	ID         string                   `json:"id" db:"id"`
	TenantID   string                   `json:"tenant_id" db:"tenant_id"`
	EntityKind EntityKind               `json:"entity_kind" db:"entity_kind"`
	EntityAID  string                   `json:"entity_a_id" db:"entity_a_id"`
	EntityBID  string                   `json:"entity_b_id" db:"entity_b_id"`
	Confidence float64                  `json:"confidence" db:"confidence"`
	Reasons    database.JSONB[[]string] `json:"reasons" db:"reasons"`
	Status     DuplicateCandidateStatus `json:"status" db:"status"`
	CreatedAt  time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at" db:"updated_at"`
	ResolvedAt *time.Time               `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy *string                  `json:"resolved_by,omitempty" db:"resolved_by"`
}

// DuplicatePair is a scored pair produced by a duplicate scan, before any
// persistence decision.
type DuplicatePair struct {
	EntityKind EntityKind `json:"entity_kind"`
	EntityAID  string     `json:"entity_a_id"`
	EntityBID  string     `json:"entity_b_id"`
	Confidence float64    `json:"confidence"`
	Reasons    []string   `json:"reasons"`
}

// ScanRun records one duplicate detection pass over a tenant.
type ScanRun struct {
	ID                 string     `json:"id" db:"id"`
	TenantID           string     `json:"tenant_id" db:"tenant_id"`
	CompaniesScanned   int        `json:"companies_scanned" db:"companies_scanned"`
	PeopleScanned      int        `json:"people_scanned" db:"people_scanned"`
	PairsCompared      int        `json:"pairs_compared" db:"pairs_compared"`
	CandidatesFound    int        `json:"candidates_found" db:"candidates_found"`
	CandidatesInserted int        `json:"candidates_inserted" db:"candidates_inserted"`
	Status             string     `json:"status" db:"status"`
	Error              *string    `json:"error,omitempty" db:"error"`
	StartedAt          time.Time  `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

const (
	ScanRunStatusRunning   = "running"
	ScanRunStatusCompleted = "completed"
	ScanRunStatusFailed    = "failed"
)

// DuplicateStats summarizes the candidate backlog for a tenant.
type DuplicateStats struct {
	Total                int            `json:"total"`
	ByStatus             map[string]int `json:"by_status"`
	ByEntityKind         map[string]int `json:"by_entity_kind"`
	ScoreBuckets         map[string]int `json:"score_buckets"`
	PendingAvgConfidence float64        `json:"pending_avg_confidence"`
	OldestPendingAt      *time.Time     `json:"oldest_pending_at,omitempty"`
}
