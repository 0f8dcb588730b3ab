// Package events publishes identity lifecycle events to Kafka. Emission is
// best-effort: a publish failure is logged and returned, but callers never
// roll back committed work because of it.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Emitter handles event emission for clover
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitEntityMerged emits an entity.merged event after a merge commits.
func (e *Emitter) EmitEntityMerged(ctx context.Context, tenantID string, kind models.EntityKind, result *models.MergeResult, actor string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityMerged")
	defer span.End()

	return e.publish(ctx, tenantID, EventTypeEntityMerged, EntityMergedPayload{
		EntityKind:  string(kind),
		SurvivorID:  result.SurvivorID,
		AbsorbedIDs: result.AbsorbedIDs,
		AuditID:     result.AuditID,
		PerformedBy: actor,
	})
}

// EmitDuplicatesDetected emits a duplicates.detected event for a scan run.
func (e *Emitter) EmitDuplicatesDetected(ctx context.Context, run *models.ScanRun) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDuplicatesDetected")
	defer span.End()

	return e.publish(ctx, run.TenantID, EventTypeDuplicatesDetected, DuplicatesDetectedPayload{
		RunID:              run.ID,
		CompaniesScanned:   run.CompaniesScanned,
		PeopleScanned:      run.PeopleScanned,
		PairsCompared:      run.PairsCompared,
		CandidatesFound:    run.CandidatesFound,
		CandidatesInserted: run.CandidatesInserted,
	})
}

// EmitAutoMergeCompleted emits an automerge.completed event for a policy run.
func (e *Emitter) EmitAutoMergeCompleted(ctx context.Context, run *models.AutoMergeRun) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAutoMergeCompleted")
	defer span.End()

	return e.publish(ctx, run.TenantID, EventTypeAutoMergeCompleted, AutoMergeCompletedPayload{
		RunID:    run.ID,
		Examined: run.Examined,
		Merged:   run.Merged,
		Skipped:  run.Skipped,
		Errored:  run.Errored,
		DryRun:   run.DryRun,
	})
}

func (e *Emitter) publish(ctx context.Context, tenantID string, eventType EventType, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to marshal %s payload", eventType)
		return err
	}

	envelope := Envelope{
		ID:            uuid.New().String(),
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		TenantID:      tenantID,
		OccurredAt:    time.Now().UTC(),
		Payload:       payloadJSON,
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to marshal %s envelope", eventType)
		return err
	}

	if err := e.producer.Publish(ctx, tenantID, value); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}
