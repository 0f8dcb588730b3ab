package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Projector mirrors canonical entities and merge outcomes into the graph so
// downstream tooling can walk ownership and merge lineage. Projection runs
// after the Postgres transaction commits and never rolls it back; failures
// are the caller's to log.
type Projector struct {
	client *Client
	logger ectologger.Logger
}

// NewProjector creates a new graph projector
func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{
		client: client,
		logger: logger,
	}
}

// UpsertCompany creates or updates a company node.
func (p *Projector) UpsertCompany(ctx context.Context, company *models.Company) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.UpsertCompany")
	defer span.End()

	props := map[string]any{
		"id":              company.ID,
		"tenant_id":       company.TenantID,
		"name":            company.Name,
		"normalized_name": company.NormalizedName,
		"data_quality":    string(company.DataQuality),
	}
	if company.Website != nil {
		props["website"] = *company.Website
	}

	return p.upsertNode(ctx, "Company", props)
}

// UpsertPerson creates or updates a person node.
func (p *Projector) UpsertPerson(ctx context.Context, person *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.UpsertPerson")
	defer span.End()

	props := map[string]any{
		"id":              person.ID,
		"tenant_id":       person.TenantID,
		"first_name":      person.FirstName,
		"last_name":       person.LastName,
		"normalized_name": person.NormalizedName,
		"data_quality":    string(person.DataQuality),
	}
	if person.Email != nil {
		props["email"] = *person.Email
	}

	err := p.upsertNode(ctx, "Person", props)
	if err != nil {
		return err
	}

	if person.CompanyID != nil {
		return p.linkEmployment(ctx, person.TenantID, person.ID, *person.CompanyID)
	}
	return nil
}

// ProjectMerge marks absorbed nodes as tombstones and draws MERGED_INTO edges
// from each absorbed node to the survivor.
func (p *Projector) ProjectMerge(ctx context.Context, tenantID string, kind models.EntityKind, result *models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.ProjectMerge")
	defer span.End()

	label := labelForKind(kind)
	cypher := fmt.Sprintf(`
		MATCH (survivor:%s {id: $survivor_id, tenant_id: $tenant_id})
		UNWIND $absorbed_ids AS absorbed_id
		MATCH (absorbed:%s {id: absorbed_id, tenant_id: $tenant_id})
		SET absorbed.merged_into = $survivor_id
		MERGE (absorbed)-[:MERGED_INTO]->(survivor)
	`, label, label)

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, map[string]any{
			"survivor_id":  result.SurvivorID,
			"absorbed_ids": result.AbsorbedIDs,
			"tenant_id":    tenantID,
		})
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"survivor_id": result.SurvivorID,
			"entity_kind": kind,
		}).Error("Failed to project merge into graph")
		return err
	}

	return nil
}

func (p *Projector) upsertNode(ctx context.Context, label string, props map[string]any) error {
	cypher := fmt.Sprintf(`
		MERGE (e:%s {id: $id, tenant_id: $tenant_id})
		SET e += $props
		RETURN e
	`, label)

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, map[string]any{
			"id":        props["id"],
			"tenant_id": props["tenant_id"],
			"props":     props,
		})
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"label": label}).Error("Failed to upsert graph node")
		return err
	}

	return nil
}

func (p *Projector) linkEmployment(ctx context.Context, tenantID, personID, companyID string) error {
	cypher := `
		MATCH (person:Person {id: $person_id, tenant_id: $tenant_id})
		MATCH (company:Company {id: $company_id, tenant_id: $tenant_id})
		MERGE (person)-[:WORKS_AT]->(company)
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, map[string]any{
			"person_id":  personID,
			"company_id": companyID,
			"tenant_id":  tenantID,
		})
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to link employment in graph")
		return err
	}

	return nil
}

func labelForKind(kind models.EntityKind) string {
	if kind == models.EntityKindPerson {
		return "Person"
	}
	return "Company"
}
