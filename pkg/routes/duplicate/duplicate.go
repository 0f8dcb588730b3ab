// Package duplicate serves the batch duplicate surface: ad-hoc scans, the
// persisted candidate review queue, auto-merge runs, and backlog stats.
package duplicate

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/automerge"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/routes"
)

// CandidateStore is the persisted-candidate surface the review endpoints need
type CandidateStore interface {
	Get(ctx context.Context, tenantID string, id string) (*models.DuplicateCandidate, error)
	ListPending(ctx context.Context, tenantID string, kind models.EntityKind, page, pageSize int) ([]models.DuplicateCandidate, int, error)
	Resolve(ctx context.Context, tenantID string, id string, status models.DuplicateCandidateStatus, resolvedBy *string) error
}

// Merger performs the merge behind candidate acceptance
type Merger interface {
	MergeCompanies(ctx context.Context, tenantID string, primaryID string, duplicateIDs []string, actor string) (*models.MergeResult, error)
	MergePeople(ctx context.Context, tenantID string, primaryID string, duplicateIDs []string, actor string) (*models.MergeResult, error)
}

// Handler handles duplicate detection and review requests
type Handler struct {
	scanner       *dedupe.Scanner
	policy        *automerge.Policy
	candidates    CandidateStore
	merger        Merger
	defaultPolicy automerge.Config
}

// NewHandler creates a new duplicate handler
func NewHandler(scanner *dedupe.Scanner, policy *automerge.Policy, candidates CandidateStore, merger Merger, defaultPolicy automerge.Config) *Handler {
	return &Handler{
		scanner:       scanner,
		policy:        policy,
		candidates:    candidates,
		merger:        merger,
		defaultPolicy: defaultPolicy,
	}
}

// RegisterRoutes registers the duplicate routes
func (h *Handler) RegisterRoutes(g *echo.Group) {
	duplicates := g.Group("/duplicates")
	duplicates.GET("/companies", h.FindCompanies)
	duplicates.GET("/people", h.FindPeople)
	duplicates.POST("/scan", h.Scan)
	duplicates.POST("/automerge", h.AutoMerge)
	duplicates.POST("/cleanup", h.Cleanup)
	duplicates.GET("/stats", h.Stats)
	duplicates.GET("/candidates", h.ListCandidates)
	duplicates.POST("/candidates/:id/accept", h.AcceptCandidate)
	duplicates.POST("/candidates/:id/dismiss", h.DismissCandidate)
}

// FindCompanies handles GET /duplicates/companies. Read-only; nothing is
// persisted.
func (h *Handler) FindCompanies(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	minConfidence, err := parseConfidence(c.QueryParam("min_confidence"))
	if err != nil {
		return err
	}

	pairs, err := h.scanner.FindDuplicateCompanies(ctx, tenantID, minConfidence)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"pairs": pairs, "count": len(pairs)})
}

// FindPeople handles GET /duplicates/people
func (h *Handler) FindPeople(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	minConfidence, err := parseConfidence(c.QueryParam("min_confidence"))
	if err != nil {
		return err
	}

	pairs, err := h.scanner.FindDuplicatePeople(ctx, tenantID, minConfidence)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"pairs": pairs, "count": len(pairs)})
}

// Scan handles POST /duplicates/scan
func (h *Handler) Scan(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	minConfidence, err := parseConfidence(c.QueryParam("min_confidence"))
	if err != nil {
		return err
	}

	run, err := h.scanner.RunDetection(ctx, tenantID, minConfidence)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// AutoMergeRequest overrides the auto-merge policy for one run
type AutoMergeRequest struct {
	DryRun        *bool    `json:"dry_run,omitempty"`
	MinConfidence *float64 `json:"min_confidence,omitempty"`
	MaxPerRun     *int     `json:"max_per_run,omitempty"`
	Kinds         []string `json:"kinds,omitempty"`
}

// AutoMerge handles POST /duplicates/automerge
func (h *Handler) AutoMerge(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	req, err := routes.BindRequest[AutoMergeRequest](c)
	if err != nil {
		return err
	}

	cfg := h.defaultPolicy
	if req.DryRun != nil {
		cfg.DryRun = *req.DryRun
	}
	if req.MinConfidence != nil {
		// Overrides may tighten the policy, never loosen it
		if *req.MinConfidence < h.defaultPolicy.MinConfidence {
			return httperror.NewHTTPError(http.StatusBadRequest, "min_confidence may not be lowered below the configured policy")
		}
		cfg.MinConfidence = *req.MinConfidence
	}
	if req.MaxPerRun != nil {
		if *req.MaxPerRun < 1 || *req.MaxPerRun > h.defaultPolicy.MaxPerRun {
			return httperror.NewHTTPError(http.StatusBadRequest, "max_per_run out of range")
		}
		cfg.MaxPerRun = *req.MaxPerRun
	}
	for _, kind := range req.Kinds {
		k := models.EntityKind(kind)
		if !k.Valid() {
			return httperror.NewHTTPError(http.StatusBadRequest, "unknown entity kind: "+kind)
		}
		cfg.Kinds = append(cfg.Kinds, k)
	}

	actor := appctx.GetUserID(ctx)
	if actor == "" {
		actor = "api"
	}

	run, err := h.policy.Run(ctx, tenantID, actor, cfg)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}

// Cleanup handles POST /duplicates/cleanup
func (h *Handler) Cleanup(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	result, err := h.scanner.CleanupStale(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Stats handles GET /duplicates/stats
func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	stats, err := h.scanner.Stats(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}

// ListCandidates handles GET /duplicates/candidates
func (h *Handler) ListCandidates(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	kind := models.EntityKind(c.QueryParam("kind"))
	if kind != "" && !kind.Valid() {
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown entity kind: "+string(kind))
	}

	page := parseIntDefault(c.QueryParam("page"), 1)
	pageSize := parseIntDefault(c.QueryParam("page_size"), 50)
	if pageSize > 200 {
		pageSize = 200
	}

	candidates, total, err := h.candidates.ListPending(ctx, tenantID, kind, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"candidates": candidates,
		"total":      total,
		"page":       page,
		"page_size":  pageSize,
	})
}

// AcceptRequest names the surviving record when accepting a candidate
type AcceptRequest struct {
	PrimaryID string `json:"primary_id" validate:"required,uuid"`
}

// AcceptCandidate handles POST /duplicates/candidates/:id/accept. The caller
// picks the survivor; the other entity in the pair is absorbed.
func (h *Handler) AcceptCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	id := c.Param("id")
	candidate, err := h.candidates.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if candidate.Status != models.DuplicateCandidateStatusPending {
		return httperror.NewHTTPError(http.StatusConflict, "candidate is already resolved")
	}

	req, err := routes.BindRequest[AcceptRequest](c)
	if err != nil {
		return err
	}

	var absorbedID string
	switch req.PrimaryID {
	case candidate.EntityAID:
		absorbedID = candidate.EntityBID
	case candidate.EntityBID:
		absorbedID = candidate.EntityAID
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "primary_id must be one of the candidate's entities")
	}

	actor := appctx.GetUserID(ctx)

	var result *models.MergeResult
	switch candidate.EntityKind {
	case models.EntityKindCompany:
		result, err = h.merger.MergeCompanies(ctx, tenantID, req.PrimaryID, []string{absorbedID}, actor)
	default:
		result, err = h.merger.MergePeople(ctx, tenantID, req.PrimaryID, []string{absorbedID}, actor)
	}
	if err != nil {
		return err
	}

	// The merge engine resolves every candidate touching the merged pair
	// post-commit, this one included.
	return c.JSON(http.StatusOK, result)
}

// DismissCandidate handles POST /duplicates/candidates/:id/dismiss. Dismissed
// pairs are remembered so later scans do not re-queue them.
func (h *Handler) DismissCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	id := c.Param("id")
	actor := appctx.GetUserID(ctx)
	var resolvedBy *string
	if actor != "" {
		resolvedBy = &actor
	}

	if err := h.candidates.Resolve(ctx, tenantID, id, models.DuplicateCandidateStatusDismissed, resolvedBy); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func parseConfidence(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "min_confidence must be between 0 and 1")
	}
	return v, nil
}

func parseIntDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
