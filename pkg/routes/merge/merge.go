// Package merge serves the manual merge endpoints and merge history lookups.
package merge

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/routes"
)

var validate = validator.New()

// AuditReader lists the merge history touching an entity
type AuditReader interface {
	ListByEntity(ctx context.Context, tenantID, entityID string) ([]models.MergeAudit, error)
}

// Handler handles merge requests
type Handler struct {
	engine *merging.Engine
	audits AuditReader
}

// NewHandler creates a new merge handler
func NewHandler(engine *merging.Engine, audits AuditReader) *Handler {
	return &Handler{engine: engine, audits: audits}
}

// RegisterRoutes registers the merge routes
func (h *Handler) RegisterRoutes(g *echo.Group) {
	merges := g.Group("/merges")
	merges.POST("/companies", h.MergeCompanies)
	merges.POST("/people", h.MergePeople)
	merges.GET("/history/:entityId", h.History)
}

// History handles GET /merges/history/:entityId, returning every merge that
// the entity survived or was absorbed by.
func (h *Handler) History(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	entityID := c.Param("entityId")
	if entityID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "missing entityId")
	}

	audits, err := h.audits.ListByEntity(ctx, tenantID, entityID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, audits)
}

// MergeCompanies handles POST /merges/companies
func (h *Handler) MergeCompanies(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	req, err := routes.BindRequest[models.MergeRequest](c)
	if err != nil {
		return err
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.engine.MergeCompanies(ctx, tenantID, req.PrimaryID, req.DuplicateIDs, appctx.GetUserID(ctx))
	if err != nil {
		return err
	}

	metrics.MergesTotal.WithLabelValues(string(models.EntityKindCompany), "api").Inc()
	return c.JSON(http.StatusOK, result)
}

// MergePeople handles POST /merges/people
func (h *Handler) MergePeople(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	req, err := routes.BindRequest[models.MergeRequest](c)
	if err != nil {
		return err
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.engine.MergePeople(ctx, tenantID, req.PrimaryID, req.DuplicateIDs, appctx.GetUserID(ctx))
	if err != nil {
		return err
	}

	metrics.MergesTotal.WithLabelValues(string(models.EntityKindPerson), "api").Inc()
	return c.JSON(http.StatusOK, result)
}
