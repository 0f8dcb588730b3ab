// Package match serves the interactive match endpoints: score an inbound
// record against existing entities and return the routed action.
package match

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/routes"
)

var validate = validator.New()

// Handler handles match requests
type Handler struct {
	service *matching.Service
}

// NewHandler creates a new match handler
func NewHandler(service *matching.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the match routes
func (h *Handler) RegisterRoutes(g *echo.Group) {
	matches := g.Group("/matches")
	matches.POST("/companies", h.MatchCompany)
	matches.POST("/people", h.MatchPerson)
}

// MatchCompany handles POST /matches/companies
func (h *Handler) MatchCompany(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	record, err := routes.BindRequest[models.CompanyRecord](c)
	if err != nil {
		return err
	}
	if err := validate.Struct(record); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	routed, err := h.service.FindCompanyMatches(ctx, tenantID, record)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, routed)
}

// MatchPerson handles POST /matches/people
func (h *Handler) MatchPerson(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := routes.RequireTenantID(c)
	if err != nil {
		return err
	}

	record, err := routes.BindRequest[models.PersonRecord](c)
	if err != nil {
		return err
	}
	if err := validate.Struct(record); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	routed, err := h.service.FindPersonMatches(ctx, tenantID, record)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, routed)
}
