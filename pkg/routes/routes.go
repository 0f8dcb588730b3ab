// Package routes holds the shared helpers for the HTTP handlers.
package routes

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/clover/pkg/context"
)

// RequireTenantID extracts the tenant ID the middleware put on the request
// context. Every tenant-scoped endpoint refuses requests without one.
func RequireTenantID(c echo.Context) (string, error) {
	tenantID := appctx.GetTenantID(c.Request().Context())
	if tenantID == "" {
		return "", httperror.NewHTTPError(http.StatusUnauthorized, "missing X-Tenant-ID header")
	}
	return tenantID, nil
}

// BindRequest binds the request body into v with a 400 on malformed input.
func BindRequest[T any](c echo.Context) (T, error) {
	var v T
	if err := c.Bind(&v); err != nil {
		return v, httperror.WrapError(http.StatusBadRequest, err)
	}
	return v, nil
}
