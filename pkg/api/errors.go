package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/dembrane/agentic/pkg/models"
	"github.com/dembrane/agentic/pkg/runstore"
)

// mapStoreError maps runstore errors to HTTP responses.
func mapStoreError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, runstore.ErrNotFound):
		return c.JSON(http.StatusNotFound, &models.ErrorResponse{Detail: "run not found"})
	case errors.Is(err, runstore.ErrIllegalTransition):
		return c.JSON(http.StatusConflict, &models.ErrorResponse{Detail: err.Error()})
	case errors.Is(err, runstore.ErrConflict):
		return c.JSON(http.StatusConflict, &models.ErrorResponse{Detail: err.Error()})
	default:
		slog.Error("unexpected run store error", "error", err)
		return c.JSON(http.StatusInternalServerError, &models.ErrorResponse{Detail: "internal server error"})
	}
}

func badRequest(c *echo.Context, detail string) error {
	return c.JSON(http.StatusBadRequest, &models.ErrorResponse{Detail: detail})
}

// internalError logs err and returns a generic 500 JSON body, used for
// failures that don't originate from runstore (e.g. the coordinator).
func internalError(c *echo.Context, context string, err error) error {
	slog.Error(context, "error", err)
	return c.JSON(http.StatusInternalServerError, &models.ErrorResponse{Detail: "internal server error"})
}
