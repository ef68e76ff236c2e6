package utils

import (
	"errors"
	"net/http"

	"food-dispatch/internal/models"

	"github.com/labstack/echo/v4"
)

// RespondWithJSON writes a JSON response with the given status code.
func RespondWithJSON(c echo.Context, status int, payload interface{}) error {
	return c.JSON(status, payload)
}

// RespondWithError writes a uniform JSON error body.
func RespondWithError(c echo.Context, status int, message string) error {
	return c.JSON(status, models.ErrorResponse{Message: message})
}

// HandleServiceError maps service-layer sentinel errors to HTTP responses.
// Anything unrecognized is reported as a 500 without leaking details.
func HandleServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return RespondWithError(c, http.StatusNotFound, "Resource not found")
	case errors.Is(err, models.ErrConflict):
		return RespondWithError(c, http.StatusConflict, "Resource already exists")
	case errors.Is(err, models.ErrInvalidTransition):
		return RespondWithError(c, http.StatusConflict, "Status transition not allowed")
	case errors.Is(err, models.ErrAssignmentExpired):
		return RespondWithError(c, http.StatusConflict, "Assignment has expired")
	case errors.Is(err, models.ErrAssignmentNotPending):
		return RespondWithError(c, http.StatusConflict, "Assignment is no longer pending")
	case errors.Is(err, models.ErrSessionInactive):
		return RespondWithError(c, http.StatusConflict, "Navigation session is not active")
	case errors.Is(err, models.ErrOrderCannotBeCancelled):
		return RespondWithError(c, http.StatusConflict, "Order cannot be cancelled")
	case errors.Is(err, models.ErrInvalidCredentials):
		return RespondWithError(c, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, models.ErrForbidden):
		return RespondWithError(c, http.StatusForbidden, "Not authorized for this resource")
	default:
		c.Logger().Errorf("unhandled service error: %v", err)
		return RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}

// GetPageLimit reads pagination query parameters with sane defaults.
func GetPageLimit(c echo.Context) (page, limit int) {
	page = atoiDefault(c.QueryParam("page"), 1)
	limit = atoiDefault(c.QueryParam("limit"), 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return def
		}
		n = n*10 + int(r-'0')
	}
	return n
}
