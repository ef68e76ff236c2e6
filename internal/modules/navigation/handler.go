package navigation

import (
	"net/http"
	"time"

	"food-dispatch/internal/models"
	"food-dispatch/pkg/utils"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// upgrader is used to upgrade HTTP connections to WebSocket connections.
var upgrader = websocket.Upgrader{}

// Handler handles HTTP requests for navigation sessions.
type Handler struct {
	svc ServiceInterface
}

// NewHandler creates a new navigation handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

// ComputeRoute handles POST /navigation/routes.
func (h *Handler) ComputeRoute(c echo.Context) error {
	_, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}
	if role != models.RoleDriver {
		return utils.RespondWithError(c, http.StatusForbidden, "Driver account required")
	}

	var req models.ComputeRouteRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	route, err := h.svc.ComputeRoute(c.Request().Context(), req.AssignmentID, req.OriginLat, req.OriginLng, req.DestLat, req.DestLng)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusCreated, route)
}

// StartNavigation handles POST /navigation/sessions.
func (h *Handler) StartNavigation(c echo.Context) error {
	driverID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}
	if role != models.RoleDriver {
		return utils.RespondWithError(c, http.StatusForbidden, "Driver account required")
	}

	var req models.StartNavigationRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	session, err := h.svc.StartNavigation(c.Request().Context(), req.RouteID, driverID, req.AssignmentID)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusCreated, session)
}

// UpdateLocation handles POST /navigation/sessions/:sessionId/location.
func (h *Handler) UpdateLocation(c echo.Context) error {
	driverID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var req models.LocationUpdateRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	update, err := h.svc.UpdateLocation(c.Request().Context(), c.Param("sessionId"), driverID, req.Latitude, req.Longitude)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, update)
}

// StopNavigation handles DELETE /navigation/sessions/:sessionId.
func (h *Handler) StopNavigation(c echo.Context) error {
	driverID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	if err := h.svc.StopNavigation(c.Request().Context(), c.Param("sessionId"), driverID); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// StreamProgress upgrades the connection to a WebSocket and pushes the
// assignment's live session state until the session ends or the client
// disconnects.
func (h *Handler) StreamProgress(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	assignmentID := c.Param("assignmentId")
	if err := h.svc.AuthorizeStream(c.Request().Context(), assignmentID, userID); err != nil {
		return utils.HandleServiceError(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := c.Request().Context()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			session, err := h.svc.ActiveSessionForAssignment(ctx, assignmentID)
			if err != nil {
				// No active session left; tell the client and end the stream.
				_ = conn.WriteJSON(map[string]bool{"active": false})
				return nil
			}
			if err := conn.WriteJSON(session); err != nil {
				return nil
			}
		}
	}
}
