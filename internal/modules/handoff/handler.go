package handoff

import (
	"net/http"

	"food-dispatch/internal/models"
	"food-dispatch/pkg/utils"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for assignment handoffs.
type Handler struct {
	svc ServiceInterface
}

// NewHandler creates a new handoff handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

// AcceptAssignment handles a restaurant accepting an order.
// PUT /restaurants/assignments/:assignmentId/accept?orderId=...
func (h *Handler) AcceptAssignment(c echo.Context) error {
	restaurantID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}
	if role != models.RoleRestaurant {
		return utils.RespondWithError(c, http.StatusForbidden, "Restaurant account required")
	}

	orderID := c.QueryParam("orderId")
	if orderID == "" {
		return utils.RespondWithError(c, http.StatusBadRequest, "orderId is required")
	}

	if err := h.svc.AcceptRestaurantAssignment(c.Request().Context(), orderID, restaurantID, c.Param("assignmentId")); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RejectAssignment handles a restaurant declining an order.
func (h *Handler) RejectAssignment(c echo.Context) error {
	restaurantID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}
	if role != models.RoleRestaurant {
		return utils.RespondWithError(c, http.StatusForbidden, "Restaurant account required")
	}

	orderID := c.QueryParam("orderId")
	if orderID == "" {
		return utils.RespondWithError(c, http.StatusBadRequest, "orderId is required")
	}

	var req models.RejectAssignmentRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}

	if err := h.svc.RejectRestaurantAssignment(c.Request().Context(), orderID, restaurantID, c.Param("assignmentId"), req.Reason); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RespondToAssignment handles a driver accepting or rejecting a delivery.
func (h *Handler) RespondToAssignment(c echo.Context) error {
	driverID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}
	if role != models.RoleDriver {
		return utils.RespondWithError(c, http.StatusForbidden, "Driver account required")
	}

	var req models.AssignmentResponseRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	if err := h.svc.HandleAssignmentResponse(c.Request().Context(), c.Param("assignmentId"), driverID, req.Response, req.Reason); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ManualAssign handles an operator dispatching a specific driver.
func (h *Handler) ManualAssign(c echo.Context) error {
	var req models.ManualAssignRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	result, err := h.svc.ManuallyAssignDelivery(c.Request().Context(), req.OrderID, req.RestaurantID, req.DriverID, req.WindowMinutes)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, result)
}

// AutoAssign handles dispatching the best-ranked driver for an order.
func (h *Handler) AutoAssign(c echo.Context) error {
	orderID := c.Param("orderId")
	restaurantID := c.QueryParam("restaurantId")
	if restaurantID == "" {
		return utils.RespondWithError(c, http.StatusBadRequest, "restaurantId is required")
	}

	result, err := h.svc.AutoAssignDelivery(c.Request().Context(), orderID, restaurantID)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, result)
}

// SweepExpired handles an on-demand run of the expiry sweep.
func (h *Handler) SweepExpired(c echo.Context) error {
	count, err := h.svc.ProcessExpiredAssignments(c.Request().Context())
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]int{"expired": count})
}
