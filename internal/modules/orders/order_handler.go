package orders

import (
	"net/http"

	"food-dispatch/internal/models"
	"food-dispatch/pkg/utils"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for orders.
type Handler struct {
	svc ServiceInterface
}

// NewHandler creates a new order handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateOrder(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var req models.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	order, err := h.svc.CreateOrder(c.Request().Context(), userID, req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusCreated, order)
}

func (h *Handler) ListMyOrders(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	page, limit := utils.GetPageLimit(c)

	var (
		orders []*models.Order
		total  int
	)
	if role == models.RoleRestaurant {
		orders, total, err = h.svc.ListRestaurantOrders(c.Request().Context(), userID, page, limit)
	} else {
		orders, total, err = h.svc.ListCustomerOrders(c.Request().Context(), userID, page, limit)
	}
	if err != nil {
		return utils.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve orders")
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]interface{}{"orders": orders, "total": total})
}

func (h *Handler) GetOrderDetails(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	order, err := h.svc.GetOrderDetails(c.Request().Context(), c.Param("orderId"), userID, role)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, order)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var req models.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	order, err := h.svc.UpdateStatus(c.Request().Context(), c.Param("orderId"), userID, role, req.Status)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, order)
}

func (h *Handler) CancelOrder(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	if err := h.svc.CancelOrder(c.Request().Context(), c.Param("orderId"), userID); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
