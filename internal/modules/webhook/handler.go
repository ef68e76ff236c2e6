package webhook

import (
	"net/http"
	"strings"

	"food-dispatch/internal/models"
	"food-dispatch/pkg/utils"

	"github.com/labstack/echo/v4"
)

// Handler receives status-change events from the database realtime channel.
type Handler struct {
	svc ServiceInterface
}

func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

// StatusToRestaurant handles POST /webhooks/status-to-restaurant.
func (h *Handler) StatusToRestaurant(c echo.Context) error {
	var event models.StatusChangeEvent
	if err := c.Bind(&event); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(event); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	token := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	if err := h.svc.HandleStatusChange(c.Request().Context(), token, event); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
