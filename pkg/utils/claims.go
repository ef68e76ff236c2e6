package utils

import (
	"net/http"

	"food-dispatch/internal/models"

	"github.com/labstack/echo/v4"
)

// ExtractUserInfo pulls the authenticated user's ID and role out of the
// request context. The JWT middleware puts them there on success, so a miss
// means the route was wired without auth.
func ExtractUserInfo(c echo.Context) (userID string, role models.Role, err error) {
	id, ok := c.Get("userID").(string)
	if !ok || id == "" {
		// Return a real error rather than writing the response here:
		// c.JSON returns nil on a successful write, which would let the
		// caller's err check pass and the handler keep going.
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "Missing authentication")
	}
	r, _ := c.Get("userRole").(models.Role)
	return id, r, nil
}
