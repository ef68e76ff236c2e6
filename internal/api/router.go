package api

import (
	"net/http"

	"food-dispatch/internal/api/middleware"
	"food-dispatch/internal/models"
	"food-dispatch/internal/modules/handoff"
	"food-dispatch/internal/modules/navigation"
	"food-dispatch/internal/modules/orders"
	"food-dispatch/internal/modules/users"
	"food-dispatch/internal/modules/webhook"

	"github.com/labstack/echo/v4"
)

// SetupRoutes sets up all the API endpoints for the application.
func SetupRoutes(
	e *echo.Echo,
	userHandler *users.Handler,
	orderHandler *orders.Handler,
	handoffHandler *handoff.Handler,
	navigationHandler *navigation.Handler,
	webhookHandler *webhook.Handler,
	jwtSecret string,
) {
	authMiddleware := middleware.JWTMAuth(jwtSecret)
	restaurantRequired := middleware.RoleRequired(models.RoleRestaurant)
	driverRequired := middleware.RoleRequired(models.RoleDriver)

	// --- Public Routes ---
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "Food dispatch API"})
	})

	authGroup := e.Group("/auth")
	{
		authGroup.POST("/signup", userHandler.Signup)
		authGroup.POST("/login", userHandler.Login)
	}

	// Webhook callers carry their own bearer token; the service verifies it
	// against the order's parties, so the route stays outside the JWT group.
	e.POST("/webhooks/status-to-restaurant", webhookHandler.StatusToRestaurant)

	// --- Profile ---
	profileGroup := e.Group("/profile", authMiddleware)
	{
		profileGroup.GET("", userHandler.GetMyProfile)
	}

	// --- Orders ---
	orderGroup := e.Group("/orders", authMiddleware)
	{
		orderGroup.POST("", orderHandler.CreateOrder)
		orderGroup.GET("", orderHandler.ListMyOrders)
		orderGroup.GET("/:orderId", orderHandler.GetOrderDetails)
		orderGroup.PUT("/:orderId/status", orderHandler.UpdateStatus)
		orderGroup.PUT("/:orderId/cancel", orderHandler.CancelOrder)
	}

	// --- Restaurant handoff ---
	restaurantGroup := e.Group("/restaurants/assignments", authMiddleware, restaurantRequired)
	{
		restaurantGroup.PUT("/:assignmentId/accept", handoffHandler.AcceptAssignment)
		restaurantGroup.PUT("/:assignmentId/reject", handoffHandler.RejectAssignment)
	}

	// --- Driver handoff & availability ---
	driverGroup := e.Group("/drivers", authMiddleware, driverRequired)
	{
		driverGroup.PUT("/me/availability", userHandler.SetAvailability)
		driverGroup.PUT("/assignments/:assignmentId/respond", handoffHandler.RespondToAssignment)
	}

	// --- Dispatch ---
	dispatchGroup := e.Group("/dispatch", authMiddleware)
	{
		dispatchGroup.POST("/assignments", handoffHandler.ManualAssign)
		dispatchGroup.POST("/orders/:orderId/auto-assign", handoffHandler.AutoAssign)
		dispatchGroup.POST("/sweep", handoffHandler.SweepExpired)
	}

	// --- Navigation ---
	navigationGroup := e.Group("/navigation", authMiddleware)
	{
		navigationGroup.POST("/routes", navigationHandler.ComputeRoute)
		navigationGroup.POST("/sessions", navigationHandler.StartNavigation)
		navigationGroup.POST("/sessions/:sessionId/location", navigationHandler.UpdateLocation)
		navigationGroup.DELETE("/sessions/:sessionId", navigationHandler.StopNavigation)
	}

	// --- Live tracking ---
	e.GET("/ws/assignments/:assignmentId/track", navigationHandler.StreamProgress, authMiddleware)
}
