package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"food-dispatch/internal/api"
	"food-dispatch/internal/config"
	"food-dispatch/internal/modules/handoff"
	"food-dispatch/internal/modules/navigation"
	"food-dispatch/internal/modules/orders"
	"food-dispatch/internal/modules/users"
	"food-dispatch/internal/modules/webhook"
	"food-dispatch/pkg/notify"
	"food-dispatch/pkg/routing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	// 1. --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	e := echo.New()

	// 2. --- Middleware ---
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"http://localhost:5173", cfg.ClientOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// 3. --- Database Connection ---
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to parse database configuration: %v", err)
	}

	dbPool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
	if err != nil {
		log.Fatalf("Unable to create connection pool: %v\n", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping database: %v\n", err)
	}
	e.Logger.Info("Successfully connected to the database!")

	// 4. --- Notification sinks ---
	// Email and Kafka are both optional: an unconfigured sink simply is not
	// added, and with none configured status changes go to the no-op sink.
	var sinks notify.Multi
	if cfg.SESRegion != "" && cfg.SESFromEmail != "" {
		ses, err := notify.NewSESNotifier(context.Background(), cfg.SESRegion, cfg.SESFromEmail)
		if err != nil {
			log.Fatalf("Unable to initialize SES notifier: %v", err)
		}
		sinks = append(sinks, ses)
	}
	var kafka *notify.KafkaPublisher
	if cfg.KafkaBrokers != "" {
		kafka, err = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaEventTopic)
		if err != nil {
			log.Fatalf("Unable to initialize Kafka publisher: %v", err)
		}
		defer func() {
			if err := kafka.Close(); err != nil {
				log.Printf("Kafka publisher close: %v", err)
			}
		}()
		sinks = append(sinks, kafka)
	}
	var notifier notify.Notifier = sinks
	if len(sinks) == 0 {
		notifier = notify.Noop{}
	}

	// 5. --- Dependency Injection (Wiring everything up) ---
	userRepo := users.NewRepository(dbPool)
	userService := users.NewService(userRepo, cfg.JWTSecret)
	userHandler := users.NewHandler(userService)

	orderRepo := orders.NewRepository(dbPool)
	orderService := orders.NewService(orderRepo, notifier)
	orderHandler := orders.NewHandler(orderService)

	assignmentWindow := time.Duration(cfg.AssignmentWindowMinutes) * time.Minute
	handoffRepo := handoff.NewRepository(dbPool)
	handoffService := handoff.NewService(handoffRepo, orderRepo, notifier, assignmentWindow)
	handoffHandler := handoff.NewHandler(handoffService)

	routeProvider := routing.NewGoogleProvider(cfg.GoogleMapsKey)
	navigationRepo := navigation.NewRepository(dbPool)
	navigationOpts := navigation.DefaultOptions()
	if cfg.StepAdvanceMeters > 0 {
		navigationOpts.StepAdvanceMeters = cfg.StepAdvanceMeters
	}
	if cfg.OffRouteCorridorMeters > 0 {
		navigationOpts.OffRouteCorridorMeters = cfg.OffRouteCorridorMeters
	}
	if cfg.MaxReroutes > 0 {
		navigationOpts.MaxReroutes = cfg.MaxReroutes
	}
	if cfg.LocationPollInterval > 0 {
		navigationOpts.PollInterval = cfg.LocationPollInterval
	}
	navigationService := navigation.NewService(navigationRepo, routeProvider, navigationOpts)
	defer navigationService.Close()
	navigationHandler := navigation.NewHandler(navigationService)

	webhookRepo := webhook.NewRepository(dbPool)
	webhookService := webhook.NewService(webhookRepo, cfg.JWTSecret, cfg.WebhookForwardURL)
	webhookHandler := webhook.NewHandler(webhookService)

	// 6. --- Initialize Router ---
	api.SetupRoutes(e,
		userHandler,
		orderHandler,
		handoffHandler,
		navigationHandler,
		webhookHandler,
		cfg.JWTSecret,
	)

	// 7. --- Start Server with graceful shutdown logic ---
	go func() {
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server an error occurred:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal("Server forced to shutdown:", err)
	}
	log.Println("Server exiting")
}
