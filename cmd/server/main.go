// Package main runs the campus events HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/campus-events/backend/config"
	"github.com/campus-events/backend/internal/auth"
	"github.com/campus-events/backend/internal/certificates"
	"github.com/campus-events/backend/internal/checkin"
	"github.com/campus-events/backend/internal/events"
	"github.com/campus-events/backend/internal/middleware"
	"github.com/campus-events/backend/internal/notify"
	"github.com/campus-events/backend/internal/qrcode"
	"github.com/campus-events/backend/internal/registrations"
	"github.com/campus-events/backend/pkg/database"
	"github.com/campus-events/backend/pkg/queue"
	"github.com/campus-events/backend/pkg/redis"
	"github.com/campus-events/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Events
	eventRepo := events.NewRepository(pool)
	eventHandler := events.NewHandler(eventRepo, logger)

	// Notifications (fire-and-forget side channel; delivery in cmd/worker)
	notifyRepo := notify.NewRepository(pool)
	dispatcher := notify.NewQueueDispatcher(jobQueue, notifyRepo, logger)
	notifyHandler := notify.NewHandler(notifyRepo, logger)

	// Registrations and approval workflow
	registrationRepo := registrations.NewRepository(pool)
	qrIssuer := qrcode.NewIssuer(registrationRepo, qrcode.PNGRenderer, cfg.QR.ImageSize, logger)
	workflow := registrations.NewWorkflow(registrationRepo, qrIssuer, eventRepo, dispatcher, logger)
	registrationHandler := registrations.NewHandler(registrationRepo, workflow, eventRepo, logger)
	qrHandler := qrcode.NewHandler(qrIssuer, logger)

	// Check-in
	scanner := checkin.NewScanner(registrationRepo, logger)
	checkinHandler := checkin.NewHandler(scanner, eventRepo, dispatcher, logger)

	// Certificates
	certRepo := certificates.NewRepository(pool)
	certIssuer := certificates.NewIssuer(certRepo, registrationRepo, eventRepo, dispatcher, logger)
	certHandler := certificates.NewHandler(certIssuer, certRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Public: event browsing and student signup
	rateLimit := middleware.RateLimit(rdb.Client, logger,
		cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSec)*time.Second)
	router.GET("/events", eventHandler.List)
	router.GET("/events/:id", eventHandler.GetByID)
	router.POST("/events/:id/register", rateLimit, registrationHandler.Signup)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Event administration
		api.POST("/events", middleware.RequireRole("admin"), eventHandler.Create)
		api.PATCH("/events/:id", middleware.RequireRole("admin"), eventHandler.Update)
		api.DELETE("/events/:id", middleware.RequireRole("admin"), eventHandler.Delete)

		// Registration lifecycle
		staff := middleware.RequireRole("admin", "staff")
		api.GET("/events/:id/registrations", staff, registrationHandler.ListByEvent)
		api.GET("/events/:id/stats", staff, registrationHandler.Stats)
		api.GET("/registrations/:id", staff, registrationHandler.GetByID)
		api.POST("/registrations/:id/approve", staff, registrationHandler.Approve)
		api.POST("/registrations/:id/reject", staff, registrationHandler.Reject)
		api.GET("/registrations/:id/qr", staff, qrHandler.Download)

		// Attendance
		api.POST("/checkin/scan", staff, checkinHandler.Scan)

		// Certificates
		api.POST("/registrations/:id/certificate", staff, certHandler.Generate)
		api.POST("/events/:id/certificates/bulk", staff, certHandler.BulkGenerate)
		api.GET("/events/:id/certificates", staff, certHandler.ListByEvent)

		// Notification audit trail
		api.GET("/events/:id/notifications", staff, notifyHandler.ListByEvent)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
