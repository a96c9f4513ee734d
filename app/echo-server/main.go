package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"evoloop/app/echo-server/router"
	"evoloop/business/allocator"
	"evoloop/business/assignment"
	"evoloop/business/lifecycle"
	siteService "evoloop/business/site"
	"evoloop/internal/middleware"
	psqlRepo "evoloop/internal/repository/postgres"
	redisRepo "evoloop/internal/repository/redis"
	"evoloop/internal/rest"
	"evoloop/pkg/config"
	"evoloop/pkg/database"
	redisdb "evoloop/pkg/database/redis"
	"evoloop/pkg/logger"
	"evoloop/pkg/metrics"
	"evoloop/pkg/utils"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment)
	logger.Info("Starting Evoloop allocator", "version", cfg.App.Version)

	utils.InitJWT(cfg.JWT.SecretKey)
	metrics.Init()

	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	logger.Info("Database connected successfully")

	redisClient, err := redisdb.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to redis", "error", err)
	}
	defer redisdb.CloseRedisClient(redisClient)

	// Init repo
	siteRepo := psqlRepo.NewSiteRepository(db)
	variantRepo := psqlRepo.NewVariantRepository(db)
	statsRepo := psqlRepo.NewStatisticsRepository(db)
	eventRepo := psqlRepo.NewEventRepository(db)
	assignmentRepo := redisRepo.NewAssignmentRepository(redisClient)

	// Init service
	sampler := allocator.NewSampler(time.Now().UnixNano())
	allocatorService := allocator.NewService(statsRepo, eventRepo, variantRepo, sampler, cfg.Allocator.ReportSamples)
	assignmentService := assignment.NewService(assignmentRepo, variantRepo, statsRepo, sampler, cfg.Allocator.AssignmentTTL)

	lifecycleCfg := lifecycle.DefaultConfig()
	lifecycleCfg.MinSampleSize = cfg.Allocator.MinSampleSize
	lifecycleCfg.KillThreshold = cfg.Allocator.KillThreshold
	lifecycleCfg.RequiredStreak = cfg.Allocator.RequiredStreak
	lifecycleCfg.SweepSamples = cfg.Allocator.SweepSamples
	lifecycleService := lifecycle.NewService(variantRepo, siteRepo, statsRepo, sampler, lifecycleCfg)

	sitesService := siteService.NewService(siteRepo, cfg.Allocator.DefaultApprovals)

	// Init handler
	assignHandler := rest.NewAssignHandler(assignmentService, sitesService)
	eventsHandler := rest.NewEventsHandler(allocatorService, sitesService)
	variantHandler := rest.NewVariantHandler(lifecycleService)
	siteHandler := rest.NewSiteHandler(sitesService, allocatorService, variantRepo)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// HTTP error handler
	e.HTTPErrorHandler = middleware.ErrorHandler

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Evoloop-Key"},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Setup routes
	api := e.Group("/api/v1")
	router.SetupPublicRoutes(api, assignHandler, eventsHandler)
	router.SetupSiteRoutes(api, siteHandler)
	router.SetupVariantRoutes(api, variantHandler)

	// Background retirement sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(cfg.Allocator.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				lifecycleService.SweepAll(sweepCtx)
			}
		}
	}()

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown server
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
