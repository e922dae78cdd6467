package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/eduschedule-api/api/swagger"
	"github.com/noah-isme/eduschedule-api/internal/feed"
	"github.com/noah-isme/eduschedule-api/internal/handler"
	"github.com/noah-isme/eduschedule-api/internal/middleware"
	"github.com/noah-isme/eduschedule-api/internal/models"
	"github.com/noah-isme/eduschedule-api/internal/repository"
	"github.com/noah-isme/eduschedule-api/internal/service"
	"github.com/noah-isme/eduschedule-api/pkg/cache"
	"github.com/noah-isme/eduschedule-api/pkg/config"
	"github.com/noah-isme/eduschedule-api/pkg/database"
	"github.com/noah-isme/eduschedule-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/eduschedule-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/eduschedule-api/pkg/middleware/requestid"
)

// @title EduSchedule API
// @version 1.0.0
// @description School calendar events with role based visibility, conflict checks and weekly recurrence
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()

	var hub *feed.Hub
	var publisher interface {
		Publish(context.Context, models.EventChange) error
	}
	if cfg.Feed.Enabled {
		hub = feed.NewHub(feed.HubConfig{
			QueueSize:        cfg.Feed.QueueSize,
			SubscriberBuffer: cfg.Feed.SubscriberBuffer,
		}, metrics, logr)
		if redisClient != nil {
			relay := feed.NewRedisRelay(redisClient, cfg.Feed.Channel, logr)
			hub.SetForwarder(relay)
			go func() {
				if err := relay.Run(ctx, hub); err != nil {
					logr.Error("event feed relay stopped", zap.Error(err))
				}
			}()
		}
		hub.Start(ctx)
		publisher = hub
	}

	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, logr),
		metrics,
		cfg.Events.CacheTTL,
		logr,
		cfg.Events.CacheEnabled && redisClient != nil,
	)

	eventSvc := service.NewEventService(
		repository.NewEventRepository(db),
		cacheSvc,
		publisher,
		metrics,
		validator.New(),
		logr,
		service.EventServiceConfig{
			CacheTTL:        cfg.Events.CacheTTL,
			DefaultPageSize: cfg.Events.DefaultPageSize,
			MaxPageSize:     cfg.Events.MaxPageSize,
			MaxOccurrences:  cfg.Schedule.MaxOccurrences,
			Location:        cfg.Schedule.Location(),
		},
	)
	viewerSvc := service.NewViewerService(repository.NewProfileRepository(db), repository.NewMembershipRepository(db), logr)
	verifier := service.NewTokenVerifier(cfg.JWT)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(verifier), middleware.Viewer(viewerSvc))
	registerRoutes(api, eventSvc, hub, cfg.Feed.Heartbeat, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if hub != nil {
		// Open streams would otherwise hold Shutdown until its deadline.
		hub.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func registerRoutes(api *gin.RouterGroup, events *service.EventService, hub *feed.Hub, heartbeat time.Duration, logr *zap.Logger) {
	eventHandler := handler.NewEventHandler(events)
	broadcastHandler := handler.NewBroadcastHandler(events)
	viewerHandler := handler.NewViewerHandler()

	api.GET("/me/viewer", viewerHandler.Me)

	eventsGroup := api.Group("/events")
	eventsGroup.GET("", eventHandler.List)
	eventsGroup.POST("", eventHandler.Create)
	eventsGroup.POST("/conflicts", eventHandler.CheckConflict)
	if hub != nil {
		eventsGroup.GET("/stream", handler.NewStreamHandler(hub, heartbeat, logr).Stream)
	}
	eventsGroup.GET("/:id", eventHandler.Get)
	eventsGroup.PUT("/:id", eventHandler.Update)
	eventsGroup.DELETE("/:id", eventHandler.Delete)

	api.POST("/broadcasts", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), broadcastHandler.Create)
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}
