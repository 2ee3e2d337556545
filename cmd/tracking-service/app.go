package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"mailwave/internal/audience"
	"mailwave/internal/config"
	"mailwave/internal/constants"
	"mailwave/internal/dispatch"
	"mailwave/internal/logger"
	"mailwave/internal/tracking"
	"mailwave/pkg/bootstrap"
	"mailwave/pkg/metrics"
	"mailwave/pkg/middleware"
	"mailwave/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	stores         *bootstrap.Stores
	tracerProvider *tracing.TracerProvider
	manager        *tracking.Manager
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	stores, err := a.dbConnector.Connect(ctx, bootstrap.Optional{}, constants.CollectionTracking)
	if err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	a.stores = stores
	mongoDB := stores.DB

	if err := a.InitProducer(ctx); err != nil {
		return fmt.Errorf("failed to initialize producer: %w", err)
	}
	if err := a.InitConsumer(serviceName); err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}

	metrics.RegisterTrackingMetrics()

	a.manager = tracking.NewManager(
		tracking.NewMongoRepository(mongoDB),
		dispatch.NewMongoCampaignRepository(mongoDB),
		audience.NewMongoContactStore(mongoDB),
		a.Config.Tracking.TTL(),
		a.Logger,
	)
	if a.Config.Tracking.WebhookSecret == "" {
		a.Logger.WarnwCtx(ctx, "Transport webhook secret not set, webhook accepts unauthenticated events")
	}
	handler := tracking.NewHandler(
		a.manager,
		a.Producer,
		a.Config.Broker.Kafka.DeliveryEventsTopic,
		a.Logger,
		tracking.WithWebhookSecret(a.Config.Tracking.WebhookSecret),
	)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router(handler),
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds * time.Second,
	}
	return nil
}

func (a *App) router(handler *tracking.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName, "/health", "/metrics"))
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger, "/track/", "/health", "/metrics"))

	router.GET("/health", a.HealthRegistry(a.stores).Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(router)
	return router
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.Consumer != nil {
		topic := a.Config.Broker.Kafka.DeliveryEventsTopic
		if topic == "" {
			topic = constants.TopicDeliveryEvents
		}
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "Consuming delivery events", "topic", topic)
			err := a.Consumer.Consume(gCtx, topic, tracking.DeliveryHandler(a.manager))
			if err == context.Canceled {
				return nil
			}
			return err
		})
	} else {
		a.Logger.InfowCtx(ctx, "No broker configured, webhook events are applied inline")
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		if a.stores != nil {
			errs = append(errs, a.stores.Close(ctx)...)
		}
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
