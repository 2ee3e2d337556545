package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"mailwave/internal/abtest"
	"mailwave/internal/api"
	_ "mailwave/internal/api/docs"
	"mailwave/internal/audience"
	"mailwave/internal/config"
	"mailwave/internal/constants"
	"mailwave/internal/dispatch"
	"mailwave/internal/logger"
	"mailwave/internal/personalize"
	"mailwave/internal/scheduler"
	"mailwave/internal/segment"
	"mailwave/internal/tracking"
	"mailwave/internal/transport"
	"mailwave/pkg/bootstrap"
	"mailwave/pkg/circuitbreaker"
	"mailwave/pkg/distlock"
	"mailwave/pkg/metrics"
	"mailwave/pkg/middleware"
	"mailwave/pkg/ratelimit"
	"mailwave/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	stores         *bootstrap.Stores
	tracerProvider *tracing.TracerProvider
	server         *http.Server
	scheduler      *scheduler.Scheduler
	autoSync       *audience.AutoSyncer
	limiter        *ratelimit.Store
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

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.InitProducer(ctx); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	metrics.RegisterDispatchMetrics()

	if err := a.initComponents(ctx); err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	stores, err := a.dbConnector.Connect(ctx, bootstrap.Optional{Redis: true, Postgres: true},
		constants.CollectionCampaigns, constants.CollectionABTests, constants.CollectionSegments,
		constants.CollectionContacts, constants.CollectionTracking, constants.CollectionProducts,
	)
	if err != nil {
		return err
	}
	a.stores = stores
	return nil
}

func (a *App) catalog(mongoDB *mongo.Database) personalize.ProductCatalog {
	var catalog personalize.ProductCatalog = personalize.NewMongoCatalog(mongoDB)
	if a.Config.CircuitBreaker.Enabled {
		catalog = personalize.NewBreakerCatalog(catalog, circuitbreaker.FromConfig("product-catalog", a.Config.CircuitBreaker))
	}
	if a.stores.Redis != nil {
		ttl := constants.DefaultProductCacheTTL
		if a.Config.Personalize.ProductCacheTTLSeconds > 0 {
			ttl = time.Duration(a.Config.Personalize.ProductCacheTTLSeconds) * time.Second
		}
		catalog = personalize.NewCachedCatalog(catalog, a.stores.Redis, ttl)
	}
	return catalog
}

func (a *App) initComponents(ctx context.Context) error {
	cfg := a.Config
	mongoDB := a.stores.DB

	contacts := audience.NewMongoContactStore(mongoDB)
	segments := audience.NewMongoSegmentStore(mongoDB)
	resolver := audience.NewResolver(contacts, segments, segment.NewCompiler(a.Logger), a.Logger)

	widget, err := personalize.NewWidget(a.catalog(mongoDB), cfg.Personalize.StoreURL, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create product widget: %w", err)
	}
	renderer := personalize.NewRenderer(personalize.Config{
		PixelBaseURL: cfg.Tracking.PixelBaseURL,
		ClickBaseURL: cfg.Tracking.ClickBaseURL,
	}, widget, a.Logger)

	campaigns := dispatch.NewMongoCampaignRepository(mongoDB)
	manager := tracking.NewManager(tracking.NewMongoRepository(mongoDB), campaigns, contacts, cfg.Tracking.TTL(), a.Logger)

	sender, err := transport.New(ctx, cfg.Transport, cfg.CircuitBreaker, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	var opts []dispatch.Option
	var auditor dispatch.Auditor
	var auditLog *dispatch.AuditLogger
	if a.stores.Postgres != nil {
		auditLog = dispatch.NewAuditLogger(a.stores.Postgres)
		auditor = auditLog
		opts = append(opts, dispatch.WithAuditor(auditLog))
	}
	if a.Producer != nil {
		opts = append(opts, dispatch.WithEvents(dispatch.NewCampaignEvents(a.Producer, cfg.Broker.Kafka.CampaignEventsTopic)))
	}

	pipeline := dispatch.NewPipeline(campaigns, resolver, renderer, manager, sender, cfg.Dispatch.FromEmail, a.Logger, opts...)
	campaignService := dispatch.NewService(campaigns, pipeline, manager)
	bulk := dispatch.NewBulkSender(manager, renderer, sender, cfg.Dispatch, a.Logger)

	tests := abtest.NewMongoRepository(mongoDB)
	allocator := abtest.NewAllocator(tests, resolver, pipeline, a.Logger)
	testService := abtest.NewService(tests, campaigns, auditor, a.Logger)

	var locker distlock.Locker
	if a.stores.Redis != nil {
		locker = distlock.NewRedisLocker(a.stores.Redis)
	}
	a.scheduler = scheduler.New(cfg.Scheduler, campaigns, campaignService, tests, allocator, locker, a.Logger)

	if cfg.Segments.AutoSyncEnabled {
		a.autoSync = audience.NewAutoSyncer(resolver, segments, a.Logger)
	}

	var apiOpts []api.Option
	if auditLog != nil {
		apiOpts = append(apiOpts, api.WithAudit(auditLog))
	}
	handler := api.NewHandler(resolver, campaignService, bulk, testService, a.Logger, apiOpts...)
	trigger := scheduler.NewHandler(a.scheduler, cfg.Scheduler.TriggerSecret, a.Logger)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.router(handler, trigger),
		ReadTimeout:  cfg.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: cfg.Server.WriteTimeoutSeconds * time.Second,
	}
	return nil
}

func (a *App) router(handler *api.Handler, trigger *scheduler.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName, "/health", "/metrics", "/swagger/"))
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger, "/health", "/metrics", "/swagger/"))

	router.GET("/health", a.HealthRegistry(a.stores).Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	trigger.RegisterRoutes(router)

	operator := router.Group("")
	if rl := a.Config.API.RateLimit; rl.Enabled {
		limits := ratelimit.FromConfig(rl)
		a.limiter = ratelimit.NewStore(limits)
		operator.Use(a.limiter.Middleware())
		a.Logger.Infow("Rate limiting enabled", "rps", limits.RPS, "burst", limits.Burst)
	}
	handler.RegisterRoutes(operator)

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

	if a.Config.Scheduler.Enabled {
		g.Go(func() error {
			return a.scheduler.Start(gCtx)
		})
	} else {
		a.Logger.InfowCtx(ctx, "Scheduler loop disabled, relying on the trigger endpoint")
	}

	if a.autoSync != nil {
		g.Go(func() error {
			return a.autoSync.Run(gCtx)
		})
	}

	if a.limiter != nil {
		g.Go(func() error {
			a.limiter.Run(gCtx)
			return nil
		})
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
