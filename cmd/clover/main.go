package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/cache"
	"github.com/Ramsey-B/clover/internal/repositories/lookup"
	"github.com/Ramsey-B/clover/internal/repositories/product"
	"github.com/Ramsey-B/clover/internal/repositories/runhistory"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/erp"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/redis"
	healthroutes "github.com/Ramsey-B/clover/pkg/routes/health"
	runsroutes "github.com/Ramsey-B/clover/pkg/routes/runs"
	"github.com/Ramsey-B/clover/pkg/scheduler"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

// version is stamped at build time via -ldflags
var version = "dev"

// component adapts a start/stop pair to the startup dependency contract
type component struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (c *component) GetName() string     { return c.name }
func (c *component) DependsOn() []string { return c.dependsOn }
func (c *component) Start(ctx context.Context) error {
	if c.start == nil {
		return nil
	}
	return c.start(ctx)
}
func (c *component) Stop(ctx context.Context) error {
	if c.stop == nil {
		return nil
	}
	return c.stop(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	if cfg.OTLPEnabled {
		shutdown, err := setupTracing(ctx, cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to set up tracing")
			os.Exit(1)
		}
		defer shutdown(ctx)
	}

	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, databaseDSN(cfg))
	if err != nil {
		logger.WithError(err).Error("Failed to connect to catalog store")
		os.Exit(1)
	}
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	db := database.NewDatabaseInstance(sqlxDB, logger)
	defer db.Close()

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	defer redisClient.Close()
	locker := redis.NewLocker(redisClient, "clover:lock:")

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer, err = kafka.NewProducer(kafka.ProducerConfig{
			Brokers: strings.Split(cfg.KafkaBrokers, ","),
			Topic:   cfg.KafkaRunEventTopic,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to create Kafka producer")
			os.Exit(1)
		}
		defer producer.Close()
	}

	erpHTTP := httpclient.NewClient(erpHTTPConfig(cfg), logger)
	tokens := erp.NewTokenManager(erpHTTP, cfg.ERPAuthURL, cfg.ERPUsername, cfg.ERPPassword, logger)
	erpClient := erp.NewClient(erpHTTP, tokens, logger)
	fetcher := erp.NewFetcher(erpClient, logger)

	products := product.NewRepository(db, logger, cfg.CatalogTablePrefix)
	lookups := lookup.NewRepository(db, logger, cfg.CatalogTablePrefix)
	cacheRepo := cache.NewRepository(db, logger, cfg.CatalogTablePrefix, cfg.CatalogCachePrefix)
	runs := runhistory.NewRepository(db, logger)

	applier := reconcile.NewApplier(db, products, lookups, logger, cfg.ApplyChunkSize, cfg.ApplyConcurrency)
	runner := reconcile.NewRunner(
		reconcile.RunnerConfig{
			PageSize: cfg.CatalogPageSize,
			ItemsFeed: erp.Feed{
				URL:        cfg.ERPItemsURL,
				RecordsKey: cfg.ERPItemsKey,
				Branch:     cfg.ERPBranch,
				Warehouse:  cfg.ERPWarehouse,
				Company:    cfg.ERPCompany,
			},
			PricesFeed: erp.Feed{
				URL:        cfg.ERPPricesURL,
				RecordsKey: cfg.ERPPricesKey,
				Branch:     cfg.ERPBranch,
				Warehouse:  cfg.ERPWarehouse,
				Company:    cfg.ERPCompany,
			},
		},
		db, tokens, fetcher, products, applier, cacheRepo, runs, producer, logger,
	)

	checker := healthroutes.NewChecker(db, redisClient, version)
	e := newServer(cfg, logger, checker, runner, runs, locker)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	boot.AddDependency(&component{
		name: "migrations",
		start: func(ctx context.Context) error {
			driver, err := postgres.WithInstance(sqlxDB.DB, &postgres.Config{})
			if err != nil {
				return err
			}
			migrations := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
			})
			return migrations.Migrate(cfg.DatabaseName, driver)
		},
	})

	boot.AddDependency(&component{
		name:      "http-server",
		dependsOn: []string{"migrations"},
		start: func(ctx context.Context) error {
			go func() {
				if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
					logger.WithError(err).Info("HTTP server stopped")
				}
			}()
			checker.SetReady(true)
			return nil
		},
		stop: func(ctx context.Context) error {
			checker.SetReady(false)
			return e.Shutdown(ctx)
		},
	})

	if cfg.SchedulerEnabled {
		sched := scheduler.NewScheduler(runner, locker, scheduler.Config{
			Interval: cfg.SyncInterval,
			LockTTL:  cfg.RunLockTTL,
		}, logger)
		boot.AddDependency(&component{
			name:      "scheduler",
			dependsOn: []string{"migrations"},
			start:     sched.Start,
			stop:      sched.Stop,
		})
	}

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown did not complete cleanly")
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func newServer(
	cfg *config.Config,
	logger ectologger.Logger,
	checker *healthroutes.Checker,
	runner *reconcile.Runner,
	runs runhistory.RunRepository,
	locker *redis.Locker,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.AllowOrigins}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	checker.RegisterRoutes(e)

	runsGroup := e.Group("/api/v1/runs")
	if cfg.AuthEnabled {
		runsGroup.Use(middleware.Authentication(logger, cfg.AuthIssuerURL, cfg.AuthClientID))
	}
	runsroutes.NewHandler(runner, runs, locker, cfg.RunLockTTL, logger).Register(runsGroup)

	return e
}

func databaseDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
}

func erpHTTPConfig(cfg *config.Config) httpclient.Config {
	hc := httpclient.DefaultConfig()
	if cfg.ERPRequestTimeout > 0 {
		hc.Timeout = cfg.ERPRequestTimeout
	}
	return hc
}

func setupTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.AppName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracing.SetTracer(tp.Tracer(cfg.AppName))

	return tp.Shutdown, nil
}
