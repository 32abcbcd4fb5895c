package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/vine/config"
	"github.com/Ramsey-B/vine/internal/handlers"
	"github.com/Ramsey-B/vine/pkg/activity"
	"github.com/Ramsey-B/vine/pkg/auth"
	"github.com/Ramsey-B/vine/pkg/connections"
	"github.com/Ramsey-B/vine/pkg/database"
	"github.com/Ramsey-B/vine/pkg/health"
	"github.com/Ramsey-B/vine/pkg/kafka"
	"github.com/Ramsey-B/vine/pkg/middleware"
	"github.com/Ramsey-B/vine/pkg/providers"
	"github.com/Ramsey-B/vine/pkg/publisher"
	vineredis "github.com/Ramsey-B/vine/pkg/redis"
	"github.com/Ramsey-B/vine/pkg/repositories"
	"github.com/Ramsey-B/vine/pkg/syncs"
	"github.com/Ramsey-B/vine/pkg/tracing"
	"github.com/Ramsey-B/vine/pkg/tracing/exporters"
	"github.com/Ramsey-B/vine/pkg/webhooks"
	"github.com/Ramsey-B/vine/pkg/workflow"
)

// version is injected by the build system
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg)

	shutdownTracing, err := initTracing(context.Background(), cfg)
	if err != nil {
		logger.WithError(err).Error("failed to initialize tracing")
		os.Exit(1)
	}

	sqlxDB, err := connectDatabase(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	db := database.NewDatabaseInstance(sqlxDB, logger)

	if err := runMigrations(cfg, sqlxDB, logger); err != nil {
		logger.WithError(err).Error("failed to run database migrations")
		os.Exit(1)
	}

	redisClient, err := vineredis.NewClient(vineredis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		// The publisher falls back to local-only delivery without Redis.
		logger.WithError(err).Warn("redis unavailable, cross-process publisher relay disabled")
		redisClient = nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      strings.Split(cfg.KafkaBrokers, ","),
		Topic:        cfg.KafkaWebhookTopic,
		BatchTimeout: 100 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		MaxAttempts:  3,
		RequiredAcks: -1,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to create kafka producer")
		os.Exit(1)
	}

	registry := providers.NewRegistry()
	if err := registry.LoadDir(cfg.ProviderSpecDir); err != nil {
		logger.WithError(err).WithFields(map[string]any{
			"dir": cfg.ProviderSpecDir,
		}).Error("failed to load provider specifications")
		os.Exit(1)
	}

	tokenRepo := repositories.NewConnectTokenRepository(db, logger)
	integrationRepo := repositories.NewIntegrationRepository(db, logger)
	collectionRepo := repositories.NewCollectionRepository(db, logger)
	actionRepo := repositories.NewActionRepository(db, logger)
	connectionRepo := repositories.NewConnectionRepository(db, logger)
	syncRepo := repositories.NewSyncRepository(db, logger)
	runRepo := repositories.NewSyncRunRepository(db, logger)
	scheduleRepo := repositories.NewSyncScheduleRepository(db, logger)
	activityRepo := repositories.NewActivityRepository(db, logger)

	activitySvc := activity.NewService(activityRepo, logger)
	emitter := webhooks.NewEmitter(producer, cfg.KafkaWebhookTopic, logger)

	// The durable engine binding is deployment-specific; the in-memory client
	// covers single-process deployments and local development.
	engine := workflow.NewInMemoryClient()

	scheduler := syncs.NewScheduler(syncRepo, runRepo, scheduleRepo, collectionRepo, engine, activitySvc, logger)
	connectionSvc := connections.NewService(connectionRepo, collectionRepo, emitter, scheduler, activitySvc, logger)
	flowSvc := auth.NewService(
		tokenRepo,
		integrationRepo,
		collectionRepo,
		actionRepo,
		registry,
		connectionSvc,
		activitySvc,
		logger,
		auth.Config{
			CallbackURL:       cfg.ServerURL + "/oauth/callback",
			CredentialFormURL: cfg.ServerURL + "/connect",
		},
	)
	pub := publisher.NewPublisher(redisClient, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	checker := health.NewChecker(sqlxDB, redisPinger, version)
	checker.RegisterRoutes(e)

	// Public surface: end users arrive here mid-handshake, before any
	// connection exists to authenticate with.
	handlers.NewOAuthHandler(flowSvc, pub).RegisterRoutes(e)
	handlers.NewWebSocketHandler(pub, logger).RegisterRoutes(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if cfg.AuthEnabled {
		api.Use(middleware.Authentication(logger, cfg.AuthIssuerURL, cfg.AuthClientID))
	} else {
		api.Use(middleware.TestAuth())
	}
	handlers.NewConnectTokenHandler(tokenRepo, integrationRepo, connectionRepo, activitySvc, cfg).RegisterRoutes(api)
	handlers.NewConnectionHandler(connectionSvc, activityRepo).RegisterRoutes(api)

	syncHandler := handlers.NewSyncHandler(scheduler)
	syncHandler.RegisterRoutes(api)

	// Run lifecycle callbacks from sync workers. Exposed on a separate
	// prefix so network policy can fence it off from the public listener.
	syncHandler.RegisterInternalRoutes(e.Group("/internal"))

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:    time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server stopped")
			os.Exit(1)
		}
	}()
	checker.SetReady(true)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	checker.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("server shutdown error")
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("kafka producer close error")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.WithError(err).Warn("redis close error")
		}
	}
	if err := sqlxDB.Close(); err != nil {
		logger.WithError(err).Warn("database close error")
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.WithError(err).Warn("tracing shutdown error")
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	zapLogger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	if cfg.OTLPEnabled {
		otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		exporter = otlp
	} else {
		console, err := exporters.NewConsoleExporter(cfg.PrettyLogs)
		if err != nil {
			return nil, err
		}
		exporter = console
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(sdkresource.NewSchemaless(
			attribute.String("service.name", cfg.AppName),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracing.SetTracer(tp.Tracer(cfg.AppName))

	return tp.Shutdown, nil
}

func connectDatabase(cfg *config.Config, logger ectologger.Logger) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseUserName,
		cfg.DatabasePassword,
		cfg.DatabaseName,
		cfg.DatabaseSSLMode,
	)

	var db *sqlx.DB
	var err error
	for attempt := 1; attempt <= cfg.StartupMaxAttempts; attempt++ {
		db, err = sqlx.Connect(cfg.DatabaseDriver, dsn)
		if err == nil {
			break
		}
		logger.WithError(err).Warnf("database connection attempt %d/%d failed", attempt, cfg.StartupMaxAttempts)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	return db, nil
}

func runMigrations(cfg *config.Config, db *sqlx.DB, logger ectologger.Logger) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})

	return migrations.Migrate(cfg.DatabaseName, driver)
}
