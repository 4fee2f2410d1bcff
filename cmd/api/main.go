package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recordapi/docs"
	"recordapi/internal/config"
	"recordapi/internal/database"
	"recordapi/internal/database/migration"
	handlers "recordapi/internal/http/handler"
	"recordapi/internal/http/middleware"
	"recordapi/internal/logging"
	"recordapi/internal/otel"
	"recordapi/internal/repository"
	"recordapi/internal/repository/mongodb"
	"recordapi/internal/repository/postgres"
	"recordapi/internal/service"
	"recordapi/internal/storage"
	"recordapi/internal/validate"
)

// @title Record API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	loc := cfg.Location()

	log := logging.New(os.Stdout, cfg.LogLevel, loc)
	slog.SetDefault(log)

	if err := run(cfg, loc, log); err != nil {
		log.Error("server stopped", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, loc *time.Location, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// Store clients are built once and shared by every request.
	recordRepo, closeRepo, err := newRecordRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	blobStore, err := newBlobStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize blob storage: %w", err)
	}

	reg := prometheus.DefaultRegisterer
	outcomeMetrics, err := service.NewOutcomeMetrics(reg)
	if err != nil {
		return fmt.Errorf("register outcome metrics: %w", err)
	}
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	recordSvc := service.NewRecordService(recordRepo, blobStore,
		validate.New(validate.WithIDPrefix(cfg.IDPrefix)),
		service.WithProbeTimeout(cfg.ProbeTimeout),
		service.WithLogger(log.With("component", "record_service")),
		service.WithMetrics(outcomeMetrics),
	)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    int(cfg.Storage.MaxUploadBytes),
	})

	// Register global middleware
	app.Use(recover.New())
	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger(log))
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Register HTTP routes with injected service
	handlers.RegisterRoutes(app, recordSvc, loc)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		host := c.Get("Host")
		if host == "" {
			host = cfg.AppHost
		}

		docs.SwaggerInfo.Host = host
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Port

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			"addr", addr,
			"document_backend", cfg.DocumentBackend,
			"blob_backend", cfg.Storage.Backend,
			"max_upload_size", cfg.Storage.MaxUploadSize,
		)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Info("server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(sctx)
}

func newRecordRepository(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (repository.RecordRepository, func(), error) {
	switch cfg.DocumentBackend {
	case config.BackendPostgres:
		// Initialize PostgreSQL connection (with pooling via database/sql)
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return postgres.NewRecordPostgres(db), func() { _ = db.Close() }, nil

	case config.BackendMongo:
		client, coll, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		closeFn := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}
		return mongodb.NewRecordMongo(client, coll), closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown document backend %q", cfg.DocumentBackend)
	}
}

func newBlobStore(cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendLocal:
		return storage.NewLocal(cfg.Storage.ContentRoot)
	case config.BackendMinIO:
		// S3-compatible object storage client (MinIO-supported)
		return storage.NewMinIO(cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Storage.Backend)
	}
}
