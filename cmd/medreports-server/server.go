package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medreports/medreports/internal/config"
	"github.com/medreports/medreports/internal/domain/dashboard"
	"github.com/medreports/medreports/internal/domain/patient"
	"github.com/medreports/medreports/internal/domain/report"
	"github.com/medreports/medreports/internal/domain/staff"
	"github.com/medreports/medreports/internal/extraction"
	"github.com/medreports/medreports/internal/platform/auth"
	"github.com/medreports/medreports/internal/platform/blobstore"
	"github.com/medreports/medreports/internal/platform/cache"
	"github.com/medreports/medreports/internal/platform/db"
	"github.com/medreports/medreports/internal/platform/decode"
	"github.com/medreports/medreports/internal/platform/metrics"
	"github.com/medreports/medreports/internal/platform/middleware"
	"github.com/medreports/medreports/internal/platform/worker"
)

// jsonBodyLimit applies to every non-multipart request.
const jsonBodyLimit = "1M"

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"), os.Stdout)

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsDev() {
		logger.Warn().Msg("running in development mode: requests without a token get admin access")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Result cache
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, extraction cache disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
			logger.Info().Msg("connected to redis")
		}
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise blob storage")
	}

	if err := decode.SetLicense(cfg.UnidocLicenseKey); err != nil {
		logger.Warn().Err(err).Msg("unipdf license not applied")
	}
	if !decode.PDFEnabled() {
		logger.Warn().Msg("UNIDOC_LICENSE_KEY not set, PDF reports will fail to decode")
	}

	reg := metrics.NewRegistry()
	var resultCache extraction.ResultCache
	if redisClient != nil {
		resultCache = cache.NewResultCache(redisClient, cfg.CacheTTL)
	}
	pipeline := newPipeline(cfg, resultCache, reg, logger)

	workers := worker.New(worker.Config{
		Workers:    cfg.WorkerCount,
		QueueSize:  cfg.WorkerQueueSize,
		JobTimeout: cfg.JobTimeout,
	}, logger, reg)
	workers.Start()

	e := newServer(cfg, serverDeps{
		pool:     pool,
		redis:    redisClient,
		blobs:    blobs,
		pipeline: pipeline,
		queue:    workers,
		registry: reg,
		logger:   logger,
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("blob_backend", cfg.BlobBackend).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := workers.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("worker pool did not drain")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendMemory:
		return blobstore.NewInMemoryBlobStore(), nil
	case config.BlobBackendS3:
		client, err := blobstore.NewS3Client(ctx, blobstore.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return blobstore.NewS3BlobStore(client, cfg.S3Bucket, cfg.S3Prefix), nil
	case config.BlobBackendDisk:
		return blobstore.NewDiskBlobStore(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

func newPipeline(cfg *config.Config, rc extraction.ResultCache, reg prometheus.Registerer, logger zerolog.Logger) *extraction.Pipeline {
	engine := extraction.NewEngine(logger, extraction.Options{
		MaxTextLength:     cfg.MaxTextLength,
		DedupeMedications: cfg.DedupeMedications,
	})
	decoder := decode.New(decode.NewTesseractOCR(cfg.OCRCommand), logger)

	opts := []extraction.PipelineOption{extraction.WithRecorder(metrics.NewExtractionMetrics(reg))}
	if rc != nil {
		opts = append(opts, extraction.WithCache(rc))
	}
	return extraction.NewPipeline(engine, decoder, logger, opts...)
}

type serverDeps struct {
	pool     *pgxpool.Pool
	redis    *redis.Client
	blobs    blobstore.BlobStore
	pipeline *extraction.Pipeline
	queue    report.Queue
	registry *prometheus.Registry
	logger   zerolog.Logger
}

// fileRoutes are the suffixes of routes that stream stored report files.
var fileRoutes = []string{"/download", "/preview"}

func newServer(cfg *config.Config, d serverDeps) *echo.Echo {
	logger := d.logger

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler(logger)

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders(fileRoutes...))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(jsonBodyLimit, middleware.FormatLimit(cfg.UploadMaxBytes)))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout, fileRoutes...))
	}

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: []byte(cfg.JWTSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Audit middleware
	var recorder middleware.AuditRecorder
	if cfg.AuditEnabled && d.pool != nil {
		recorder = middleware.NewPGAuditRecorder(d.pool)
	}
	e.Use(middleware.Audit(logger, recorder))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.pool != nil {
		extra := map[string]db.Pinger{}
		if d.redis != nil {
			extra["redis"] = db.CheckFunc(func(ctx context.Context) error { return d.redis.Ping(ctx).Err() })
		}
		if workers, ok := d.queue.(db.Pinger); ok {
			extra["workers"] = workers
		}
		e.GET("/health/db", db.HealthHandler(d.pool, extra))
	}
	e.GET("/metrics", metrics.Handler(d.registry))

	// API
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	var (
		patientRepo   patient.Repository
		reportRepo    report.Repository
		dashboardRepo dashboard.Repository
		staffRepo     staff.Repository
		withTx        report.TxRunner
	)
	if d.pool != nil {
		patientRepo = patient.NewRepo(d.pool)
		reportRepo = report.NewRepo(d.pool)
		dashboardRepo = dashboard.NewRepo(d.pool)
		staffRepo = staff.NewRepo(d.pool)
		withTx = report.PGTxRunner(d.pool)
	}

	patient.NewHandler(patient.NewService(patientRepo)).RegisterRoutes(apiV1)

	reportSvc := report.NewService(reportRepo, patientRepo, d.blobs, d.pipeline, decode.New(decode.NewTesseractOCR(cfg.OCRCommand), logger),
		d.queue, withTx, report.Config{AutoUpdateConfidence: cfg.AutoUpdateConfidence}, logger)
	report.NewHandler(reportSvc).RegisterRoutes(apiV1)

	dashboard.NewHandler(dashboard.NewService(dashboardRepo)).RegisterRoutes(apiV1)

	issuer := auth.NewTokenIssuer([]byte(cfg.JWTSigningKey), cfg.JWTIssuer, cfg.TokenTTL)
	staff.NewHandler(staff.NewService(staffRepo, issuer, logger)).RegisterRoutes(apiV1)

	return e
}

// httpErrorHandler renders every error as {"success": false, "error": msg}.
// Internal causes are logged, never returned to the client.
func httpErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			code = httpErr.Code
			msg = fmt.Sprint(httpErr.Message)
			if httpErr.Internal != nil {
				err = httpErr.Internal
			}
		}
		if code >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		body := map[string]interface{}{"success": false, "error": msg}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to write error response")
		}
	}
}
