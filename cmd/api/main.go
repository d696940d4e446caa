package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/cu-relay/internal/application"
	appanalysis "github.com/bryanwahyu/cu-relay/internal/application/analysis"
	"github.com/bryanwahyu/cu-relay/internal/config"
	domain "github.com/bryanwahyu/cu-relay/internal/domain/analysis"
	"github.com/bryanwahyu/cu-relay/internal/infra/contentunderstanding"
	mysqlp "github.com/bryanwahyu/cu-relay/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/cu-relay/internal/infra/db/postgres"
	"github.com/bryanwahyu/cu-relay/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/cu-relay/internal/infra/storage"
	"github.com/bryanwahyu/cu-relay/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config invalid: %v", err)
	}
	redacted := cfg.Redacted()
	log.Printf("config loaded: path=%s endpoint=%s apiVersion=%s analyzer=%s db=%s minio=%s",
		path, redacted.ContentUnderstanding.Endpoint, redacted.ContentUnderstanding.APIVersion,
		redacted.ContentUnderstanding.AnalyzerID, redacted.Database.Driver, redacted.Minio.Endpoint)

	ctx, stopCtx := context.WithCancel(context.Background())
	defer stopCtx()

	// init analysis client
	cuCfg := cfg.ContentUnderstanding
	client, err := contentunderstanding.NewFromSettings(cfg.AnalysisSettings(), &http.Client{Timeout: cuCfg.RequestTimeout})
	if err != nil {
		log.Fatalf("analysis client init error: %v", err)
	}

	checkers := map[string]middleware.HealthChecker{}

	// job history (optional)
	repo, db, err := openRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("%s connect error: %v", cfg.Database.Driver, err)
	}
	if db != nil {
		defer db.Close()
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	// init minio (optional)
	var archive domain.ResultArchive
	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		archive = store
		checkers["minio"] = store
	}

	// init service
	svc := &appanalysis.Service{
		Analyzer:     client,
		Repo:         repo,
		Archive:      archive,
		Clock:        application.SystemClock{},
		PollTimeout:  cuCfg.PollTimeout,
		PollInterval: cuCfg.PollInterval,
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Capacity > 0 {
		limiter = middleware.NewRateLimiter(ctx, cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate)
	}

	// init router
	handler := httpserver.NewRouter(svc, httpserver.Options{
		DefaultAnalyzerID: cuCfg.AnalyzerID,
		LocalRoot:         cfg.Input.LocalRoot,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		APIKeys:           cfg.Auth.APIKeys,
		RateLimiter:       limiter,
		Metrics:           middleware.NewMetrics(),
		HealthCheckers:    checkers,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")
	stopCtx()

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// openRepository connects the configured job-history database; driver "" disables it.
func openRepository(ctx context.Context, cfg *config.Config) (domain.Repository, *sql.DB, error) {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		if err := mysqlp.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return mysqlp.NewJobRepository(db), db, nil
	case "postgres":
		db, err := pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		if err := pgp.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return pgp.NewJobRepository(db), db, nil
	default:
		log.Printf("job history disabled (database.driver is empty)")
		return nil, nil, nil
	}
}
