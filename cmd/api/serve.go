package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"dealer-crm/internal/audit"
	"dealer-crm/internal/auth"
	"dealer-crm/internal/calllogs"
	"dealer-crm/internal/config"
	"dealer-crm/internal/httpapi"
	"dealer-crm/internal/ingest"
	"dealer-crm/internal/knowledge"
	"dealer-crm/internal/metrics"
	"dealer-crm/internal/reporting"
	"dealer-crm/internal/tenancy"
	"dealer-crm/internal/users"
	"dealer-crm/internal/vapi"
	"dealer-crm/pkg/logger"
	"dealer-crm/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and webhook receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			// Root context that cancels on shutdown
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func openPostgres(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return nil, fmt.Errorf("postgres init failed: %w", err)
	}
	return db, nil
}

func newVapiClient(cfg config.Config, log *slog.Logger, m *metrics.Metrics) (*vapi.Client, error) {
	return vapi.NewClient(vapi.Config{
		BaseURL:       cfg.Vapi.BaseURL,
		APIKey:        cfg.Vapi.APIKey,
		Version:       cfg.Vapi.Version,
		WebhookSecret: cfg.Vapi.WebhookSecret,
		Timeout:       cfg.Vapi.Timeout,
		Logger:        log,
		Metrics:       m,
	})
}

// newIngestService builds the webhook pipeline. Signature checks only run when
// enabled in configuration.
func newIngestService(cfg config.Config, logs calllogs.Repository, dealers ingest.DealershipLookup, auditSvc *audit.Service, stats ingest.StatsInvalidator, client *vapi.Client, m *metrics.Metrics) *ingest.Service {
	deps := ingest.Deps{
		Logs:        logs,
		Audit:       auditSvc,
		Dealerships: dealers,
		Classifier:  ingest.NewClassifier(cfg.Ingest.DepartmentClassifier),
		Stats:       stats,
		Metrics:     m,
		Region:      cfg.Ingest.DefaultRegion,
	}
	if cfg.Ingest.VerifySignatures && client != nil {
		deps.Verify = client.VerifySignature
	}
	return ingest.NewService(deps)
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth init failed: %w", err)
	}

	db, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		return fmt.Errorf("redis init failed: %w", err)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	logs := calllogs.NewPostgresRepo(db)
	reportingSvc := reporting.NewService(logs, reporting.NewRedisStatsCache(rdb, cfg.Redis.StatsTTL), m)
	dealers := tenancy.NewPostgresRepo(db, reportingSvc)

	client, err := newVapiClient(cfg, log, m)
	if err != nil {
		return fmt.Errorf("vapi client init failed: %w", err)
	}
	ingestSvc := newIngestService(cfg, logs, dealers, audit.NewService(audit.NewPostgresRepo(db)), reportingSvc, client, m)

	var store knowledge.ObjectStore
	if cfg.Storage.Bucket != "" {
		s3Store, err := knowledge.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("object storage init failed: %w", err)
		}
		store = s3Store
	} else {
		log.Warn("S3_BUCKET not set; knowledge-base file uploads are disabled")
	}

	api := &httpapi.Handlers{
		Auth:      authManager,
		Users:     users.NewPostgresRepo(db),
		CallLogs:  logs,
		Reporting: reportingSvc,
		Knowledge: knowledge.NewService(knowledge.NewPostgresRepo(db), store),
		Metrics:   m,
		Health: func(ctx context.Context) error {
			if err := utils.HealthCheck(ctx, db, time.Second); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
	}
	r := newRouter(log, api, ingest.NewHandler(ingestSvc), m)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env,
			"verify_signatures", cfg.Ingest.VerifySignatures,
			"classifier", cfg.Ingest.DepartmentClassifier,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown initiated")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
	return nil
}
