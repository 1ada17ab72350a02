package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/carefill/carefill/internal/config"
	v1 "github.com/carefill/carefill/internal/handler/v1"
	"github.com/carefill/carefill/internal/notifier"
	"github.com/carefill/carefill/internal/repository"
	"github.com/carefill/carefill/internal/service"
	"github.com/carefill/carefill/pkg/auth"
	"github.com/carefill/carefill/pkg/database"
	"github.com/carefill/carefill/pkg/logger"
	"github.com/carefill/carefill/pkg/metrics"
	"github.com/carefill/carefill/pkg/tracer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.Migrate(db, log); err != nil {
		return err
	}

	m := metrics.NewCollector("carefill")

	fulfillmentRepo := repository.NewFulfillmentRepository(db)
	prescriptionRepo := repository.NewPrescriptionRepository(db)
	patientRepo := repository.NewPatientRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	auditSvc := service.NewAuditService(auditRepo, cfg.Workflow.AuditBufferSize, m, log)
	defer auditSvc.Shutdown()

	notifySvc := notifier.New(notificationRepo, cfg.Workflow.NotificationBufferSize, m, log)
	defer notifySvc.Shutdown()

	jwtManager := auth.NewJWTManager(cfg.JWT)
	authSvc := service.NewAuthService(userRepo, jwtManager, log)
	fulfillmentSvc := service.NewFulfillmentService(
		fulfillmentRepo, userRepo, patientRepo, auditSvc, notifySvc, m, log,
	)
	prescriptionSvc := service.NewPrescriptionService(
		prescriptionRepo, patientRepo, fulfillmentSvc, auditSvc, m, log,
	)

	router := v1.NewRouter(v1.RouterDeps{
		AuthHandler:         v1.NewAuthHandler(authSvc),
		FulfillmentHandler:  v1.NewFulfillmentHandler(fulfillmentSvc),
		PrescriptionHandler: v1.NewPrescriptionHandler(prescriptionSvc),
		JWTManager:          jwtManager,
		Metrics:             m,
		Log:                 log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.App.Environment),
			zap.String("version", cfg.App.Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
