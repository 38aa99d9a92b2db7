package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/pdf-chat/internal/bootstrap"
	"github.com/kirillkom/pdf-chat/internal/config"
	"github.com/kirillkom/pdf-chat/internal/core/domain"
	"github.com/kirillkom/pdf-chat/internal/observability/logging"
	"github.com/kirillkom/pdf-chat/internal/observability/metrics"
)

const serviceName = "pdfchat-worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, serviceName, bootstrap.Observers{
		Ingestion: workerMetrics,
		Breaker:   workerMetrics.BreakerObserver(),
	})
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	processTimeout := bootstrap.ProcessTimeout(cfg)
	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_addr", metricsServer.Addr)
	err = app.Queue.SubscribeIngestion(ctx, func(handlerCtx context.Context, req domain.IngestionRequest) error {
		if !req.RequestedAt.IsZero() {
			workerMetrics.ObserveQueueLag(time.Since(req.RequestedAt))
		}

		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		started := time.Now()
		workerMetrics.StartDocument()
		err := app.ProcessUC.Process(processCtx, req)
		workerMetrics.FinishDocument(time.Since(started), err)

		logger := logging.ForDocument(slog.Default(), req.DocumentID, req.OwnerID)
		switch {
		case err == nil:
			logger.Info("ingestion_message_done", "duration_ms", time.Since(started).Milliseconds())
		case domain.IsKind(err, domain.ErrLeaseHeld):
			logger.Info("ingestion_skipped", "reason", "lease held by another worker")
			return nil
		}
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_error", "error", err)
		os.Exit(1)
	}
}
