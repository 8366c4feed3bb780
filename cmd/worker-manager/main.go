package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"clinic-workers/internal/common/camunda"
	"clinic-workers/internal/common/config"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/common/observability"
	"clinic-workers/internal/events"
	"clinic-workers/internal/notification"
	"clinic-workers/internal/notification/audit"
	"clinic-workers/internal/notification/dispatch"
	"clinic-workers/internal/scheduler"
	"clinic-workers/internal/sequence"
	sendnotification "clinic-workers/internal/workers/notification/send-notification"
	allocatecode "clinic-workers/internal/workers/sequence/allocate-code"
	"clinic-workers/pkg/registry"
)

// retryWithBackoff attempts operation up to maxRetries times, doubling the delay each time.
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(operationName+" failed, retrying", map[string]interface{}{
				"error":       err,
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"app":     cfg.App.Name,
		"version": cfg.App.Version,
	})

	log.Info("starting worker manager", map[string]interface{}{"environment": cfg.App.Environment})

	if err := run(cfg, log); err != nil {
		zapLog.Fatal("worker manager stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New(cfg.App.Name, cfg.Tracing.JaegerEndpoint, log)
	defer obs.Shutdown()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close(context.Background())

	// --- Sequence allocation ---
	seqStore, err := buildSequenceStore(ctx, cfg, b)
	if err != nil {
		return err
	}
	allocator := sequence.NewAllocator(seqStore, sequence.NewPostgresMaxObserver(b.pg.DB, nil), log,
		sequence.WithObservability(obs))

	// --- Notifications ---
	records, err := buildRecordStore(ctx, cfg, b)
	if err != nil {
		return err
	}
	dir := buildDirectory(cfg, b, log)
	channels, err := buildChannels(ctx, cfg, log)
	if err != nil {
		return err
	}
	dispatcher := dispatch.NewDispatcher(dir, config.GetDuration(cfg.Notifications.DispatchTimeout), log, channels...)

	templates, err := registry.LoadOrDefault(cfg.Notifications.TemplateRegistry)
	if err != nil {
		return err
	}

	opts := []notification.Option{notification.WithObservability(obs)}
	if b.es != nil {
		opts = append(opts, notification.WithAudit(audit.NewElasticsearchSink(b.es.Client, cfg.Notifications.Audit.Index)))
	}
	service := notification.NewService(records, dispatcher, templates, log, opts...)

	// --- Scheduler ---
	loc, _ := time.LoadLocation(cfg.Scheduler.Timezone)
	var stopScheduler func()
	if cfg.Scheduler.Enabled {
		rundownAt, _ := config.ParseClock(cfg.Scheduler.RundownAt)
		sched := scheduler.New(scheduler.NewPostgresEventSource(b.pg.DB), records, service, dir, scheduler.Config{
			Tick:           config.GetDuration(cfg.Scheduler.Tick),
			ReminderOffset: config.GetDuration(cfg.Scheduler.ReminderOffset),
			BatchSize:      cfg.Scheduler.BatchSize,
			Location:       loc,
		}, log)
		stopScheduler = sched.Start(ctx, rundownAt)
	}

	// --- Domain events ---
	consumerDone := make(chan error, 1)
	if cfg.Kafka.Enabled {
		consumer := events.NewConsumer(events.NewReader(cfg.Kafka), service, loc, log)
		go func() { consumerDone <- consumer.Run(ctx) }()
	} else {
		consumerDone <- nil
	}

	// --- Zeebe workers ---
	var workers []*camunda.Worker
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClientWithConfig(ctx, camunda.ConfigFrom(cfg.Camunda))
		if err != nil {
			return err
		}
		defer zeebe.Close()

		if wc := config.GetWorkerConfig(cfg, allocatecode.TaskType); wc.Enabled {
			h := allocatecode.NewHandler(allocatecode.LoadConfig(wc), allocator, log)
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), allocatecode.TaskType, wc, h, obs, log))
		}
		if wc := config.GetWorkerConfig(cfg, sendnotification.TaskType); wc.Enabled {
			h := sendnotification.NewHandler(sendnotification.LoadConfig(wc), service, log)
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), sendnotification.TaskType, wc, h, obs, log))
		}
		log.Info("workers registered", map[string]interface{}{"count": len(workers)})
	}

	// --- Health & Metrics Server ---
	srv := &http.Server{Addr: cfg.Server.Address, Handler: healthMux(b, zeebe), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("health/metrics server listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health/metrics server failed", map[string]interface{}{"error": err})
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, stopping", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	if stopScheduler != nil {
		stopScheduler()
	}
	if err := <-consumerDone; err != nil {
		log.Error("event consumer stopped with error", map[string]interface{}{"error": err})
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("health server shutdown failed", map[string]interface{}{"error": err})
	}

	log.Info("worker manager stopped", nil)
	return nil
}

func healthMux(b *backends, zeebe *camunda.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", "")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		err := b.ping(ctx)
		if err == nil && zeebe != nil {
			err = zeebe.HealthCheck(ctx)
		}
		if err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
		writeStatus(w, http.StatusOK, "ready", "")
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, code int, status, detail string) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if detail != "" {
		body["error"] = detail
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
