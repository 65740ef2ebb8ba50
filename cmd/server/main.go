package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"fcp-audit/internal/audit/consumer"
	"fcp-audit/internal/audit/handler"
	"fcp-audit/internal/audit/metrics"
	"fcp-audit/internal/audit/publishers/security"
	"fcp-audit/internal/audit/retention"
	"fcp-audit/internal/audit/service"
	httpapi "fcp-audit/internal/http"
	"fcp-audit/internal/platform/config"
	"fcp-audit/internal/platform/httpserver"
	"fcp-audit/internal/platform/kafka"
	"fcp-audit/internal/platform/logger"
	platformmetrics "fcp-audit/internal/platform/metrics"
	platformsqs "fcp-audit/internal/platform/sqs"
	"fcp-audit/pkg/platform/circuit"
)

const shutdownTimeout = 10 * time.Second

// main wires config, logging, the store, retention, the queue consumer and
// the HTTP server, then blocks until SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		slog.Error("fcp-audit exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.close(closeCtx); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	manager, err := retention.NewManager(store.indexes, log)
	if err != nil {
		return err
	}
	if _, err := manager.Reconcile(ctx, cfg.RetentionTTL); err != nil {
		return fmt.Errorf("reconcile retention: %w", err)
	}

	forwarder, closeForwarder, err := openForwarder(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		closeForwarder(closeCtx)
	}()

	svc, err := service.New(store.records,
		service.WithLogger(log),
		service.WithForwarder(forwarder),
		service.WithMetrics(m),
		service.WithMaxTime(cfg.StoreMaxTime),
		service.WithMaxPageSize(cfg.PageSizeMax),
	)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Config{
		Logger:   log,
		Gatherer: reg,
		Metrics:  platformmetrics.NewHTTP(reg),
		Checks:   map[string]httpapi.HealthCheck{"store": store.health},
		Routes:   []httpapi.Registrar{handler.New(svc, log, cfg.PageSizeDefault, cfg.PageSizeMax)},
	})
	srv := httpserver.New(cfg.Addr(), router)

	queue, err := openConsumer(ctx, cfg, svc, log, m)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting fcp-audit", "addr", cfg.Addr(), "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if store.purger != nil && cfg.RetentionTTL > 0 {
		g.Go(func() error {
			retention.RunPurger(gctx, store.purger, cfg.RetentionPurgeInterval, log, m)
			return nil
		})
	}

	if queue != nil {
		g.Go(func() error { return queue.Run(gctx) })
	}

	err = g.Wait()
	log.Info("fcp-audit stopped")
	return err
}

// openConsumer returns nil when no queue is configured.
func openConsumer(ctx context.Context, cfg config.Config, svc *service.Service, log *slog.Logger, m *metrics.Metrics) (*consumer.Consumer, error) {
	if cfg.SQS.QueueURL == "" {
		log.Warn("SQS_QUEUE_URL not set, queue consumer disabled")
		return nil, nil
	}
	client, err := platformsqs.New(ctx, cfg.SQS)
	if err != nil {
		return nil, err
	}
	return consumer.New(client, svc, cfg.SQS.QueueURL,
		consumer.WithWaitTime(cfg.SQS.WaitTimeSeconds),
		consumer.WithMaxMessages(cfg.SQS.MaxMessages),
		consumer.WithVisibilityTimeout(cfg.SQS.VisibilityTimeout),
		consumer.WithConcurrency(cfg.SQS.Concurrency),
		consumer.WithLogger(log),
		consumer.WithMetrics(m),
	), nil
}

// openForwarder returns the security view sink and its shutdown hook.
func openForwarder(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Metrics) (service.Forwarder, func(context.Context), error) {
	if !cfg.SOC.Enabled {
		return security.Discard{Logger: log}, func(context.Context) {}, nil
	}

	client, err := kafka.Open(ctx, cfg.SOC.Brokers, "fcp-audit")
	if err != nil {
		return nil, nil, err
	}
	if err := client.EnsureTopic(ctx, cfg.SOC.Topic, 3, -1); err != nil {
		log.Warn("could not ensure SOC topic", "topic", cfg.SOC.Topic, "error", err)
	}

	p := security.New(client, cfg.SOC.Topic,
		security.WithBufferSize(cfg.SOC.BufferSize),
		security.WithFlushInterval(cfg.SOC.FlushInterval),
		security.WithBreaker(circuit.New("soc-kafka"), 30*time.Second),
		security.WithLogger(log),
		security.WithMetrics(m),
	)
	return p, func(ctx context.Context) {
		if err := p.Close(ctx); err != nil {
			log.Warn("security forwarder did not drain", "error", err)
		}
		client.Close()
	}, nil
}
