// Package main is the entry point for the gradeplane dispatcher.
// One process owns the priority queues, the grading runtime and the
// HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gradeplane/internal/autotest"
	"gradeplane/internal/autotest/runtime"
	"gradeplane/internal/config"
	"gradeplane/internal/controller"
	"gradeplane/internal/controller/handlers"
	"gradeplane/internal/github"
	"gradeplane/internal/logger"
	"gradeplane/internal/observability"
	"gradeplane/internal/progression"
	"gradeplane/internal/provision"
	"gradeplane/internal/store"
	"gradeplane/internal/store/memory"
	"gradeplane/internal/store/postgres"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (default: gradeplane.yaml in current directory)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New(*logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: postgres when configured, in-memory otherwise (dev mode)
	var db store.Factory
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer pg.Close()

		if *migrateFlag {
			log.Println("Running database migrations...")
			if err := postgres.Migrate(pg.DB()); err != nil {
				log.Fatalf("Migration failed: %v", err)
			}
			log.Println("Migrations completed successfully")
		}
		db = pg
	} else {
		log.Println("No database configured; using in-memory store")
		db = memory.New()
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "gradeplane-dispatcher", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Grading runtime
	var rt runtime.Runtime
	switch cfg.Runtime {
	case "exec":
		rt = runtime.NewExecRuntime("")
		log.Println("Using exec runtime")
	case "docker":
		fallthrough
	default:
		dockerRT, err := runtime.NewDockerRuntime(runtime.DockerConfig{
			Host:       cfg.DockerHost,
			CACertPath: cfg.SSLCACertPath,
			CertPath:   cfg.SSLCertPath,
			KeyPath:    cfg.SSLKeyPath,
		})
		if err != nil {
			log.Fatalf("Failed to create Docker runtime: %v", err)
		}
		rt = dockerRT
		log.Println("Using docker runtime")
	}

	if err := os.MkdirAll(cfg.WorkspaceDir, 0o755); err != nil {
		log.Fatalf("Failed to create workspace dir: %v", err)
	}

	dispatcher := autotest.NewDispatcher(autotest.DispatcherConfig{
		NumSlotsExpress:    cfg.NumSlotsExpress,
		NumSlotsStandard:   cfg.NumSlotsStandard,
		NumSlotsRegression: cfg.NumSlotsRegression,
		WorkRoot:           cfg.WorkspaceDir,
	}, rt, autotest.GitFetcher{},
		autotest.StoreResultSink{Results: db},
		autotest.StoreGradeSink{Grades: db},
		slogger)

	dispatcher.SetProcessExecution(autotest.NewFeedbackPoster(slogger).ProcessExecution)

	// Use observable gauges that snapshot the tiers only when scraped.
	meter := otel.Meter("gradeplane-dispatcher")
	registerQueueGauges(meter, dispatcher)

	machine := progression.NewMachine(db, cfg.PassThreshold, slogger)
	orchestrator := provision.NewOrchestrator(db,
		github.Static{URLBuilder: github.URLBuilder{Host: cfg.GithubHost, Org: cfg.Org}},
		machine,
		provision.Config{
			ProjectPrefix: cfg.ProjectPrefix,
			ImportURL:     cfg.ImportURL,
			WebhookURL:    cfg.WebhookURL(),
		},
		slogger)

	h := handlers.New(dispatcher, orchestrator, machine, cfg, slogger)

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, h, cfg.WebhookSecret, metricsHandler)

	go func() {
		log.Printf("Gradeplane dispatcher starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down dispatcher...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited properly")
}

// registerQueueGauges exposes per-tier depth and slot occupancy.
func registerQueueGauges(meter metric.Meter, d *autotest.Dispatcher) {
	_, err := meter.Int64ObservableGauge("gradeplane.queue.depth",
		metric.WithDescription("Current number of waiting jobs per tier"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			for _, tier := range d.TierStatus() {
				obs.Observe(int64(tier.Waiting), metric.WithAttributes(attribute.String("tier", tier.Name)))
			}
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register queue depth metric: %v", err)
	}

	_, err = meter.Int64ObservableGauge("gradeplane.queue.running",
		metric.WithDescription("Current number of occupied slots per tier"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			for _, tier := range d.TierStatus() {
				obs.Observe(int64(tier.Running), metric.WithAttributes(attribute.String("tier", tier.Name)))
			}
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register queue running metric: %v", err)
	}
}
