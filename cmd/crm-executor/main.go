package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/analytics"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/api"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/delegate"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/executor"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/mq"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_executor_http_requests_total",
		Help: "Total HTTP requests handled by crm-executor",
	})
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting crm-executor")

	pool, err := repo.NewPool(context.Background())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	jobRepo := repo.NewJobRepo(pool)
	workflowRepo := repo.NewWorkflowRepo(pool)
	signalRepo := repo.NewSignalRepo(pool)
	scheduleRepo := repo.NewScheduleRepo(pool)

	delegateClient, err := delegate.NewClient()
	if err != nil {
		logger.Error("failed to configure delegate client", "error", err)
		os.Exit(1)
	}

	// RabbitMQ опционален: без AMQP_URL события не публикуются
	var publisher *mq.Publisher
	if url := mq.URLFromEnv(); url != "" {
		conn, err := mq.NewConnection(url, logger)
		if err != nil {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		if err := mq.SetupTopology(conn); err != nil {
			logger.Error("failed to setup mq topology", "error", err)
			os.Exit(1)
		}
		publisher = mq.NewPublisher(conn, logger)
		logger.Info("mq publisher enabled")
	}

	// Redis-аналитика опциональна: nil-sink безопасен
	sink := analytics.NewSinkFromEnv(logger)
	if sink != nil {
		defer sink.Close()
		logger.Info("redis analytics enabled")
	}

	exec := executor.New(executor.Config{
		Jobs:         jobRepo,
		Workflows:    workflowRepo,
		Signals:      signalRepo,
		Delegate:     delegateClient,
		Publisher:    publisher,
		Analytics:    sink,
		StuckTimeout: envMinutes("STUCK_JOB_TIMEOUT_MIN", 5),
		Tolerance:    envSeconds("DUE_TOLERANCE_SEC", 60),
		Logger:       logger,
	})

	handler := api.NewHandler(api.Config{
		Invoker:      exec,
		JobRepo:      jobRepo,
		SignalRepo:   signalRepo,
		ScheduleRepo: scheduleRepo,
		WorkflowRepo: workflowRepo,
		Logger:       logger,
		Secret:       os.Getenv("CRON_SECRET"),
		AppEnv:       os.Getenv("APP_ENV"),
	})

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

func envMinutes(name string, def int) time.Duration {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return time.Duration(def) * time.Minute
}

func envSeconds(name string, def int) time.Duration {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(def) * time.Second
}
