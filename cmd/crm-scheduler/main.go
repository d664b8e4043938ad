package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/analytics"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/delegate"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/executor"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/mq"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/scheduler"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/telemetry"
)

// schedLockKey — ключ advisory-lock для leader election.
// Несколько реплик сервиса могут работать одновременно, но тикает
// только держатель блокировки.
const schedLockKey int64 = 737001

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting crm-scheduler")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx)
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

	var conn *mq.Connection
	var publisher *mq.Publisher
	if url := mq.URLFromEnv(); url != "" {
		conn, err = mq.NewConnection(url, logger)
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
		logger.Info("mq enabled")
	}

	sink := analytics.NewSinkFromEnv(logger)
	if sink != nil {
		defer sink.Close()
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

	sched := scheduler.New(scheduler.Config{
		Schedules:  scheduleRepo,
		Jobs:       jobRepo,
		Workflows:  workflowRepo,
		Publisher:  publisher,
		Logger:     logger,
		MaxRetries: envInt("MAX_RETRIES_DEFAULT", 3),
	})

	// isLeader разделяется между тикером и MQ-consumer'ом.
	var isLeader atomic.Bool

	// Основной цикл: каждый тик лидер материализует due-расписания
	// и прогоняет executor.
	go func() {
		tick := envSeconds("SCHED_TICK_SEC", 60)
		tk := time.NewTicker(tick)
		defer tk.Stop()

		var hasLock bool
		defer func() {
			if hasLock {
				_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
			}
		}()

		for {
			select {
			case <-tk.C:
				if !hasLock {
					var ok bool
					if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil {
						logger.Warn("advisory lock attempt failed", "error", err)
						continue
					}
					hasLock = ok
					isLeader.Store(ok)
					if ok {
						logger.Info("acquired scheduler leadership")
					}
				}

				if !hasLock {
					continue
				}

				if err := sched.Tick(ctx); err != nil {
					logger.Error("scheduler tick failed", "error", err)
				}

				if _, err := exec.Execute(ctx, executor.Trigger{
					Source:   domain.SignalSourceScheduler,
					Metadata: map[string]string{"trigger": "scheduler-tick"},
				}); err != nil {
					logger.Error("executor pass failed", "error", err)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// Fast-path: события job.created будят executor раньше следующего
	// тика. Обрабатывает только лидер; не-лидер ack'ает без действия,
	// polling лидера всё равно подберёт job.
	if conn != nil {
		consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
			Queue: mq.QueueJobsCreated,
			Handler: func(ctx context.Context, d *mq.Delivery) error {
				if !isLeader.Load() {
					return nil
				}

				payload, err := mq.ParsePayload[mq.JobCreatedPayload](&d.Message)
				if err != nil {
					logger.Warn("malformed job.created payload", "error", err)
					return nil
				}

				logger.Debug("job.created received, running executor pass", "job_id", payload.JobID)
				if _, err := exec.Execute(ctx, executor.Trigger{
					Source:   domain.SignalSourceScheduler,
					Metadata: map[string]string{"trigger": "job.created"},
				}); err != nil {
					logger.Error("fast-path executor pass failed", "error", err)
				}
				return nil
			},
		})
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("consumer stopped", "error", err)
			}
		}()
	}

	// HTTP: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envMinutes(name string, def int) time.Duration {
	return time.Duration(envInt(name, def)) * time.Minute
}

func envSeconds(name string, def int) time.Duration {
	return time.Duration(envInt(name, def)) * time.Second
}
