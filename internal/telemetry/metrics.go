package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики executor'а. Экспортируются на /metrics каждого сервиса.
var (
	// InvocationsTotal — количество вызовов executor'а по источнику.
	InvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_executor_invocations_total",
		Help: "Total executor invocations by trigger source",
	}, []string{"source"})

	// JobsClaimedTotal — количество успешно захваченных jobs.
	JobsClaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_executor_jobs_claimed_total",
		Help: "Total jobs claimed by this executor",
	})

	// JobsFinishedTotal — количество завершённых jobs по исходу.
	// Исходы: completed, failed, cancelled, retry.
	JobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_executor_jobs_finished_total",
		Help: "Total jobs finished by outcome",
	}, []string{"outcome"})

	// StuckJobsRepairedTotal — количество jobs, принудительно
	// переведённых в failed из зависшего running.
	StuckJobsRepairedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_executor_stuck_jobs_repaired_total",
		Help: "Total stuck running jobs forced to failed",
	})

	// ClaimRacesLostTotal — количество кандидатов, захваченных
	// конкурентным вызовом.
	ClaimRacesLostTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_executor_claim_races_lost_total",
		Help: "Total due candidates lost to a concurrent invocation",
	})

	// InvocationDuration — длительность одного вызова executor'а.
	InvocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crm_executor_invocation_duration_seconds",
		Help:    "Wall-clock duration of one executor invocation",
		Buckets: prometheus.DefBuckets,
	})

	// DelegateCallDuration — длительность вызова внешнего delegate.
	DelegateCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crm_executor_delegate_call_duration_seconds",
		Help:    "Duration of execution delegate calls",
		Buckets: prometheus.DefBuckets,
	})
)
