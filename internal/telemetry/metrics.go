package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики пайплайна планирования и диспетчеризации.
// Экспонируются через promhttp в каждом бинарнике.
var (
	// JobsSubmitted — принятые запросы на планирование.
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fresco_jobs_submitted_total",
		Help: "Plan requests accepted (after dedup).",
	})

	// JobsDeduplicated — запросы, схлопнутые по ключу идемпотентности.
	JobsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fresco_jobs_deduplicated_total",
		Help: "Plan requests answered with an existing job.",
	})

	// JobsCompleted — jobs, дошедшие до COMPLETED.
	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fresco_jobs_completed_total",
		Help: "Jobs that reached COMPLETED.",
	})

	// JobsFailed — jobs в FAILED по причинам.
	JobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fresco_jobs_failed_total",
		Help: "Jobs that reached FAILED, by reason.",
	}, []string{"reason"})

	// PlansComputed — успешно построенные планы.
	PlansComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fresco_plans_computed_total",
		Help: "Paths successfully computed by the planner.",
	})

	// PlanWaypoints — распределение длины плана.
	PlanWaypoints = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fresco_plan_waypoints",
		Help:    "Waypoints per computed plan.",
		Buckets: prometheus.ExponentialBuckets(4, 2, 12),
	})

	// InstructionsPublished — инструкции, подтверждённые брокером.
	InstructionsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fresco_instructions_published_total",
		Help: "Instruction messages confirmed by the broker.",
	})

	// DispatchRetries — повторные попытки публикации.
	DispatchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fresco_dispatch_retries_total",
		Help: "Instruction publish attempts that had to be retried.",
	})

	// AcksReceived — события от робота по видам.
	AcksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fresco_acks_received_total",
		Help: "Robot events consumed, by event kind.",
	}, []string{"event"})

	// AcksDropped — дубликаты и запоздавшие подтверждения.
	AcksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fresco_acks_dropped_total",
		Help: "Duplicate or below-watermark acks dropped.",
	})

	// CacheHits — попадания в кэш препятствий.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fresco_obstacle_cache_hits_total",
		Help: "Obstacle map reads served from cache.",
	})

	// CacheMisses — промахи кэша препятствий.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fresco_obstacle_cache_misses_total",
		Help: "Obstacle map reads that fell through to the store.",
	})

	// ActiveJobs — jobs в нетерминальных статусах, обрабатываемые процессом.
	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fresco_active_jobs",
		Help: "Jobs currently held in non-terminal processing.",
	})
)
