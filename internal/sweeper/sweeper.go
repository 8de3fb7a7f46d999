// Package sweeper выполняет фоновые регламентные задачи:
//
//   - переводит в FAILED jobs, по которым робот не подтверждал прогресс
//     дольше дедлайна (ExecutionTimeout)
//   - архивирует давно завершённые jobs
//   - подрезает историю версий карт препятствий
//
// Sweeper работает в отдельном процессе, поэтому все его записи —
// условные UPDATE: предикат (статус, отсутствие прогресса) проверяется
// на стороне БД атомарно с самой записью, и подтверждение, обработанное
// оркестратором параллельно, делает запись no-op. Задачи запускаются по
// расписанию cron; каждая идемпотентна и безопасна при нескольких
// экземплярах sweeper'а.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/Fresco/internal/domain"
	"github.com/shaiso/Fresco/internal/telemetry"
)

// Defaults.
const (
	defaultExecutionTimeout = 2 * time.Minute
	defaultRetention        = 24 * time.Hour
	defaultHistoryKeep      = 10
	defaultStallSchedule    = "@every 30s"
	defaultCleanupSchedule  = "@hourly"
	defaultBatchSize        = 100
)

// JobStore — операции над jobs, нужные sweeper'у.
type JobStore interface {
	ListStalled(ctx context.Context, statuses []domain.JobStatus, cutoff time.Time, limit int) ([]domain.Job, error)
	FailStalled(ctx context.Context, id uuid.UUID, statuses []domain.JobStatus, cutoff time.Time, detail string) (bool, error)
	ArchiveFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MapStore — подрезка истории карт препятствий.
type MapStore interface {
	PruneHistory(ctx context.Context, keep int) (int64, error)
}

// Sweeper — фоновый процесс регламентных задач.
type Sweeper struct {
	jobs JobStore
	maps MapStore

	executionTimeout time.Duration
	retention        time.Duration
	historyKeep      int
	stallSchedule    string
	cleanupSchedule  string
	batchSize        int

	cron   *cron.Cron
	logger *slog.Logger
}

// Config — конфигурация Sweeper.
type Config struct {
	Jobs JobStore
	Maps MapStore

	// ExecutionTimeout — максимум без прогресса от робота (default: 2m).
	ExecutionTimeout time.Duration

	// Retention — сколько хранить завершённые jobs до архивации (default: 24h).
	Retention time.Duration

	// HistoryKeep — сколько версий карты хранить на стену (default: 10).
	HistoryKeep int

	// StallSchedule — cron-расписание проверки зависших jobs (default: "@every 30s").
	StallSchedule string

	// CleanupSchedule — cron-расписание архивации и подрезки (default: "@hourly").
	CleanupSchedule string

	// BatchSize — jobs за один проход проверки (default: 100).
	BatchSize int

	Logger *slog.Logger
}

// New создаёт новый Sweeper.
func New(cfg Config) *Sweeper {
	executionTimeout := cfg.ExecutionTimeout
	if executionTimeout <= 0 {
		executionTimeout = defaultExecutionTimeout
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}

	historyKeep := cfg.HistoryKeep
	if historyKeep <= 0 {
		historyKeep = defaultHistoryKeep
	}

	stallSchedule := cfg.StallSchedule
	if stallSchedule == "" {
		stallSchedule = defaultStallSchedule
	}

	cleanupSchedule := cfg.CleanupSchedule
	if cleanupSchedule == "" {
		cleanupSchedule = defaultCleanupSchedule
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		jobs:             cfg.Jobs,
		maps:             cfg.Maps,
		executionTimeout: executionTimeout,
		retention:        retention,
		historyKeep:      historyKeep,
		stallSchedule:    stallSchedule,
		cleanupSchedule:  cleanupSchedule,
		batchSize:        batchSize,
		logger:           logger,
	}
}

// Start регистрирует и запускает задачи по расписанию.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()

	if _, err := s.cron.AddFunc(s.stallSchedule, func() {
		s.FailStalled(ctx)
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.cleanupSchedule, func() {
		s.Archive(ctx)
		s.PruneMapHistory(ctx)
	}); err != nil {
		return err
	}

	s.cron.Start()

	s.logger.Info("sweeper started",
		"execution_timeout", s.executionTimeout,
		"retention", s.retention,
		"history_keep", s.historyKeep,
		"stall_schedule", s.stallSchedule,
		"cleanup_schedule", s.cleanupSchedule,
	)
	return nil
}

// Stop останавливает задачи и ждёт завершения текущих.
func (s *Sweeper) Stop() {
	s.logger.Info("stopping sweeper...")
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.logger.Info("sweeper stopped")
}

// watchedStatuses — статусы, в которых прогресс обязан идти от робота.
var watchedStatuses = []domain.JobStatus{
	domain.JobStatusDispatched,
	domain.JobStatusExecuting,
}

// FailStalled переводит в FAILED jobs без прогресса дольше дедлайна.
//
// Отсчёт идёт от последнего продвижения watermark (или от последнего
// изменения job, если ack'ов ещё не было). Сама запись — условный
// UPDATE: статус и отсутствие прогресса перепроверяются в том же
// statement, поэтому ack или COMPLETE, обработанный оркестратором
// между выборкой и записью, оставляет job нетронутым.
func (s *Sweeper) FailStalled(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.executionTimeout)

	stalled, err := s.jobs.ListStalled(ctx, watchedStatuses, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list stalled jobs", "error", err)
		return
	}

	for i := range stalled {
		s.failStalledJob(ctx, &stalled[i], cutoff)
	}
}

// failStalledJob закрывает один завиcший job условной записью.
func (s *Sweeper) failStalledJob(ctx context.Context, job *domain.Job, cutoff time.Time) {
	lastProgress := job.UpdatedAt
	if job.LastAckAt != nil {
		lastProgress = *job.LastAckAt
	}
	detail := "no progress from robot since " + lastProgress.Format(time.RFC3339)

	failed, err := s.jobs.FailStalled(ctx, job.ID, watchedStatuses, cutoff, detail)
	if err != nil {
		s.logger.Error("failed to fail stalled job", "job_id", job.ID, "error", err)
		return
	}
	if !failed {
		// Прогресс после выборки — job больше не завис.
		return
	}

	telemetry.JobsFailed.WithLabelValues(string(domain.ReasonExecutionTimeout)).Inc()
	telemetry.ActiveJobs.Dec()
	s.logger.Warn("job failed with execution timeout",
		"job_id", job.ID,
		"last_progress", lastProgress,
	)
}

// Archive помечает архивными давно завершённые jobs.
func (s *Sweeper) Archive(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retention)

	archived, err := s.jobs.ArchiveFinishedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to archive finished jobs", "error", err)
		return
	}

	if archived > 0 {
		s.logger.Info("archived finished jobs", "count", archived, "cutoff", cutoff)
	}
}

// PruneMapHistory подрезает историю версий карт препятствий.
func (s *Sweeper) PruneMapHistory(ctx context.Context) {
	pruned, err := s.maps.PruneHistory(ctx, s.historyKeep)
	if err != nil {
		s.logger.Error("failed to prune map history", "error", err)
		return
	}

	if pruned > 0 {
		s.logger.Info("pruned obstacle map history", "count", pruned, "keep", s.historyKeep)
	}
}
