package jobmgr

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fresco/internal/domain"
	"github.com/shaiso/Fresco/internal/joblock"
	"github.com/shaiso/Fresco/internal/mq"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
)

// JobStore — долговременное хранилище jobs. Реализуется repo.JobRepo.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	ListInStatus(ctx context.Context, statuses []domain.JobStatus, limit int) ([]domain.Job, error)
}

// PlanStore — долговременное хранилище планов. Реализуется repo.PlanRepo.
type PlanStore interface {
	Create(ctx context.Context, plan *domain.PlannedPath) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PlannedPath, error)
}

// WallStore — чтение стен. Реализуется repo.WallRepo.
type WallStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WallSurface, error)
}

// MapSource — источник карт препятствий с проверкой минимальной версии.
// Реализуется cache.ObstacleCache.
type MapSource interface {
	Get(ctx context.Context, wallID uuid.UUID, minVersion int64) (*domain.ObstacleMap, error)
}

// Dispatcher — отправка плана роботу. Реализуется dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID uuid.UUID) error
}

// Manager владеет жизненным циклом jobs.
type Manager struct {
	// Stores
	jobs  JobStore
	plans PlanStore
	walls WallStore
	maps  MapSource

	// Downstream
	dispatcher Dispatcher

	// Per-job serialization
	locks *joblock.Registry

	// MQ (optional: nil — polling-only mode)
	conn     *mq.Connection
	consumer *mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int
	budget       int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Manager.
type Config struct {
	// Stores
	Jobs  JobStore
	Plans PlanStore
	Walls WallStore
	Maps  MapSource

	// Downstream
	Dispatcher Dispatcher

	// Per-job locks (общие с tracker'ом)
	Locks *joblock.Registry

	// MQ (опционально; nil — polling-only режим)
	Conn *mq.Connection

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество jobs за один poll (default: 100)

	// Budget — бюджет раскрытий планировщика (0 — default планировщика).
	Budget int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Manager.
func New(cfg Config) *Manager {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	locks := cfg.Locks
	if locks == nil {
		locks = joblock.New()
	}

	return &Manager{
		jobs:         cfg.Jobs,
		plans:        cfg.Plans,
		walls:        cfg.Walls,
		maps:         cfg.Maps,
		dispatcher:   cfg.Dispatcher,
		locks:        locks,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		budget:       cfg.Budget,
		logger:       logger,
	}
}

// Locks возвращает реестр per-job блокировок (общий с tracker'ом).
func (m *Manager) Locks() *joblock.Registry {
	return m.locks
}

// Start запускает Manager.
//
// Запускает:
//   - Consumer для jobs.submitted (если есть MQ)
//   - Polling горутину: подхватывает jobs, созданные или брошенные
//     в нетерминальном состоянии во время простоя процесса
func (m *Manager) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel

	m.logger.Info("starting job manager",
		"poll_interval", m.pollInterval,
		"batch_size", m.batchSize,
	)

	if m.conn != nil {
		m.consumer = mq.NewConsumer(m.conn, m.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueJobsSubmitted),
			Handler:  m.handleJobSubmitted,
			Prefetch: 10,
		})

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("job consumer error", "error", err)
			}
		}()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.pollLoop(ctx)
	}()

	m.logger.Info("job manager started")
	return nil
}

// Stop останавливает Manager.
func (m *Manager) Stop() {
	m.stoppedMu.Lock()
	m.stopped = true
	m.stoppedMu.Unlock()

	m.logger.Info("stopping job manager...")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	if m.consumer != nil {
		m.consumer.Stop()
	}

	m.wg.Wait()

	m.logger.Info("job manager stopped")
}

// IsStopped проверяет, остановлен ли Manager.
func (m *Manager) IsStopped() bool {
	m.stoppedMu.RLock()
	defer m.stoppedMu.RUnlock()
	return m.stopped
}

// pollLoop — цикл polling для fallback и crash recovery.
func (m *Manager) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем jobs, брошенные до рестарта)
	m.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// resumableStatuses — статусы, из которых job можно продолжить.
var resumableStatuses = []domain.JobStatus{
	domain.JobStatusCreated,
	domain.JobStatusPlanning,
	domain.JobStatusPlanned,
	domain.JobStatusDispatching,
}

// poll выполняет один цикл polling.
func (m *Manager) poll(ctx context.Context) {
	jobs, err := m.jobs.ListInStatus(ctx, resumableStatuses, m.batchSize)
	if err != nil {
		m.logger.Error("failed to list resumable jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	m.logger.Debug("poll found resumable jobs", "count", len(jobs))

	for i := range jobs {
		if err := m.process(ctx, jobs[i].ID); err != nil {
			m.logger.Error("failed to process job from poll",
				"job_id", jobs[i].ID,
				"error", err,
			)
		}
	}
}
