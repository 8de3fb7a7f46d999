// Package dispatch преобразует построенный план в поток инструкций для
// робота и публикует их в очередь с гарантией at-least-once.
//
// Инструкции публикуются строго по порядку seq с ожиданием publisher
// confirm на каждую. Номер последней подтверждённой инструкции
// (PublishedSeq) сохраняется в БД после каждого confirm, поэтому после
// рестарта отправка продолжается с PublishedSeq+1 — уже подтверждённые
// инструкции не публикуются заново (кроме случая падения между confirm
// и записью; дубликат при этом поглощается идемпотентностью робота).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fresco/internal/domain"
	"github.com/shaiso/Fresco/internal/joblock"
	"github.com/shaiso/Fresco/internal/mq"
	"github.com/shaiso/Fresco/internal/repo"
	"github.com/shaiso/Fresco/internal/telemetry"
)

// Defaults.
const (
	defaultMaxAttempts = 5
	defaultBaseBackoff = 200 * time.Millisecond
	defaultMaxBackoff  = 10 * time.Second
)

// JobStore — операции над jobs, нужные диспетчеру.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
}

// PlanStore — чтение планов.
type PlanStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PlannedPath, error)
}

// InstructionPublisher — публикация инструкций с ожиданием confirm.
// Реализуется mq.Publisher.
type InstructionPublisher interface {
	PublishInstruction(ctx context.Context, payload mq.InstructionPayload) error
}

// Dispatcher отправляет инструкции плана роботу.
type Dispatcher struct {
	jobs      JobStore
	plans     PlanStore
	publisher InstructionPublisher
	locks     *joblock.Registry

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	logger *slog.Logger
}

// Config — конфигурация Dispatcher.
type Config struct {
	Jobs      JobStore
	Plans     PlanStore
	Publisher InstructionPublisher

	// Locks — реестр per-job блокировок (общий с manager'ом и tracker'ом).
	Locks *joblock.Registry

	// MaxAttempts — попыток публикации одной инструкции (default: 5).
	MaxAttempts int

	// BaseBackoff — начальная задержка между попытками (default: 200ms).
	BaseBackoff time.Duration

	// MaxBackoff — потолок задержки (default: 10s).
	MaxBackoff time.Duration

	Logger *slog.Logger
}

// New создаёт новый Dispatcher.
func New(cfg Config) *Dispatcher {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	baseBackoff := cfg.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = defaultBaseBackoff
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	locks := cfg.Locks
	if locks == nil {
		locks = joblock.New()
	}

	return &Dispatcher{
		jobs:        cfg.Jobs,
		plans:       cfg.Plans,
		publisher:   cfg.Publisher,
		locks:       locks,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		logger:      logger,
	}
}

// Dispatch публикует инструкции job начиная с PublishedSeq+1.
//
// Блокировка job берётся только на короткие чтения и записи состояния —
// ожидание publisher confirm выполняется вне блокировки, чтобы не
// задерживать tracker, который может уже получать ack'и на ранние
// инструкции этого job.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	job, err := d.loadDispatching(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrNotDispatching) {
			// Кто-то успел раньше (poll и consumer могут сойтись на одном job).
			return nil
		}
		return err
	}

	if job.PlanID == nil {
		return fmt.Errorf("job %s has no plan attached", jobID)
	}

	plan, err := d.plans.GetByID(ctx, *job.PlanID)
	if err != nil {
		return fmt.Errorf("load plan %s: %w", *job.PlanID, err)
	}

	finalSeq := plan.FinalSeq()

	for seq := job.PublishedSeq + 1; seq <= finalSeq; seq++ {
		payload := mq.InstructionPayload{
			JobID:            jobID,
			Seq:              seq,
			IdempotencyToken: mq.InstructionToken(jobID, seq),
			Waypoint:         plan.Waypoints[seq-1],
			IsFinal:          seq == finalSeq,
		}

		if err := d.publishWithRetry(ctx, payload); err != nil {
			if ctx.Err() != nil {
				// Останов процесса, не провал брокера: job остаётся в
				// DISPATCHING и будет продолжен после рестарта.
				return ctx.Err()
			}
			return d.failDispatch(ctx, jobID, seq, err)
		}

		telemetry.InstructionsPublished.Inc()

		if err := d.advancePublished(ctx, jobID, seq); err != nil {
			return err
		}
	}

	return d.markDispatched(ctx, jobID)
}

// loadDispatching читает job и проверяет, что он в DISPATCHING.
func (d *Dispatcher) loadDispatching(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	unlock := d.locks.Lock(jobID)
	defer unlock()

	job, err := d.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, err)
		}
		return nil, fmt.Errorf("load job: %w", err)
	}

	if job.Status != domain.JobStatusDispatching {
		return nil, fmt.Errorf("%w: job %s is %s", ErrNotDispatching, jobID, job.Status)
	}

	job.DispatchAttempts++
	if err := d.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("persist dispatch attempt: %w", err)
	}

	return job, nil
}

// publishWithRetry публикует инструкцию с ограниченным числом попыток
// и экспоненциальной задержкой между ними.
func (d *Dispatcher) publishWithRetry(ctx context.Context, payload mq.InstructionPayload) error {
	var lastErr error

	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			telemetry.DispatchRetries.Inc()

			backoff := d.calculateBackoff(attempt)
			d.logger.Warn("retrying instruction publish",
				"job_id", payload.JobID,
				"seq", payload.Seq,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", lastErr,
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := d.publisher.PublishInstruction(ctx, payload); err != nil {
			lastErr = err
			continue
		}

		return nil
	}

	return fmt.Errorf("%w: %d attempts: %v", ErrPublishExhausted, d.maxAttempts, lastErr)
}

// calculateBackoff вычисляет задержку для попытки: base * 2^(attempt-1),
// с потолком maxBackoff.
func (d *Dispatcher) calculateBackoff(attempt int) time.Duration {
	backoff := d.baseBackoff << (attempt - 1)
	if backoff <= 0 || backoff > d.maxBackoff {
		return d.maxBackoff
	}
	return backoff
}

// advancePublished сохраняет продвижение PublishedSeq.
// Read-modify-write под блокировкой: tracker может параллельно двигать
// AckWatermark того же job.
func (d *Dispatcher) advancePublished(ctx context.Context, jobID uuid.UUID, seq int64) error {
	unlock := d.locks.Lock(jobID)
	defer unlock()

	job, err := d.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reload job: %w", err)
	}

	job.AdvancePublished(seq)

	if err := d.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist published seq %d: %w", seq, err)
	}
	return nil
}

// markDispatched переводит job в DISPATCHED после подтверждения всех инструкций.
func (d *Dispatcher) markDispatched(ctx context.Context, jobID uuid.UUID) error {
	unlock := d.locks.Lock(jobID)
	defer unlock()

	job, err := d.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reload job: %w", err)
	}

	if job.Status != domain.JobStatusDispatching {
		// Tracker мог уже продвинуть job дальше по ack'ам.
		return nil
	}

	if err := job.MarkDispatched(); err != nil {
		return err
	}
	if err := d.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist dispatched: %w", err)
	}

	d.logger.Info("job dispatched",
		"job_id", jobID,
		"instructions", job.FinalSeq,
	)
	return nil
}

// failDispatch переводит job в FAILED после исчерпания попыток публикации.
func (d *Dispatcher) failDispatch(ctx context.Context, jobID uuid.UUID, seq int64, cause error) error {
	unlock := d.locks.Lock(jobID)
	defer unlock()

	job, err := d.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reload job: %w", err)
	}

	detail := fmt.Sprintf("instruction %d: %v", seq, cause)
	if err := job.MarkFailed(domain.ReasonDispatchFailure, detail); err != nil {
		return err
	}
	if err := d.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist dispatch failure: %w", err)
	}

	telemetry.JobsFailed.WithLabelValues(string(domain.ReasonDispatchFailure)).Inc()
	telemetry.ActiveJobs.Dec()
	d.logger.Error("dispatch failed",
		"job_id", jobID,
		"seq", seq,
		"error", cause,
	)
	return nil
}
