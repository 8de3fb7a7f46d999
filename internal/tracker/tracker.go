// Package tracker сопровождает выполнение job роботом.
//
// Tracker потребляет события из очереди robot.acks и продвигает job по
// статусам DISPATCHED → EXECUTING → COMPLETED. Транспорт at-least-once
// и не сохраняет порядок, поэтому все обработчики идемпотентны:
// watermark подтверждённых инструкций монотонно неубывающий, дубликаты
// и запоздавшие события ничего не меняют.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Fresco/internal/domain"
	"github.com/shaiso/Fresco/internal/joblock"
	"github.com/shaiso/Fresco/internal/mq"
	"github.com/shaiso/Fresco/internal/repo"
	"github.com/shaiso/Fresco/internal/telemetry"
)

// JobStore — операции над jobs, нужные tracker'у.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
}

// Tracker обрабатывает события выполнения от робота.
type Tracker struct {
	jobs  JobStore
	locks *joblock.Registry

	conn     *mq.Connection
	consumer *mq.Consumer

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Tracker.
type Config struct {
	Jobs JobStore

	// Locks — реестр per-job блокировок (общий с manager'ом и dispatcher'ом).
	Locks *joblock.Registry

	// Conn — соединение с RabbitMQ (опционально; nil — только прямые вызовы).
	Conn *mq.Connection

	Logger *slog.Logger
}

// New создаёт новый Tracker.
func New(cfg Config) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	locks := cfg.Locks
	if locks == nil {
		locks = joblock.New()
	}

	return &Tracker{
		jobs:   cfg.Jobs,
		locks:  locks,
		conn:   cfg.Conn,
		logger: logger,
	}
}

// Start запускает потребление очереди robot.acks.
func (t *Tracker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	t.cancelFunc = cancel

	if t.conn != nil {
		t.consumer = mq.NewConsumer(t.conn, t.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueRobotAcks),
			Handler:  t.handleAck,
			Prefetch: 50,
		})

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			if err := t.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Error("ack consumer error", "error", err)
			}
		}()
	}

	t.logger.Info("execution tracker started")
	return nil
}

// Stop останавливает Tracker.
func (t *Tracker) Stop() {
	t.logger.Info("stopping execution tracker...")

	if t.cancelFunc != nil {
		t.cancelFunc()
	}
	if t.consumer != nil {
		t.consumer.Stop()
	}
	t.wg.Wait()

	t.logger.Info("execution tracker stopped")
}

// handleAck обрабатывает событие из очереди robot.acks.
func (t *Tracker) handleAck(ctx context.Context, msg *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.AckPayload](&msg.Message)
	if err != nil {
		t.logger.Error("invalid ack payload", "error", err)
		return nil
	}

	telemetry.AcksReceived.WithLabelValues(string(payload.Event)).Inc()

	switch payload.Event {
	case mq.AckEventAck:
		err = t.OnAck(ctx, payload.JobID, payload.Seq)
	case mq.AckEventComplete:
		err = t.OnComplete(ctx, payload.JobID, payload.Seq)
	case mq.AckEventFault:
		err = t.OnFault(ctx, payload.JobID, payload.Seq, payload.Reason)
	default:
		t.logger.Warn("unknown ack event", "event", payload.Event, "job_id", payload.JobID)
		return nil
	}

	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Ack для неизвестного job: дропаем, повтор не поможет.
			telemetry.AcksDropped.Inc()
			t.logger.Warn("ack for unknown job, dropping",
				"job_id", payload.JobID,
				"seq", payload.Seq,
			)
			return nil
		}
		// ErrJobNotReady и инфраструктурные ошибки: requeue и повтор.
		return err
	}

	return nil
}

// OnAck обрабатывает подтверждение выполнения инструкции seq.
//
// Продвигает watermark до max(current, seq); первый ack после DISPATCHED
// переводит job в EXECUTING. Дубликаты и запоздавшие ack'и — no-op.
func (t *Tracker) OnAck(ctx context.Context, jobID uuid.UUID, seq int64) error {
	unlock := t.locks.Lock(jobID)
	defer unlock()

	job, err := t.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	if job.IsFinished() {
		// Запоздавший ack после завершения: без эффекта.
		telemetry.AcksDropped.Inc()
		return nil
	}

	advanced := job.AdvanceWatermark(seq)

	transitioned := false
	if job.Status == domain.JobStatusDispatched {
		if err := job.MarkExecuting(); err != nil {
			return err
		}
		transitioned = true
	}

	if !advanced && !transitioned {
		telemetry.AcksDropped.Inc()
		return nil
	}

	if err := t.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist watermark: %w", err)
	}

	t.logger.Debug("instruction acked",
		"job_id", jobID,
		"seq", seq,
		"watermark", job.AckWatermark,
		"status", job.Status,
	)
	return nil
}

// OnComplete обрабатывает сообщение робота о завершении маршрута.
//
// COMPLETE засчитывается как ack своего seq. Если после этого watermark
// покрывает весь план, job закрывается. Если нет — робот объявил
// завершение раньше последней инструкции (ErrIncompletePath): job
// остаётся в EXECUTING и ждёт недостающие ack'и; не дождётся — его
// закроет ExecutionTimeout. COMPLETE, пришедший раньше, чем диспетчер
// зафиксировал DISPATCHED, возвращается в очередь и обрабатывается после.
func (t *Tracker) OnComplete(ctx context.Context, jobID uuid.UUID, seq int64) error {
	unlock := t.locks.Lock(jobID)
	defer unlock()

	job, err := t.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	if job.IsFinished() {
		// Повторная доставка COMPLETE для уже закрытого job.
		telemetry.AcksDropped.Inc()
		return nil
	}

	if job.Status == domain.JobStatusDispatching {
		// Диспетчер ещё не зафиксировал DISPATCHED: повторим позже.
		return fmt.Errorf("%w: job %s is %s", ErrJobNotReady, jobID, job.Status)
	}

	job.AdvanceWatermark(seq)

	if job.Status == domain.JobStatusDispatched {
		if err := job.MarkExecuting(); err != nil {
			return err
		}
	}

	if job.AckWatermark != job.FinalSeq {
		if err := t.jobs.Update(ctx, job); err != nil {
			return fmt.Errorf("persist watermark: %w", err)
		}
		t.logger.Warn("premature complete, awaiting missing acks",
			"job_id", jobID,
			"error", ErrIncompletePath,
			"watermark", job.AckWatermark,
			"final_seq", job.FinalSeq,
		)
		return nil
	}

	if err := job.MarkCompleted(); err != nil {
		return err
	}

	if err := t.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist completion: %w", err)
	}

	telemetry.JobsCompleted.Inc()
	telemetry.ActiveJobs.Dec()
	t.logger.Info("job completed",
		"job_id", jobID,
		"instructions", job.FinalSeq,
	)
	return nil
}

// OnFault обрабатывает отказ робота: job переводится в FAILED.
func (t *Tracker) OnFault(ctx context.Context, jobID uuid.UUID, seq int64, reason string) error {
	unlock := t.locks.Lock(jobID)
	defer unlock()

	job, err := t.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	if job.IsFinished() {
		telemetry.AcksDropped.Inc()
		return nil
	}

	detail := fmt.Sprintf("robot fault at seq %d: %s", seq, reason)
	return t.failLocked(ctx, job, domain.ReasonFault, detail)
}

// failLocked переводит job в FAILED. Вызывается под per-job блокировкой.
func (t *Tracker) failLocked(ctx context.Context, job *domain.Job, reason domain.FailureReason, detail string) error {
	if err := job.MarkFailed(reason, detail); err != nil {
		return err
	}
	if err := t.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist failure: %w", err)
	}

	telemetry.JobsFailed.WithLabelValues(string(reason)).Inc()
	telemetry.ActiveJobs.Dec()
	t.logger.Warn("job failed",
		"job_id", job.ID,
		"reason", reason,
		"detail", detail,
	)
	return nil
}
