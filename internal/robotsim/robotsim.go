// Package robotsim — симулятор робота для локальной разработки и
// интеграционных прогонов.
//
// Симулятор потребляет инструкции из очереди instructions.outbound,
// "выполняет" каждую с настраиваемой задержкой и публикует ack'и в
// robot.acks. Повторная доставка инструкции (тот же idempotency token)
// не выполняется заново, но ack публикуется повторно: исходный ack мог
// потеряться, а tracker поглощает дубликаты.
package robotsim

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fresco/internal/mq"
)

// defaultStepDelay — задержка "выполнения" одной инструкции.
const defaultStepDelay = 50 * time.Millisecond

// AckPublisher — публикация событий робота. Реализуется mq.Publisher.
type AckPublisher interface {
	PublishAck(ctx context.Context, payload mq.AckPayload) error
}

// Robot — симулятор робота.
type Robot struct {
	publisher AckPublisher

	conn     *mq.Connection
	consumer *mq.Consumer

	stepDelay time.Duration
	faultRate float64
	rng       *rand.Rand

	// applied — выполненные инструкции, по job.
	applied   map[uuid.UUID]map[int64]struct{}
	appliedMu sync.Mutex

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация симулятора.
type Config struct {
	// Conn — соединение с RabbitMQ.
	Conn *mq.Connection

	// Publisher — публикация ack'ов.
	Publisher AckPublisher

	// StepDelay — задержка выполнения инструкции (default: 50ms).
	StepDelay time.Duration

	// FaultRate — вероятность отказа на инструкцию, [0, 1) (default: 0).
	FaultRate float64

	// Seed — seed генератора отказов (0 — от текущего времени).
	Seed int64

	Logger *slog.Logger
}

// New создаёт симулятор робота.
func New(cfg Config) *Robot {
	stepDelay := cfg.StepDelay
	if stepDelay <= 0 {
		stepDelay = defaultStepDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Robot{
		publisher: cfg.Publisher,
		conn:      cfg.Conn,
		stepDelay: stepDelay,
		faultRate: cfg.FaultRate,
		rng:       rand.New(rand.NewSource(seed)),
		applied:   make(map[uuid.UUID]map[int64]struct{}),
		logger:    logger,
	}
}

// Start запускает потребление инструкций.
func (r *Robot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	r.consumer = mq.NewConsumer(r.conn, r.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueInstructionsOutbound),
		Handler:  r.handleInstruction,
		Prefetch: 1, // инструкции выполняются по одной, в порядке доставки
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("instruction consumer error", "error", err)
		}
	}()

	r.logger.Info("robot simulator started",
		"step_delay", r.stepDelay,
		"fault_rate", r.faultRate,
	)
	return nil
}

// Stop останавливает симулятор.
func (r *Robot) Stop() {
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	if r.consumer != nil {
		r.consumer.Stop()
	}
	r.wg.Wait()
	r.logger.Info("robot simulator stopped")
}

// handleInstruction обрабатывает одну инструкцию.
func (r *Robot) handleInstruction(ctx context.Context, msg *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.InstructionPayload](&msg.Message)
	if err != nil {
		r.logger.Error("invalid instruction payload", "error", err)
		return nil
	}

	if r.markApplied(payload.JobID, payload.Seq) {
		// Новая инструкция: выполняем.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.stepDelay):
		}

		if r.faultRate > 0 && r.rng.Float64() < r.faultRate {
			r.logger.Warn("injected fault",
				"job_id", payload.JobID,
				"seq", payload.Seq,
			)
			return r.publisher.PublishAck(ctx, mq.AckPayload{
				JobID:  payload.JobID,
				Seq:    payload.Seq,
				Event:  mq.AckEventFault,
				Reason: "simulated actuator fault",
			})
		}
	} else {
		r.logger.Debug("duplicate instruction, re-acking",
			"job_id", payload.JobID,
			"seq", payload.Seq,
		)
	}

	if err := r.publisher.PublishAck(ctx, mq.AckPayload{
		JobID: payload.JobID,
		Seq:   payload.Seq,
		Event: mq.AckEventAck,
	}); err != nil {
		return err
	}

	if payload.IsFinal {
		r.forget(payload.JobID)
		return r.publisher.PublishAck(ctx, mq.AckPayload{
			JobID: payload.JobID,
			Seq:   payload.Seq,
			Event: mq.AckEventComplete,
		})
	}

	return nil
}

// markApplied отмечает инструкцию выполненной.
// Возвращает false, если она уже выполнялась.
func (r *Robot) markApplied(jobID uuid.UUID, seq int64) bool {
	r.appliedMu.Lock()
	defer r.appliedMu.Unlock()

	seqs, ok := r.applied[jobID]
	if !ok {
		seqs = make(map[int64]struct{})
		r.applied[jobID] = seqs
	}
	if _, dup := seqs[seq]; dup {
		return false
	}
	seqs[seq] = struct{}{}
	return true
}

// forget освобождает состояние завершённого job.
func (r *Robot) forget(jobID uuid.UUID) {
	r.appliedMu.Lock()
	defer r.appliedMu.Unlock()
	delete(r.applied, jobID)
}
