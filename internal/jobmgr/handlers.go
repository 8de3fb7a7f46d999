package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fresco/internal/cache"
	"github.com/shaiso/Fresco/internal/domain"
	"github.com/shaiso/Fresco/internal/mq"
	"github.com/shaiso/Fresco/internal/planner"
	"github.com/shaiso/Fresco/internal/repo"
	"github.com/shaiso/Fresco/internal/spatial"
	"github.com/shaiso/Fresco/internal/telemetry"
)

// Submit принимает запрос на планирование и создаёт job.
//
// Повторный запрос с тем же IdempotencyKey возвращает существующий job
// без создания нового. Гонка одновременных submit'ов с одним ключом
// разрешается уникальным ограничением БД: проигравший Create получает
// ErrAlreadyExists и перечитывает job победителя.
func (m *Manager) Submit(ctx context.Context, req domain.PlanRequest) (*domain.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	if existing, err := m.jobs.GetByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		if !existing.Request.Matches(&req) {
			return nil, fmt.Errorf("%w: key %q is bound to a different request",
				ErrConflict, req.IdempotencyKey)
		}
		telemetry.JobsDeduplicated.Inc()
		m.logger.Info("duplicate submission, returning existing job",
			"job_id", existing.ID,
			"idempotency_key", req.IdempotencyKey,
		)
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("lookup by idempotency key: %w", err)
	}

	job := domain.NewJob(req)

	if err := m.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			// Гонка: параллельный submit с тем же ключом успел раньше.
			existing, getErr := m.jobs.GetByIdempotencyKey(ctx, req.IdempotencyKey)
			if getErr != nil {
				return nil, fmt.Errorf("refetch after duplicate create: %w", getErr)
			}
			if !existing.Request.Matches(&req) {
				return nil, fmt.Errorf("%w: key %q is bound to a different request",
					ErrConflict, req.IdempotencyKey)
			}
			telemetry.JobsDeduplicated.Inc()
			return existing, nil
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	telemetry.JobsSubmitted.Inc()
	telemetry.ActiveJobs.Inc()
	m.logger.Info("job submitted",
		"job_id", job.ID,
		"wall_id", job.WallID,
		"coverage", req.IsCoverage(),
	)

	// Продвигаем job сразу, не дожидаясь polling.
	if err := m.process(ctx, job.ID); err != nil {
		m.logger.Error("failed to process submitted job",
			"job_id", job.ID,
			"error", err,
		)
		// Job сохранён — polling подхватит его позже.
	}

	// Перечитываем актуальное состояние после process.
	fresh, err := m.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return job, nil
	}
	return fresh, nil
}

// Status возвращает текущее состояние job.
func (m *Manager) Status(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// Cancel отменяет job, если отправка инструкций ещё не началась.
//
// Проверка статуса и переход выполняются под per-job блокировкой,
// поэтому Cancel не может вклиниться между Planned и Dispatching:
// либо он успевает до перехода, либо получает ErrJobNotCancellable.
func (m *Manager) Cancel(ctx context.Context, jobID uuid.UUID) (*domain.Job, error) {
	unlock := m.locks.Lock(jobID)
	defer unlock()

	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	if err := job.MarkCancelled(); err != nil {
		return nil, fmt.Errorf("%w: status %s", ErrJobNotCancellable, job.Status)
	}

	if err := m.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("persist cancellation: %w", err)
	}

	telemetry.ActiveJobs.Dec()
	m.logger.Info("job cancelled", "job_id", job.ID)
	return job, nil
}

// handleJobSubmitted обрабатывает сообщение jobs.submitted.
func (m *Manager) handleJobSubmitted(ctx context.Context, msg *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.JobSubmittedPayload](&msg.Message)
	if err != nil {
		// Payload не станет корректным при повторе — подтверждаем и дропаем.
		m.logger.Error("invalid job.submitted payload", "error", err)
		return nil
	}

	return m.process(ctx, payload.JobID)
}

// process продвигает job по машине состояний до ближайшей точки ожидания.
//
// Идемпотентен по статусу: вызов для job в любом состоянии либо делает
// следующий шаг, либо ничего не делает. Каждый переход сохраняется до
// начала следующего шага. Per-job блокировка сериализует process с
// Cancel и tracker'ом; Dispatch вызывается вне блокировки, чтобы не
// держать её на время ожиданий publisher confirm.
func (m *Manager) process(ctx context.Context, jobID uuid.UUID) error {
	unlock := m.locks.Lock(jobID)

	job, err := m.jobs.GetByID(ctx, jobID)
	if err != nil {
		unlock()
		if errors.Is(err, repo.ErrNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("load job: %w", err)
	}

	dispatch := false

	switch job.Status {
	case domain.JobStatusCreated:
		if err := job.MarkPlanning(); err != nil {
			unlock()
			return err
		}
		if err := m.jobs.Update(ctx, job); err != nil {
			unlock()
			return fmt.Errorf("persist planning: %w", err)
		}
		fallthrough

	case domain.JobStatusPlanning:
		// Сюда же попадают jobs, брошенные в PLANNING при рестарте:
		// план не привязан, значит планирование повторяется с нуля.
		if err := m.plan(ctx, job); err != nil {
			unlock()
			return err
		}
		if job.Status != domain.JobStatusPlanned {
			// Планирование провалилось, job уже FAILED.
			unlock()
			return nil
		}
		fallthrough

	case domain.JobStatusPlanned:
		if m.dispatcher == nil {
			// Отправлять некуда: job остаётся в PLANNED до появления
			// диспетчера (polling подхватит).
			unlock()
			return nil
		}
		if err := job.MarkDispatching(); err != nil {
			unlock()
			return err
		}
		if err := m.jobs.Update(ctx, job); err != nil {
			unlock()
			return fmt.Errorf("persist dispatching: %w", err)
		}
		dispatch = true

	case domain.JobStatusDispatching:
		// Рестарт посреди отправки: диспетчер продолжит с PublishedSeq+1.
		dispatch = true

	default:
		// DISPATCHED и дальше двигает tracker; терминальные не трогаем.
	}

	unlock()

	if dispatch && m.dispatcher != nil {
		if err := m.dispatcher.Dispatch(ctx, jobID); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
	}

	return nil
}

// plan строит маршрут для job и переводит его в PLANNED или FAILED.
//
// Ошибки планирования — часть доменного результата: они переводят job
// в FAILED с причиной и не возвращаются наверх. Наверх уходят только
// инфраструктурные ошибки (БД, кэш недоступен).
func (m *Manager) plan(ctx context.Context, job *domain.Job) error {
	started := time.Now()

	wall, err := m.walls.GetByID(ctx, job.WallID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return m.failJob(ctx, job, domain.ReasonMapNotFound,
				fmt.Sprintf("wall %s does not exist", job.WallID))
		}
		return fmt.Errorf("load wall: %w", err)
	}

	obstacleMap, err := m.maps.Get(ctx, job.WallID, job.Request.MinVersion)
	if err != nil {
		switch {
		case errors.Is(err, cache.ErrNotFound):
			return m.failJob(ctx, job, domain.ReasonMapNotFound,
				fmt.Sprintf("no obstacle map for wall %s", job.WallID))
		case errors.Is(err, cache.ErrStale):
			return m.failJob(ctx, job, domain.ReasonStaleMap, err.Error())
		default:
			return fmt.Errorf("load obstacle map: %w", err)
		}
	}

	snap := spatial.NewSnapshot(wall, obstacleMap)

	var path *planner.Path
	if job.Request.IsCoverage() {
		path, err = planner.CoverRegion(snap, job.Request.Start, *job.Request.Region, m.budget)
	} else {
		path, err = planner.FindPath(snap, job.Request.Start, *job.Request.Goal, m.budget)
	}
	if err != nil {
		switch {
		case errors.Is(err, planner.ErrUnreachable):
			return m.failJob(ctx, job, domain.ReasonUnreachable, err.Error())
		case errors.Is(err, planner.ErrEmptyRegion):
			return m.failJob(ctx, job, domain.ReasonEmptyRegion, err.Error())
		case errors.Is(err, planner.ErrBudgetExceeded):
			return m.failJob(ctx, job, domain.ReasonPlannerTimeout, err.Error())
		default:
			return fmt.Errorf("plan path: %w", err)
		}
	}

	plan := &domain.PlannedPath{
		ID:         uuid.New(),
		WallID:     job.WallID,
		MapVersion: obstacleMap.Version,
		Waypoints:  domain.WaypointsFromCells(path.Cells),
		Cost:       path.Cost,
		CreatedAt:  time.Now().UTC(),
	}

	if err := m.plans.Create(ctx, plan); err != nil {
		return fmt.Errorf("persist plan: %w", err)
	}

	if err := job.MarkPlanned(plan); err != nil {
		return err
	}
	if err := m.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist planned: %w", err)
	}

	telemetry.PlansComputed.Inc()
	telemetry.PlanWaypoints.Observe(float64(len(plan.Waypoints)))
	m.logger.Info("plan computed",
		"job_id", job.ID,
		"plan_id", plan.ID,
		"map_version", plan.MapVersion,
		"waypoints", len(plan.Waypoints),
		"cost", plan.Cost,
		"duration", time.Since(started),
	)
	return nil
}

// failJob переводит job в FAILED и сохраняет причину.
func (m *Manager) failJob(ctx context.Context, job *domain.Job, reason domain.FailureReason, detail string) error {
	if err := job.MarkFailed(reason, detail); err != nil {
		return err
	}
	if err := m.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("persist failure: %w", err)
	}

	telemetry.JobsFailed.WithLabelValues(string(reason)).Inc()
	telemetry.ActiveJobs.Dec()
	m.logger.Warn("job failed",
		"job_id", job.ID,
		"reason", reason,
		"detail", detail,
	)
	return nil
}
