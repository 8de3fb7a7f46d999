package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition — попытка недопустимого перехода статуса job.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Job — единица работы: запрос на планирование и его выполнение роботом.
//
// Job оборачивает PlannedPath состоянием диспетчеризации и выполнения.
// Все мутации проходят через методы-переходы, каждый переход сохраняется
// в БД до следующего шага (write-ahead), поэтому после рестарта процесс
// продолжает job с последнего сохранённого состояния.
type Job struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// WallID — стена, для которой выполняется job.
	WallID uuid.UUID `json:"wall_id"`

	// Request — исходный запрос на планирование.
	Request PlanRequest `json:"request"`

	// Status — текущий статус в машине состояний.
	Status JobStatus `json:"status"`

	// PlanID — ссылка на построенный план. Nil до статуса PLANNED.
	PlanID *uuid.UUID `json:"plan_id,omitempty"`

	// MapVersion — версия карты, по которой строился план.
	MapVersion int64 `json:"map_version,omitempty"`

	// FinalSeq — номер последней инструкции плана (== количеству waypoints).
	FinalSeq int64 `json:"final_seq,omitempty"`

	// PublishedSeq — номер последней инструкции, приём которой подтвердил
	// брокер. Продвигается диспетчером после каждого publisher confirm;
	// после рестарта отправка продолжается с PublishedSeq+1.
	PublishedSeq int64 `json:"published_seq"`

	// AckWatermark — номер последней инструкции, подтверждённой роботом.
	// Монотонно неубывающий: дубликаты и запоздавшие ack его не откатывают.
	AckWatermark int64 `json:"ack_watermark"`

	// DispatchAttempts — количество попыток публикации (для bounded retry).
	DispatchAttempts int `json:"dispatch_attempts"`

	// Reason — причина провала (для FAILED).
	Reason FailureReason `json:"reason,omitempty"`

	// Error — детали ошибки.
	Error string `json:"error,omitempty"`

	// LastAckAt — время последнего продвижения watermark.
	// Используется sweeper'ом для ExecutionTimeout.
	LastAckAt *time.Time `json:"last_ack_at,omitempty"`

	// FinishedAt — время перехода в терминальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания job.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`

	// Version — счётчик изменений строки в БД (optimistic lock).
	// Ведётся репозиторием: per-job блокировки сериализуют писателей
	// только внутри одного процесса, а sweeper и CLI живут в своих.
	Version int64 `json:"-"`
}

// NewJob создаёт job в статусе CREATED из валидного запроса.
func NewJob(req PlanRequest) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		WallID:    req.WallID,
		Request:   req,
		Status:    JobStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsFinished возвращает true, если job в терминальном статусе.
func (j *Job) IsFinished() bool {
	return j.Status.IsTerminal()
}

// transition выполняет переход и обновляет UpdatedAt.
func (j *Job) transition(to JobStatus) error {
	if !j.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	j.UpdatedAt = time.Now().UTC()
	if to.IsTerminal() {
		now := j.UpdatedAt
		j.FinishedAt = &now
	}
	return nil
}

// MarkPlanning переводит job в PLANNING.
func (j *Job) MarkPlanning() error {
	return j.transition(JobStatusPlanning)
}

// MarkPlanned переводит job в PLANNED и привязывает построенный план.
func (j *Job) MarkPlanned(plan *PlannedPath) error {
	if err := j.transition(JobStatusPlanned); err != nil {
		return err
	}
	planID := plan.ID
	j.PlanID = &planID
	j.MapVersion = plan.MapVersion
	j.FinalSeq = plan.FinalSeq()
	return nil
}

// MarkDispatching переводит job в DISPATCHING.
func (j *Job) MarkDispatching() error {
	return j.transition(JobStatusDispatching)
}

// MarkDispatched переводит job в DISPATCHED.
// Допустим только после подтверждения последней инструкции брокером.
func (j *Job) MarkDispatched() error {
	if j.PublishedSeq != j.FinalSeq {
		return fmt.Errorf("%w: published %d of %d instructions",
			ErrInvalidTransition, j.PublishedSeq, j.FinalSeq)
	}
	return j.transition(JobStatusDispatched)
}

// MarkExecuting переводит job в EXECUTING (первый ack от робота).
func (j *Job) MarkExecuting() error {
	return j.transition(JobStatusExecuting)
}

// MarkCompleted переводит job в COMPLETED.
// Допустим только когда подтверждены все инструкции.
func (j *Job) MarkCompleted() error {
	if j.AckWatermark != j.FinalSeq {
		return fmt.Errorf("%w: acked %d of %d instructions",
			ErrInvalidTransition, j.AckWatermark, j.FinalSeq)
	}
	return j.transition(JobStatusCompleted)
}

// MarkFailed переводит job в FAILED с причиной.
// Допустим из любого нетерминального статуса.
func (j *Job) MarkFailed(reason FailureReason, detail string) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusFailed
	j.Reason = reason
	j.Error = detail
	j.UpdatedAt = time.Now().UTC()
	now := j.UpdatedAt
	j.FinishedAt = &now
	return nil
}

// MarkCancelled переводит job в CANCELLED.
// Допустим только до начала отправки инструкций.
func (j *Job) MarkCancelled() error {
	if !j.Status.IsCancellable() {
		return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusCancelled
	j.UpdatedAt = time.Now().UTC()
	now := j.UpdatedAt
	j.FinishedAt = &now
	return nil
}

// AdvancePublished продвигает watermark подтверждённых брокером инструкций.
func (j *Job) AdvancePublished(seq int64) {
	if seq > j.PublishedSeq {
		j.PublishedSeq = seq
		j.UpdatedAt = time.Now().UTC()
	}
}

// AdvanceWatermark продвигает ack watermark до max(current, seq).
// Возвращает true, если watermark продвинулся; дубликаты и запоздавшие
// подтверждения возвращают false и ничего не меняют.
func (j *Job) AdvanceWatermark(seq int64) bool {
	if seq <= j.AckWatermark {
		return false
	}
	j.AckWatermark = seq
	now := time.Now().UTC()
	j.LastAckAt = &now
	j.UpdatedAt = now
	return true
}
