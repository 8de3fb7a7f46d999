package domain

// JobStatus — статус выполнения job.
//
// Жизненный цикл:
//
//	CREATED → PLANNING → PLANNED → DISPATCHING → DISPATCHED → EXECUTING → COMPLETED
//	FAILED    — из любого нетерминального статуса
//	CANCELLED — только из CREATED / PLANNING / PLANNED
type JobStatus string

const (
	// JobStatusCreated — job создан, планирование ещё не началось.
	JobStatusCreated JobStatus = "CREATED"

	// JobStatusPlanning — планировщик строит маршрут.
	JobStatusPlanning JobStatus = "PLANNING"

	// JobStatusPlanned — маршрут построен и сохранён.
	JobStatusPlanned JobStatus = "PLANNED"

	// JobStatusDispatching — инструкции публикуются в очередь.
	JobStatusDispatching JobStatus = "DISPATCHING"

	// JobStatusDispatched — брокер подтвердил приём последней инструкции.
	JobStatusDispatched JobStatus = "DISPATCHED"

	// JobStatusExecuting — робот начал подтверждать инструкции.
	JobStatusExecuting JobStatus = "EXECUTING"

	// JobStatusCompleted — все инструкции подтверждены, выполнение завершено.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusFailed — job завершился с ошибкой.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusCancelled — job отменён до отправки инструкций.
	JobStatusCancelled JobStatus = "CANCELLED"
)

// transitions — допустимые переходы статусов.
var transitions = map[JobStatus][]JobStatus{
	JobStatusCreated:     {JobStatusPlanning, JobStatusFailed, JobStatusCancelled},
	JobStatusPlanning:    {JobStatusPlanned, JobStatusFailed, JobStatusCancelled},
	JobStatusPlanned:     {JobStatusDispatching, JobStatusFailed, JobStatusCancelled},
	JobStatusDispatching: {JobStatusDispatched, JobStatusFailed},
	JobStatusDispatched:  {JobStatusExecuting, JobStatusFailed},
	JobStatusExecuting:   {JobStatusCompleted, JobStatusFailed},
}

// CanTransition проверяет допустимость перехода в статус to.
func (s JobStatus) CanTransition(to JobStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsCancellable возвращает true, если из статуса допустима отмена.
// После начала отправки инструкций отмена невозможна.
func (s JobStatus) IsCancellable() bool {
	switch s {
	case JobStatusCreated, JobStatusPlanning, JobStatusPlanned:
		return true
	default:
		return false
	}
}

// FailureReason — причина перевода job в FAILED.
type FailureReason string

const (
	// ReasonUnreachable — цель или часть региона недостижима.
	ReasonUnreachable FailureReason = "Unreachable"

	// ReasonEmptyRegion — регион покрытия не содержит проходимых ячеек.
	ReasonEmptyRegion FailureReason = "EmptyRegion"

	// ReasonPlannerTimeout — планировщик исчерпал бюджет раскрытий.
	ReasonPlannerTimeout FailureReason = "PlannerTimeout"

	// ReasonMapNotFound — стена или карта препятствий не найдена.
	ReasonMapNotFound FailureReason = "NotFound"

	// ReasonStaleMap — хранилище не смогло выдать карту нужной версии.
	ReasonStaleMap FailureReason = "Stale"

	// ReasonDispatchFailure — публикация инструкций исчерпала retry.
	ReasonDispatchFailure FailureReason = "DispatchFailure"

	// ReasonExecutionTimeout — робот не подтверждал прогресс дольше дедлайна.
	ReasonExecutionTimeout FailureReason = "ExecutionTimeout"

	// ReasonFault — робот сообщил об отказе.
	ReasonFault FailureReason = "Fault"
)
