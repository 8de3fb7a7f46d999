package planner

import "errors"

// Ошибки планировщика. Терминальны для job, но не фатальны для сервиса.
var (
	// ErrUnreachable — цель или часть региона недостижима из старта.
	ErrUnreachable = errors.New("goal unreachable")

	// ErrEmptyRegion — регион покрытия не содержит проходимых ячеек.
	ErrEmptyRegion = errors.New("coverage region has no traversable cells")

	// ErrBudgetExceeded — исчерпан бюджет раскрытий frontier.
	ErrBudgetExceeded = errors.New("expansion budget exceeded")
)
