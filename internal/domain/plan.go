package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Ошибки валидации запроса.
var (
	// ErrInvalidRequest — запрос на планирование некорректен.
	ErrInvalidRequest = errors.New("invalid plan request")
)

// PlanRequest — запрос на планирование маршрута.
//
// Создаётся один раз на вызов API и неизменяем. Ровно одно из полей
// Goal / Region должно быть задано: либо маршрут к одной ячейке, либо
// покрытие области.
type PlanRequest struct {
	// WallID — стена, для которой планируем.
	WallID uuid.UUID `json:"wall_id"`

	// Start — стартовая ячейка робота.
	Start Cell `json:"start"`

	// Goal — целевая ячейка (для одиночного маршрута).
	Goal *Cell `json:"goal,omitempty"`

	// Region — область покрытия (для coverage-планирования).
	Region *Rect `json:"region,omitempty"`

	// MinVersion — минимально допустимая версия карты препятствий.
	// Защита от планирования по устаревшему кэшу.
	MinVersion int64 `json:"min_version"`

	// IdempotencyKey — ключ идемпотентности, задаётся вызывающей стороной.
	IdempotencyKey string `json:"idempotency_key"`
}

// IsCoverage возвращает true для запроса покрытия области.
func (r *PlanRequest) IsCoverage() bool {
	return r.Region != nil
}

// Matches сравнивает содержимое запросов без учёта ключа идемпотентности.
// Повторный submit с тем же ключом, но другим содержимым — конфликт,
// а не дедупликация.
func (r *PlanRequest) Matches(other *PlanRequest) bool {
	if r.WallID != other.WallID || r.Start != other.Start || r.MinVersion != other.MinVersion {
		return false
	}
	if (r.Goal == nil) != (other.Goal == nil) || (r.Region == nil) != (other.Region == nil) {
		return false
	}
	if r.Goal != nil && *r.Goal != *other.Goal {
		return false
	}
	if r.Region != nil && *r.Region != *other.Region {
		return false
	}
	return true
}

// Validate проверяет корректность запроса.
func (r *PlanRequest) Validate() error {
	if r.WallID == uuid.Nil {
		return errors.New("wall_id is required")
	}
	if r.IdempotencyKey == "" {
		return errors.New("idempotency_key is required")
	}
	if (r.Goal == nil) == (r.Region == nil) {
		return errors.New("exactly one of goal or region must be set")
	}
	if r.Region != nil && !r.Region.Valid() {
		return errors.New("region is degenerate")
	}
	if r.MinVersion < 0 {
		return errors.New("min_version must be non-negative")
	}
	return nil
}

// PlannedPath — результат планирования.
//
// Создаётся планировщиком один раз, неизменяем, сохраняется в БД.
type PlannedPath struct {
	// ID — уникальный идентификатор плана.
	ID uuid.UUID `json:"id"`

	// WallID — стена, для которой построен план.
	WallID uuid.UUID `json:"wall_id"`

	// MapVersion — версия карты препятствий, по которой строился план.
	MapVersion int64 `json:"map_version"`

	// Waypoints — упорядоченная последовательность точек маршрута.
	// Никогда не пуста; каждая пара соседних точек достижима за один шаг.
	Waypoints []Waypoint `json:"waypoints"`

	// Cost — суммарная стоимость маршрута.
	Cost int64 `json:"cost"`

	// CreatedAt — время создания плана.
	CreatedAt time.Time `json:"created_at"`
}

// FinalSeq возвращает номер последней инструкции плана.
// Инструкции нумеруются с 1, по одной на waypoint.
func (p *PlannedPath) FinalSeq() int64 {
	return int64(len(p.Waypoints))
}
