package domain

import (
	"time"

	"github.com/google/uuid"
)

// ObstacleMap — версионированная карта препятствий стены.
//
// Карта неизменяема: приём новых данных с сенсоров создаёт новую версию,
// никогда не редактирует существующую. Планировщик работает со снапшотом
// конкретной версии, поэтому гонок между планированием и приёмом данных
// нет по построению.
type ObstacleMap struct {
	// WallID — стена, к которой относится карта.
	WallID uuid.UUID `json:"wall_id"`

	// Version — монотонно растущий номер версии (начиная с 1).
	Version int64 `json:"version"`

	// Blocked — разреженный список занятых ячеек.
	Blocked []Cell `json:"blocked"`

	// UpdatedAt — время приёма данных этой версии.
	UpdatedAt time.Time `json:"updated_at"`
}

// BlockedSet возвращает занятые ячейки в виде множества.
func (m *ObstacleMap) BlockedSet() map[Cell]struct{} {
	set := make(map[Cell]struct{}, len(m.Blocked))
	for _, c := range m.Blocked {
		set[c] = struct{}{}
	}
	return set
}

// IsBlocked проверяет, занята ли ячейка.
// Для единичных проверок; для массовых запросов используйте BlockedSet.
func (m *ObstacleMap) IsBlocked(c Cell) bool {
	for _, b := range m.Blocked {
		if b == c {
			return true
		}
	}
	return false
}
