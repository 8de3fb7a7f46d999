package spatial

import (
	"github.com/shaiso/Fresco/internal/domain"
)

// Стоимости шагов. Целочисленная аппроксимация: диагональ = sqrt(2) * 10.
// Целые стоимости позволяют сравнивать планы в тестах без эпсилонов.
const (
	// CostStraight — стоимость горизонтального/вертикального шага.
	CostStraight int64 = 10

	// CostDiagonal — стоимость диагонального шага.
	CostDiagonal int64 = 14
)

// directions — порядок обхода соседей.
// Фиксированный порядок даёт детерминированный вывод планировщика.
var directions = [8][2]int{
	{0, 1},   // N
	{1, 1},   // NE
	{1, 0},   // E
	{1, -1},  // SE
	{0, -1},  // S
	{-1, -1}, // SW
	{-1, 0},  // W
	{-1, 1},  // NW
}

// Snapshot — неизменяемый снимок проходимого пространства стены.
//
// Снимок связывает сетку WallSurface с конкретной версией ObstacleMap.
// Приём новых данных о препятствиях создаёт новые версии карты и не
// затрагивает уже выданные снимки, поэтому планирование в полёте
// продолжается по своей версии без блокировок.
type Snapshot struct {
	wall    *domain.WallSurface
	version int64
	blocked map[domain.Cell]struct{}
}

// NewSnapshot создаёт снимок из стены и карты препятствий.
func NewSnapshot(wall *domain.WallSurface, m *domain.ObstacleMap) *Snapshot {
	return &Snapshot{
		wall:    wall,
		version: m.Version,
		blocked: m.BlockedSet(),
	}
}

// Wall возвращает стену снимка.
func (s *Snapshot) Wall() *domain.WallSurface {
	return s.wall
}

// Version возвращает версию карты препятствий снимка.
func (s *Snapshot) Version() int64 {
	return s.version
}

// IsBlocked проверяет, занята ли ячейка препятствием.
func (s *Snapshot) IsBlocked(c domain.Cell) bool {
	_, ok := s.blocked[c]
	return ok
}

// Traversable проверяет, что ячейка внутри сетки и не занята.
func (s *Snapshot) Traversable(c domain.Cell) bool {
	return s.wall.Contains(c) && !s.IsBlocked(c)
}

// Neighbors возвращает проходимых соседей ячейки (8-связность).
// Занятые и выходящие за границы ячейки исключаются.
// Порядок соседей фиксирован.
func (s *Snapshot) Neighbors(c domain.Cell) []domain.Cell {
	result := make([]domain.Cell, 0, 8)
	for _, d := range directions {
		n := domain.Cell{X: c.X + d[0], Y: c.Y + d[1]}
		if s.Traversable(n) {
			result = append(result, n)
		}
	}
	return result
}

// StepCost возвращает стоимость шага между соседними ячейками.
// Стоимости удовлетворяют неравенству треугольника, поэтому октильная
// эвристика остаётся допустимой.
func (s *Snapshot) StepCost(a, b domain.Cell) int64 {
	if a.X != b.X && a.Y != b.Y {
		return CostDiagonal
	}
	return CostStraight
}

// Heuristic возвращает октильное расстояние от a до goal — допустимую и
// согласованную оценку остаточной стоимости (никогда не завышает).
func (s *Snapshot) Heuristic(a, goal domain.Cell) int64 {
	dx := abs(a.X - goal.X)
	dy := abs(a.Y - goal.Y)
	if dx < dy {
		dx, dy = dy, dx
	}
	// dy диагональных шагов + (dx-dy) прямых.
	return CostDiagonal*int64(dy) + CostStraight*int64(dx-dy)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
