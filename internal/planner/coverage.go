package planner

import (
	"fmt"

	"github.com/shaiso/Fresco/internal/domain"
	"github.com/shaiso/Fresco/internal/spatial"
)

// CoverRegion строит маршрут, проходящий через каждую проходимую ячейку
// области region хотя бы один раз.
//
// Стратегия — жадная декомпозиция: повторные вызовы A* к ближайшей
// (по эвристике) непокрытой ячейке. Ячейки, пройденные по дороге,
// засчитываются как покрытые. Итоговая стоимость — сумма стоимостей
// отрезков; порядок отрезков глобально не оптимизируется (документированная
// аппроксимация). Бюджет раскрытий общий на все отрезки.
func CoverRegion(snap *spatial.Snapshot, start domain.Cell, region domain.Rect, budget int) (*Path, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}

	if !snap.Traversable(start) {
		return nil, fmt.Errorf("%w: start %s is blocked or out of bounds", ErrUnreachable, start)
	}

	uncovered := collectTraversable(snap, region)
	if len(uncovered) == 0 {
		return nil, ErrEmptyRegion
	}

	total := &Path{Cells: []domain.Cell{start}}
	cur := start
	delete(uncovered, start)
	remaining := budget

	for len(uncovered) > 0 {
		target := nearestUncovered(snap, cur, uncovered)

		leg, expanded, err := findPath(snap, cur, target, remaining)
		remaining -= expanded
		if err != nil {
			return nil, fmt.Errorf("leg to %s: %w", target, err)
		}
		// Первый элемент отрезка совпадает с текущей позицией.
		for _, c := range leg.Cells[1:] {
			total.Cells = append(total.Cells, c)
			delete(uncovered, c)
		}
		delete(uncovered, target)
		total.Cost += leg.Cost
		cur = target

		// Проверка после вычёркивания: последний отрезок вправе
		// израсходовать бюджет в ноль, если он закрыл все ячейки.
		if remaining <= 0 && len(uncovered) > 0 {
			return nil, fmt.Errorf("%w: budget exhausted with %d cells uncovered",
				ErrBudgetExceeded, len(uncovered))
		}
	}

	return total, nil
}

// collectTraversable собирает проходимые ячейки области в множество.
func collectTraversable(snap *spatial.Snapshot, region domain.Rect) map[domain.Cell]struct{} {
	cells := make(map[domain.Cell]struct{})
	for y := region.MinY; y <= region.MaxY; y++ {
		for x := region.MinX; x <= region.MaxX; x++ {
			c := domain.Cell{X: x, Y: y}
			if snap.Traversable(c) {
				cells[c] = struct{}{}
			}
		}
	}
	return cells
}

// nearestUncovered выбирает ближайшую к from непокрытую ячейку.
// Расстояние — октильная эвристика; при равенстве меньший y, затем x,
// чтобы выбор был детерминированным.
func nearestUncovered(snap *spatial.Snapshot, from domain.Cell, uncovered map[domain.Cell]struct{}) domain.Cell {
	var best domain.Cell
	bestDist := int64(-1)

	for c := range uncovered {
		d := snap.Heuristic(from, c)
		if bestDist == -1 || d < bestDist ||
			(d == bestDist && (c.Y < best.Y || (c.Y == best.Y && c.X < best.X))) {
			best = c
			bestDist = d
		}
	}
	return best
}
