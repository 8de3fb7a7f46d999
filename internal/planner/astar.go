package planner

import (
	"container/heap"
	"fmt"

	"github.com/shaiso/Fresco/internal/domain"
	"github.com/shaiso/Fresco/internal/spatial"
)

// DefaultBudget — бюджет раскрытий по умолчанию.
// Достаточен для покрытия стен в сотни тысяч ячеек; гарантирует
// завершение на патологических картах.
const DefaultBudget = 200_000

// Path — построенный маршрут: последовательность ячеек и суммарная стоимость.
type Path struct {
	Cells []domain.Cell
	Cost  int64
}

// FindPath строит оптимальный маршрут от start до goal алгоритмом A*.
//
// Frontier упорядочен по g+h; при равном приоритете предпочитается узел
// с меньшим h (goal-directed tie-break), далее меньший y, затем x —
// полный порядок даёт байт-в-байт одинаковый маршрут для одинаковых
// входов. budget ограничивает число извлечений из frontier; budget <= 0
// означает DefaultBudget.
func FindPath(snap *spatial.Snapshot, start, goal domain.Cell, budget int) (*Path, error) {
	path, _, err := findPath(snap, start, goal, budget)
	return path, err
}

// findPath возвращает маршрут и количество потраченных раскрытий.
func findPath(snap *spatial.Snapshot, start, goal domain.Cell, budget int) (*Path, int, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}

	if !snap.Traversable(start) {
		return nil, 0, fmt.Errorf("%w: start %s is blocked or out of bounds", ErrUnreachable, start)
	}
	if !snap.Traversable(goal) {
		return nil, 0, fmt.Errorf("%w: goal %s is blocked or out of bounds", ErrUnreachable, goal)
	}

	if start == goal {
		return &Path{Cells: []domain.Cell{start}, Cost: 0}, 0, nil
	}

	frontier := &nodeHeap{}
	heap.Init(frontier)

	bestG := map[domain.Cell]int64{start: 0}
	cameFrom := make(map[domain.Cell]domain.Cell)

	h0 := snap.Heuristic(start, goal)
	heap.Push(frontier, node{cell: start, g: 0, h: h0, f: h0})

	expanded := 0

	for frontier.Len() > 0 {
		cur := heap.Pop(frontier).(node)

		// Устаревшая запись: в кучу попала копия с худшим g.
		if g, ok := bestG[cur.cell]; ok && cur.g > g {
			continue
		}

		if cur.cell == goal {
			return &Path{Cells: reconstruct(cameFrom, goal), Cost: cur.g}, expanded, nil
		}

		expanded++
		if expanded > budget {
			return nil, expanded, fmt.Errorf("%w: %d expansions", ErrBudgetExceeded, expanded)
		}

		for _, next := range snap.Neighbors(cur.cell) {
			g := cur.g + snap.StepCost(cur.cell, next)
			if known, ok := bestG[next]; ok && g >= known {
				continue
			}
			bestG[next] = g
			cameFrom[next] = cur.cell
			h := snap.Heuristic(next, goal)
			heap.Push(frontier, node{cell: next, g: g, h: h, f: g + h})
		}
	}

	return nil, expanded, fmt.Errorf("%w: no path from %s to %s", ErrUnreachable, start, goal)
}

// reconstruct восстанавливает маршрут от start до goal по карте предков.
func reconstruct(cameFrom map[domain.Cell]domain.Cell, goal domain.Cell) []domain.Cell {
	cells := []domain.Cell{goal}
	cur := goal
	for {
		prev, ok := cameFrom[cur]
		if !ok {
			break
		}
		cells = append(cells, prev)
		cur = prev
	}

	// Разворачиваем: cells собран от goal к start.
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	return cells
}

// node — запись frontier.
type node struct {
	cell domain.Cell
	g    int64 // стоимость от старта
	h    int64 // эвристика до цели
	f    int64 // g + h
}

// nodeHeap — min-heap по (f, h, y, x).
type nodeHeap []node

func (h nodeHeap) Len() int { return len(h) }

func (h nodeHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	if h[i].h != h[j].h {
		return h[i].h < h[j].h
	}
	if h[i].cell.Y != h[j].cell.Y {
		return h[i].cell.Y < h[j].cell.Y
	}
	return h[i].cell.X < h[j].cell.X
}

func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x any) { *h = append(*h, x.(node)) }

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
