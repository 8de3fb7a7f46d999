package planner

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Fresco/internal/domain"
	"github.com/shaiso/Fresco/internal/spatial"
)

// snapshot10 — сетка 10x10 с заданными препятствиями.
func snapshot10(blocked ...domain.Cell) *spatial.Snapshot {
	wall := &domain.WallSurface{
		ID:         uuid.New(),
		Width:      1.0,
		Height:     1.0,
		Resolution: 0.1,
	}
	return spatial.NewSnapshot(wall, &domain.ObstacleMap{
		WallID:  wall.ID,
		Version: 1,
		Blocked: blocked,
	})
}

// verifyPath проверяет связность маршрута и сходимость стоимости.
func verifyPath(t *testing.T, snap *spatial.Snapshot, p *Path, start, goal domain.Cell) {
	t.Helper()

	if len(p.Cells) == 0 {
		t.Fatal("path should not be empty")
	}
	if p.Cells[0] != start {
		t.Errorf("path should start at %s, got %s", start, p.Cells[0])
	}
	if p.Cells[len(p.Cells)-1] != goal {
		t.Errorf("path should end at %s, got %s", goal, p.Cells[len(p.Cells)-1])
	}

	var cost int64
	for i := 1; i < len(p.Cells); i++ {
		a, b := p.Cells[i-1], p.Cells[i]
		dx, dy := b.X-a.X, b.Y-a.Y
		if dx < -1 || dx > 1 || dy < -1 || dy > 1 || (dx == 0 && dy == 0) {
			t.Errorf("step %d: %s -> %s is not a single grid step", i, a, b)
		}
		if !snap.Traversable(b) {
			t.Errorf("step %d: %s is not traversable", i, b)
		}
		cost += snap.StepCost(a, b)
	}
	if cost != p.Cost {
		t.Errorf("reported cost %d, recomputed %d", p.Cost, cost)
	}
}

func TestFindPath_StraightLine(t *testing.T) {
	snap := snapshot10()
	start := domain.Cell{X: 0, Y: 0}
	goal := domain.Cell{X: 5, Y: 0}

	p, err := FindPath(snap, start, goal, 0)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}

	verifyPath(t, snap, p, start, goal)
	if p.Cost != 50 {
		t.Errorf("expected cost 50, got %d", p.Cost)
	}
	if len(p.Cells) != 6 {
		t.Errorf("expected 6 cells, got %d", len(p.Cells))
	}
}

func TestFindPath_CornerToCorner(t *testing.T) {
	snap := snapshot10()
	start := domain.Cell{X: 0, Y: 0}
	goal := domain.Cell{X: 9, Y: 9}

	p, err := FindPath(snap, start, goal, 0)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}

	verifyPath(t, snap, p, start, goal)
	// 9 диагональных шагов — оптимум на пустой сетке.
	if p.Cost != 9*14 {
		t.Errorf("expected cost %d, got %d", 9*14, p.Cost)
	}
}

func TestFindPath_StartEqualsGoal(t *testing.T) {
	snap := snapshot10()
	c := domain.Cell{X: 4, Y: 4}

	p, err := FindPath(snap, c, c, 0)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(p.Cells) != 1 || p.Cells[0] != c || p.Cost != 0 {
		t.Errorf("trivial path expected, got %d cells cost %d", len(p.Cells), p.Cost)
	}
}

func TestFindPath_DetoursAroundWall(t *testing.T) {
	// Вертикальная стена x=5 с проходом у верхнего края.
	var blocked []domain.Cell
	for y := 0; y < 9; y++ {
		blocked = append(blocked, domain.Cell{X: 5, Y: y})
	}
	snap := snapshot10(blocked...)

	start := domain.Cell{X: 0, Y: 0}
	goal := domain.Cell{X: 9, Y: 0}

	p, err := FindPath(snap, start, goal, 0)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}

	verifyPath(t, snap, p, start, goal)
	// Прямой путь стоил бы 90; обход через y=9 обязан быть дороже.
	if p.Cost <= 90 {
		t.Errorf("detour should cost more than direct 90, got %d", p.Cost)
	}
	for _, c := range p.Cells {
		if c.X == 5 && c.Y < 9 {
			t.Errorf("path goes through wall at %s", c)
		}
	}
}

func TestFindPath_Unreachable(t *testing.T) {
	// Цель замурована с 8 сторон.
	goal := domain.Cell{X: 5, Y: 5}
	var blocked []domain.Cell
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			blocked = append(blocked, domain.Cell{X: goal.X + dx, Y: goal.Y + dy})
		}
	}
	snap := snapshot10(blocked...)

	_, err := FindPath(snap, domain.Cell{X: 0, Y: 0}, goal, 0)
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
}

func TestFindPath_BlockedEndpoints(t *testing.T) {
	snap := snapshot10(domain.Cell{X: 2, Y: 2})

	if _, err := FindPath(snap, domain.Cell{X: 2, Y: 2}, domain.Cell{X: 0, Y: 0}, 0); !errors.Is(err, ErrUnreachable) {
		t.Errorf("blocked start: expected ErrUnreachable, got %v", err)
	}
	if _, err := FindPath(snap, domain.Cell{X: 0, Y: 0}, domain.Cell{X: 2, Y: 2}, 0); !errors.Is(err, ErrUnreachable) {
		t.Errorf("blocked goal: expected ErrUnreachable, got %v", err)
	}
	if _, err := FindPath(snap, domain.Cell{X: 0, Y: 0}, domain.Cell{X: 50, Y: 50}, 0); !errors.Is(err, ErrUnreachable) {
		t.Errorf("out-of-bounds goal: expected ErrUnreachable, got %v", err)
	}
}

func TestFindPath_BudgetExceeded(t *testing.T) {
	snap := snapshot10()

	_, err := FindPath(snap, domain.Cell{X: 0, Y: 0}, domain.Cell{X: 9, Y: 9}, 3)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestFindPath_Deterministic(t *testing.T) {
	// Несколько равноценных маршрутов: полный порядок в куче обязан
	// давать байт-в-байт одинаковый выбор.
	snap := snapshot10(domain.Cell{X: 4, Y: 4}, domain.Cell{X: 4, Y: 5})
	start := domain.Cell{X: 0, Y: 0}
	goal := domain.Cell{X: 9, Y: 9}

	first, err := FindPath(snap, start, goal, 0)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}

	for i := 0; i < 20; i++ {
		again, err := FindPath(snap, start, goal, 0)
		if err != nil {
			t.Fatalf("FindPath run %d: %v", i, err)
		}
		if again.Cost != first.Cost {
			t.Fatalf("run %d: cost %d != %d", i, again.Cost, first.Cost)
		}
		if len(again.Cells) != len(first.Cells) {
			t.Fatalf("run %d: length %d != %d", i, len(again.Cells), len(first.Cells))
		}
		for j := range first.Cells {
			if again.Cells[j] != first.Cells[j] {
				t.Fatalf("run %d: cell %d differs: %s != %s", i, j, again.Cells[j], first.Cells[j])
			}
		}
	}
}

func TestFindPath_Optimal(t *testing.T) {
	// Сравнение со стоимостью, найденной полным перебором (Дейкстра без
	// эвристики на маленькой сетке).
	snap := snapshot10(
		domain.Cell{X: 2, Y: 1}, domain.Cell{X: 2, Y: 2}, domain.Cell{X: 2, Y: 3},
		domain.Cell{X: 6, Y: 4}, domain.Cell{X: 6, Y: 5}, domain.Cell{X: 6, Y: 6},
	)
	start := domain.Cell{X: 0, Y: 2}
	goal := domain.Cell{X: 9, Y: 5}

	p, err := FindPath(snap, start, goal, 0)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	verifyPath(t, snap, p, start, goal)

	want := bruteForceCost(snap, start, goal)
	if p.Cost != want {
		t.Errorf("A* cost %d, brute force %d", p.Cost, want)
	}
}

// bruteForceCost — эталонная стоимость (Беллман-Форд по всем ячейкам).
func bruteForceCost(snap *spatial.Snapshot, start, goal domain.Cell) int64 {
	const inf = int64(1) << 60

	dist := map[domain.Cell]int64{start: 0}
	for changed := true; changed; {
		changed = false
		for y := 0; y < 10; y++ {
			for x := 0; x < 10; x++ {
				c := domain.Cell{X: x, Y: y}
				dc, ok := dist[c]
				if !ok || !snap.Traversable(c) {
					continue
				}
				for _, n := range snap.Neighbors(c) {
					nd := dc + snap.StepCost(c, n)
					if known, ok := dist[n]; !ok || nd < known {
						dist[n] = nd
						changed = true
					}
				}
			}
		}
	}

	if d, ok := dist[goal]; ok {
		return d
	}
	return inf
}
