package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WallSurface — стена, которую обрабатывает робот.
//
// Физические размеры дискретизируются в сетку с шагом Resolution.
// WallSurface неизменяем после создания: все карты препятствий и планы
// ссылаются на одну и ту же дискретизацию.
type WallSurface struct {
	// ID — уникальный идентификатор стены.
	ID uuid.UUID `json:"id"`

	// Width — ширина стены в метрах.
	Width float64 `json:"width"`

	// Height — высота стены в метрах.
	Height float64 `json:"height"`

	// Resolution — размер ячейки сетки в метрах.
	Resolution float64 `json:"resolution"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// Cols возвращает количество столбцов сетки.
func (w *WallSurface) Cols() int {
	return int(w.Width / w.Resolution)
}

// Rows возвращает количество строк сетки.
func (w *WallSurface) Rows() int {
	return int(w.Height / w.Resolution)
}

// Contains проверяет, что ячейка лежит внутри сетки стены.
func (w *WallSurface) Contains(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < w.Cols() && c.Y < w.Rows()
}

// Validate проверяет корректность параметров стены.
func (w *WallSurface) Validate() error {
	if w.Width <= 0 || w.Height <= 0 {
		return fmt.Errorf("wall dimensions must be positive: %gx%g", w.Width, w.Height)
	}
	if w.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive: %g", w.Resolution)
	}
	if w.Cols() < 1 || w.Rows() < 1 {
		return fmt.Errorf("resolution %g too coarse for %gx%g wall", w.Resolution, w.Width, w.Height)
	}
	return nil
}

// Cell — ячейка дискретизированной сетки стены.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// String возвращает строковое представление ячейки.
func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Rect — прямоугольная область сетки (границы включительно).
// Используется как регион покрытия в PlanRequest.
type Rect struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// Contains проверяет, что ячейка лежит внутри области.
func (r Rect) Contains(c Cell) bool {
	return c.X >= r.MinX && c.X <= r.MaxX && c.Y >= r.MinY && c.Y <= r.MaxY
}

// Valid проверяет, что область не вырождена.
func (r Rect) Valid() bool {
	return r.MinX <= r.MaxX && r.MinY <= r.MaxY
}

// Heading — направление движения робота (8 направлений компаса).
type Heading string

// Направления.
const (
	HeadingN  Heading = "N"
	HeadingNE Heading = "NE"
	HeadingE  Heading = "E"
	HeadingSE Heading = "SE"
	HeadingS  Heading = "S"
	HeadingSW Heading = "SW"
	HeadingW  Heading = "W"
	HeadingNW Heading = "NW"
)

// HeadingBetween возвращает направление движения из ячейки a в соседнюю ячейку b.
// Для совпадающих ячеек возвращает HeadingN.
func HeadingBetween(a, b Cell) Heading {
	dx := sign(b.X - a.X)
	dy := sign(b.Y - a.Y)

	switch [2]int{dx, dy} {
	case [2]int{0, 1}:
		return HeadingN
	case [2]int{1, 1}:
		return HeadingNE
	case [2]int{1, 0}:
		return HeadingE
	case [2]int{1, -1}:
		return HeadingSE
	case [2]int{0, -1}:
		return HeadingS
	case [2]int{-1, -1}:
		return HeadingSW
	case [2]int{-1, 0}:
		return HeadingW
	case [2]int{-1, 1}:
		return HeadingNW
	default:
		return HeadingN
	}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Waypoint — точка маршрута: ячейка сетки плюс направление движения.
type Waypoint struct {
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Heading Heading `json:"heading"`
}

// Cell возвращает ячейку waypoint.
func (w Waypoint) Cell() Cell {
	return Cell{X: w.X, Y: w.Y}
}

// WaypointsFromCells строит waypoints из последовательности ячеек.
// Направление каждой точки — в сторону следующей; последняя точка
// сохраняет направление предыдущего шага.
func WaypointsFromCells(cells []Cell) []Waypoint {
	if len(cells) == 0 {
		return nil
	}

	wps := make([]Waypoint, len(cells))
	heading := HeadingN

	for i, c := range cells {
		if i < len(cells)-1 {
			heading = HeadingBetween(c, cells[i+1])
		}
		wps[i] = Waypoint{X: c.X, Y: c.Y, Heading: heading}
	}

	return wps
}
