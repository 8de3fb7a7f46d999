package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestWallSurface_Grid(t *testing.T) {
	wall := &WallSurface{Width: 2.0, Height: 1.0, Resolution: 0.1}

	if wall.Cols() != 20 {
		t.Errorf("expected 20 cols, got %d", wall.Cols())
	}
	if wall.Rows() != 10 {
		t.Errorf("expected 10 rows, got %d", wall.Rows())
	}

	if !wall.Contains(Cell{X: 0, Y: 0}) {
		t.Error("origin should be inside")
	}
	if !wall.Contains(Cell{X: 19, Y: 9}) {
		t.Error("far corner should be inside")
	}
	if wall.Contains(Cell{X: 20, Y: 0}) {
		t.Error("x == cols should be outside")
	}
	if wall.Contains(Cell{X: -1, Y: 0}) {
		t.Error("negative x should be outside")
	}
}

func TestWallSurface_Validate(t *testing.T) {
	valid := &WallSurface{ID: uuid.New(), Width: 5, Height: 3, Resolution: 0.25}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid wall: %v", err)
	}

	cases := []WallSurface{
		{Width: 0, Height: 3, Resolution: 0.25},
		{Width: 5, Height: -1, Resolution: 0.25},
		{Width: 5, Height: 3, Resolution: 0},
		{Width: 0.1, Height: 3, Resolution: 0.5}, // грубее ширины
	}
	for i, w := range cases {
		if err := w.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestRect(t *testing.T) {
	r := Rect{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4}

	if !r.Valid() {
		t.Error("rect should be valid")
	}
	if !r.Contains(Cell{X: 1, Y: 2}) || !r.Contains(Cell{X: 3, Y: 4}) {
		t.Error("bounds are inclusive")
	}
	if r.Contains(Cell{X: 0, Y: 2}) || r.Contains(Cell{X: 1, Y: 5}) {
		t.Error("cells outside bounds")
	}

	if (Rect{MinX: 3, MinY: 0, MaxX: 1, MaxY: 0}).Valid() {
		t.Error("inverted rect should be invalid")
	}
}

func TestHeadingBetween(t *testing.T) {
	origin := Cell{X: 5, Y: 5}
	cases := []struct {
		to   Cell
		want Heading
	}{
		{Cell{X: 5, Y: 6}, HeadingN},
		{Cell{X: 6, Y: 6}, HeadingNE},
		{Cell{X: 6, Y: 5}, HeadingE},
		{Cell{X: 6, Y: 4}, HeadingSE},
		{Cell{X: 5, Y: 4}, HeadingS},
		{Cell{X: 4, Y: 4}, HeadingSW},
		{Cell{X: 4, Y: 5}, HeadingW},
		{Cell{X: 4, Y: 6}, HeadingNW},
	}

	for _, tc := range cases {
		if got := HeadingBetween(origin, tc.to); got != tc.want {
			t.Errorf("HeadingBetween(%s, %s) = %s, want %s", origin, tc.to, got, tc.want)
		}
	}
}

func TestWaypointsFromCells(t *testing.T) {
	cells := []Cell{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 1}}
	wps := WaypointsFromCells(cells)

	if len(wps) != 3 {
		t.Fatalf("expected 3 waypoints, got %d", len(wps))
	}
	if wps[0].Heading != HeadingE {
		t.Errorf("first heading should be E, got %s", wps[0].Heading)
	}
	if wps[1].Heading != HeadingNE {
		t.Errorf("second heading should be NE, got %s", wps[1].Heading)
	}
	// Последняя точка повторяет направление предыдущего шага.
	if wps[2].Heading != HeadingNE {
		t.Errorf("last heading should repeat NE, got %s", wps[2].Heading)
	}

	if WaypointsFromCells(nil) != nil {
		t.Error("empty input should give nil")
	}

	single := WaypointsFromCells([]Cell{{X: 3, Y: 7}})
	if len(single) != 1 || single[0].Heading != HeadingN {
		t.Error("single cell should default to heading N")
	}
}
