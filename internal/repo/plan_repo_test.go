package repo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fresco/internal/domain"
)

// Планы хранятся с waypoints в JSONB-колонке; тест проверяет, что
// кодирование и обратное чтение через тот же формат возвращают
// идентичную последовательность точек и стоимость.
func TestPlannedPath_WaypointsRoundTrip(t *testing.T) {
	original := &domain.PlannedPath{
		ID:         uuid.New(),
		WallID:     uuid.New(),
		MapVersion: 3,
		Waypoints: []domain.Waypoint{
			{X: 0, Y: 0, Heading: domain.HeadingE},
			{X: 1, Y: 0, Heading: domain.HeadingNE},
			{X: 2, Y: 1, Heading: domain.HeadingN},
			{X: 2, Y: 2, Heading: domain.HeadingN},
		},
		Cost:      38,
		CreatedAt: time.Now().UTC(),
	}

	// Тот же путь, что у PlanRepo: waypoints сериализуются в JSON
	// при Create и разбираются обратно при GetByID.
	encoded, err := json.Marshal(original.Waypoints)
	if err != nil {
		t.Fatalf("marshal waypoints: %v", err)
	}

	restored := &domain.PlannedPath{
		ID:         original.ID,
		WallID:     original.WallID,
		MapVersion: original.MapVersion,
		Cost:       original.Cost,
		CreatedAt:  original.CreatedAt,
	}
	if err := json.Unmarshal(encoded, &restored.Waypoints); err != nil {
		t.Fatalf("unmarshal waypoints: %v", err)
	}

	if len(restored.Waypoints) != len(original.Waypoints) {
		t.Fatalf("expected %d waypoints, got %d", len(original.Waypoints), len(restored.Waypoints))
	}
	for i, wp := range original.Waypoints {
		if restored.Waypoints[i] != wp {
			t.Errorf("waypoint %d: expected %+v, got %+v", i, wp, restored.Waypoints[i])
		}
	}
	if restored.Cost != original.Cost {
		t.Errorf("expected cost %d, got %d", original.Cost, restored.Cost)
	}
	if restored.FinalSeq() != original.FinalSeq() {
		t.Errorf("expected final seq %d, got %d", original.FinalSeq(), restored.FinalSeq())
	}
}
