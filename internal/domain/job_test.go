package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func validRouteRequest() PlanRequest {
	return PlanRequest{
		WallID:         uuid.New(),
		Start:          Cell{X: 0, Y: 0},
		Goal:           &Cell{X: 5, Y: 5},
		IdempotencyKey: "test-key",
	}
}

func plannedPath(n int) *PlannedPath {
	cells := make([]Cell, n)
	for i := range cells {
		cells[i] = Cell{X: i, Y: 0}
	}
	return &PlannedPath{
		ID:         uuid.New(),
		WallID:     uuid.New(),
		MapVersion: 3,
		Waypoints:  WaypointsFromCells(cells),
		Cost:       int64((n - 1) * 10),
		CreatedAt:  time.Now(),
	}
}

func TestNewJob(t *testing.T) {
	req := validRouteRequest()
	job := NewJob(req)

	if job.ID == uuid.Nil {
		t.Error("ID should be assigned")
	}
	if job.WallID != req.WallID {
		t.Error("WallID should come from request")
	}
	if job.Status != JobStatusCreated {
		t.Errorf("expected CREATED, got %s", job.Status)
	}
	if job.PublishedSeq != 0 || job.AckWatermark != 0 {
		t.Error("watermarks should start at zero")
	}
}

func TestJob_FullLifecycle(t *testing.T) {
	job := NewJob(validRouteRequest())
	plan := plannedPath(4)

	if err := job.MarkPlanning(); err != nil {
		t.Fatalf("MarkPlanning: %v", err)
	}
	if err := job.MarkPlanned(plan); err != nil {
		t.Fatalf("MarkPlanned: %v", err)
	}
	if job.PlanID == nil || *job.PlanID != plan.ID {
		t.Error("PlanID should be attached")
	}
	if job.FinalSeq != 4 {
		t.Errorf("expected FinalSeq 4, got %d", job.FinalSeq)
	}
	if job.MapVersion != 3 {
		t.Errorf("expected MapVersion 3, got %d", job.MapVersion)
	}

	if err := job.MarkDispatching(); err != nil {
		t.Fatalf("MarkDispatching: %v", err)
	}

	for seq := int64(1); seq <= 4; seq++ {
		job.AdvancePublished(seq)
	}
	if err := job.MarkDispatched(); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}

	if err := job.MarkExecuting(); err != nil {
		t.Fatalf("MarkExecuting: %v", err)
	}

	for seq := int64(1); seq <= 4; seq++ {
		job.AdvanceWatermark(seq)
	}
	if err := job.MarkCompleted(); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	if !job.IsFinished() {
		t.Error("COMPLETED should be terminal")
	}
	if job.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}
}

func TestJob_InvalidTransitions(t *testing.T) {
	job := NewJob(validRouteRequest())

	if err := job.MarkDispatching(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("CREATED -> DISPATCHING should fail, got %v", err)
	}
	if err := job.MarkExecuting(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("CREATED -> EXECUTING should fail, got %v", err)
	}
	if err := job.MarkCompleted(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("CREATED -> COMPLETED should fail, got %v", err)
	}
}

func TestJob_MarkDispatched_RequiresAllPublished(t *testing.T) {
	job := NewJob(validRouteRequest())
	job.MarkPlanning()
	job.MarkPlanned(plannedPath(3))
	job.MarkDispatching()

	job.AdvancePublished(2)
	if err := job.MarkDispatched(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition with 2 of 3 published, got %v", err)
	}

	job.AdvancePublished(3)
	if err := job.MarkDispatched(); err != nil {
		t.Errorf("MarkDispatched with all published: %v", err)
	}
}

func TestJob_MarkCompleted_RequiresFullWatermark(t *testing.T) {
	job := NewJob(validRouteRequest())
	job.MarkPlanning()
	job.MarkPlanned(plannedPath(3))
	job.MarkDispatching()
	job.AdvancePublished(3)
	job.MarkDispatched()
	job.MarkExecuting()

	job.AdvanceWatermark(2)
	if err := job.MarkCompleted(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition with watermark 2 of 3, got %v", err)
	}
}

func TestJob_Cancel(t *testing.T) {
	// Отмена допустима до начала отправки.
	for _, setup := range []func(j *Job){
		func(j *Job) {},
		func(j *Job) { j.MarkPlanning() },
		func(j *Job) { j.MarkPlanning(); j.MarkPlanned(plannedPath(2)) },
	} {
		job := NewJob(validRouteRequest())
		setup(job)
		if err := job.MarkCancelled(); err != nil {
			t.Errorf("cancel from %s: %v", job.Status, err)
		}
	}

	// После DISPATCHING — нет.
	job := NewJob(validRouteRequest())
	job.MarkPlanning()
	job.MarkPlanned(plannedPath(2))
	job.MarkDispatching()
	if err := job.MarkCancelled(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel from DISPATCHING should fail, got %v", err)
	}
}

func TestJob_MarkFailed_FromAnyNonTerminal(t *testing.T) {
	job := NewJob(validRouteRequest())
	if err := job.MarkFailed(ReasonUnreachable, "no path"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if job.Reason != ReasonUnreachable {
		t.Errorf("expected reason %s, got %s", ReasonUnreachable, job.Reason)
	}

	// Терминальный статус менять нельзя.
	if err := job.MarkFailed(ReasonFault, "again"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("MarkFailed on terminal job should fail, got %v", err)
	}
	if err := job.MarkCancelled(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel on terminal job should fail, got %v", err)
	}
}

func TestJob_AdvanceWatermark_Monotonic(t *testing.T) {
	job := NewJob(validRouteRequest())

	if !job.AdvanceWatermark(3) {
		t.Error("advance 0 -> 3 should succeed")
	}
	if job.LastAckAt == nil {
		t.Error("LastAckAt should be set after advance")
	}

	// Дубликат и запоздавший ack не откатывают watermark.
	if job.AdvanceWatermark(3) {
		t.Error("duplicate seq should be a no-op")
	}
	if job.AdvanceWatermark(1) {
		t.Error("late seq should be a no-op")
	}
	if job.AckWatermark != 3 {
		t.Errorf("watermark should stay 3, got %d", job.AckWatermark)
	}

	if !job.AdvanceWatermark(5) {
		t.Error("advance 3 -> 5 should succeed")
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []JobStatus{
		JobStatusCreated, JobStatusPlanning, JobStatusPlanned,
		JobStatusDispatching, JobStatusDispatched, JobStatusExecuting,
	}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
