package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Fresco/internal/domain"
	"github.com/shaiso/Fresco/internal/repo"
)

// --- Fakes ---

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]domain.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]domain.Job)}
}

func (s *fakeJobStore) put(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
}

func (s *fakeJobStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := job
	return &copied, nil
}

func (s *fakeJobStore) Update(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

// dispatchedJob — job в DISPATCHED с finalSeq инструкциями.
func dispatchedJob(finalSeq int64) *domain.Job {
	return &domain.Job{
		ID:           uuid.New(),
		WallID:       uuid.New(),
		Status:       domain.JobStatusDispatched,
		FinalSeq:     finalSeq,
		PublishedSeq: finalSeq,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
}

func newTracker(jobs *fakeJobStore) *Tracker {
	return New(Config{Jobs: jobs})
}

// --- Tests ---

func TestOnAck_FirstAckStartsExecution(t *testing.T) {
	job := dispatchedJob(3)
	jobs := newFakeJobStore()
	jobs.put(job)
	trk := newTracker(jobs)
	ctx := context.Background()

	if err := trk.OnAck(ctx, job.ID, 1); err != nil {
		t.Fatalf("OnAck: %v", err)
	}

	stored, _ := jobs.GetByID(ctx, job.ID)
	if stored.Status != domain.JobStatusExecuting {
		t.Errorf("first ack should move to EXECUTING, got %s", stored.Status)
	}
	if stored.AckWatermark != 1 {
		t.Errorf("expected watermark 1, got %d", stored.AckWatermark)
	}
	if stored.LastAckAt == nil {
		t.Error("LastAckAt should be set")
	}
}

func TestOnAck_WatermarkMonotonic(t *testing.T) {
	job := dispatchedJob(5)
	jobs := newFakeJobStore()
	jobs.put(job)
	trk := newTracker(jobs)
	ctx := context.Background()

	// Перемешанная at-least-once доставка с дубликатами.
	for _, seq := range []int64{2, 1, 3, 2, 5, 4, 5, 1} {
		if err := trk.OnAck(ctx, job.ID, seq); err != nil {
			t.Fatalf("OnAck(%d): %v", seq, err)
		}

		stored, _ := jobs.GetByID(ctx, job.ID)
		if stored.AckWatermark < seq {
			t.Errorf("after ack %d watermark %d went backwards", seq, stored.AckWatermark)
		}
	}

	stored, _ := jobs.GetByID(ctx, job.ID)
	if stored.AckWatermark != 5 {
		t.Errorf("expected final watermark 5, got %d", stored.AckWatermark)
	}
}

func TestOnAck_DuplicateDoesNotTouchJob(t *testing.T) {
	job := dispatchedJob(3)
	jobs := newFakeJobStore()
	jobs.put(job)
	trk := newTracker(jobs)
	ctx := context.Background()

	trk.OnAck(ctx, job.ID, 2)
	first, _ := jobs.GetByID(ctx, job.ID)

	// Дубликат не меняет ни watermark, ни UpdatedAt.
	trk.OnAck(ctx, job.ID, 2)
	second, _ := jobs.GetByID(ctx, job.ID)

	if second.AckWatermark != first.AckWatermark {
		t.Error("duplicate ack changed watermark")
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Error("duplicate ack touched the job")
	}
}

func TestOnAck_UnknownJob(t *testing.T) {
	trk := newTracker(newFakeJobStore())

	err := trk.OnAck(context.Background(), uuid.New(), 1)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOnAck_FinishedJobIsNoop(t *testing.T) {
	job := dispatchedJob(3)
	job.Status = domain.JobStatusFailed
	jobs := newFakeJobStore()
	jobs.put(job)
	trk := newTracker(jobs)

	if err := trk.OnAck(context.Background(), job.ID, 1); err != nil {
		t.Fatalf("late ack should be dropped silently: %v", err)
	}

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	if stored.AckWatermark != 0 {
		t.Error("late ack should not advance watermark")
	}
}

func TestOnComplete(t *testing.T) {
	job := dispatchedJob(3)
	jobs := newFakeJobStore()
	jobs.put(job)
	trk := newTracker(jobs)
	ctx := context.Background()

	trk.OnAck(ctx, job.ID, 1)
	trk.OnAck(ctx, job.ID, 2)
	trk.OnAck(ctx, job.ID, 3)

	if err := trk.OnComplete(ctx, job.ID, 3); err != nil {
		t.Fatalf("OnComplete: %v", err)
	}

	stored, _ := jobs.GetByID(ctx, job.ID)
	if stored.Status != domain.JobStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", stored.Status)
	}
	if stored.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}
}

func TestOnComplete_WithoutPriorAcks(t *testing.T) {
	// COMPLETE может обогнать все ACK: финальный seq сам продвигает
	// watermark (watermark — максимум, не счётчик).
	job := dispatchedJob(3)
	jobs := newFakeJobStore()
	jobs.put(job)
	trk := newTracker(jobs)

	if err := trk.OnComplete(context.Background(), job.ID, 3); err != nil {
		t.Fatalf("OnComplete: %v", err)
	}

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", stored.Status)
	}
	if stored.AckWatermark != 3 {
		t.Errorf("expected watermark 3, got %d", stored.AckWatermark)
	}
}

func TestOnComplete_IncompletePathKeepsExecuting(t *testing.T) {
	job := dispatchedJob(5)
	jobs := newFakeJobStore()
	jobs.put(job)
	trk := newTracker(jobs)

	// Робот объявил завершение на seq 3 из 5: job ждёт недостающие
	// ack'и, закрыть его может только ExecutionTimeout.
	if err := trk.OnComplete(context.Background(), job.ID, 3); err != nil {
		t.Fatalf("premature complete should be absorbed: %v", err)
	}

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobStatusExecuting {
		t.Errorf("expected EXECUTING, got %s", stored.Status)
	}
	if stored.AckWatermark != 3 {
		t.Errorf("complete should count as ack, watermark = %d", stored.AckWatermark)
	}

	// Недостающие ack'и пришли, повторная доставка COMPLETE закрывает job.
	trk.OnAck(context.Background(), job.ID, 4)
	trk.OnAck(context.Background(), job.ID, 5)
	if err := trk.OnComplete(context.Background(), job.ID, 3); err != nil {
		t.Fatalf("OnComplete after missing acks: %v", err)
	}

	stored, _ = jobs.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", stored.Status)
	}
}

func TestOnComplete_WhileDispatchingRetries(t *testing.T) {
	job := dispatchedJob(3)
	job.Status = domain.JobStatusDispatching
	jobs := newFakeJobStore()
	jobs.put(job)
	trk := newTracker(jobs)

	err := trk.OnComplete(context.Background(), job.ID, 3)
	if !errors.Is(err, ErrJobNotReady) {
		t.Errorf("expected ErrJobNotReady, got %v", err)
	}

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobStatusDispatching {
		t.Errorf("job should stay DISPATCHING, got %s", stored.Status)
	}
}

func TestOnComplete_DuplicateIsNoop(t *testing.T) {
	job := dispatchedJob(2)
	jobs := newFakeJobStore()
	jobs.put(job)
	trk := newTracker(jobs)
	ctx := context.Background()

	if err := trk.OnComplete(ctx, job.ID, 2); err != nil {
		t.Fatalf("OnComplete: %v", err)
	}
	if err := trk.OnComplete(ctx, job.ID, 2); err != nil {
		t.Fatalf("duplicate OnComplete should be a no-op: %v", err)
	}

	stored, _ := jobs.GetByID(ctx, job.ID)
	if stored.Status != domain.JobStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", stored.Status)
	}
}

func TestOnFault(t *testing.T) {
	job := dispatchedJob(3)
	jobs := newFakeJobStore()
	jobs.put(job)
	trk := newTracker(jobs)

	if err := trk.OnFault(context.Background(), job.ID, 2, "actuator jam"); err != nil {
		t.Fatalf("OnFault: %v", err)
	}

	stored, _ := jobs.GetByID(context.Background(), job.ID)
	if stored.Status != domain.JobStatusFailed {
		t.Errorf("expected FAILED, got %s", stored.Status)
	}
	if stored.Reason != domain.ReasonFault {
		t.Errorf("expected reason %s, got %s", domain.ReasonFault, stored.Reason)
	}
}

func TestOnFault_AfterCompletionIsNoop(t *testing.T) {
	job := dispatchedJob(2)
	jobs := newFakeJobStore()
	jobs.put(job)
	trk := newTracker(jobs)
	ctx := context.Background()

	trk.OnComplete(ctx, job.ID, 2)

	// Запоздавший FAULT не откатывает завершённый job.
	if err := trk.OnFault(ctx, job.ID, 1, "late fault"); err != nil {
		t.Fatalf("late fault should be dropped: %v", err)
	}

	stored, _ := jobs.GetByID(ctx, job.ID)
	if stored.Status != domain.JobStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", stored.Status)
	}
}

func TestTracker_ConcurrentAcks(t *testing.T) {
	job := dispatchedJob(50)
	jobs := newFakeJobStore()
	jobs.put(job)
	trk := newTracker(jobs)
	ctx := context.Background()

	var wg sync.WaitGroup
	for seq := int64(1); seq <= 50; seq++ {
		wg.Add(1)
		go func(seq int64) {
			defer wg.Done()
			if err := trk.OnAck(ctx, job.ID, seq); err != nil {
				t.Errorf("OnAck(%d): %v", seq, err)
			}
		}(seq)
	}
	wg.Wait()

	stored, _ := jobs.GetByID(ctx, job.ID)
	if stored.AckWatermark != 50 {
		t.Errorf("expected watermark 50, got %d", stored.AckWatermark)
	}
	if stored.Status != domain.JobStatusExecuting {
		t.Errorf("expected EXECUTING, got %s", stored.Status)
	}
}
