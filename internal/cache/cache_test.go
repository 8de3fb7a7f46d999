package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Fresco/internal/domain"
	"github.com/shaiso/Fresco/internal/repo"
)

// fakeStore — хранилище карт в памяти с подсчётом обращений.
type fakeStore struct {
	maps     map[uuid.UUID]*domain.ObstacleMap
	getCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{maps: make(map[uuid.UUID]*domain.ObstacleMap)}
}

func (s *fakeStore) GetLatest(_ context.Context, wallID uuid.UUID) (*domain.ObstacleMap, error) {
	s.getCalls++
	m, ok := s.maps[wallID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return m, nil
}

func (s *fakeStore) InsertNext(_ context.Context, wallID uuid.UUID, blocked []domain.Cell) (*domain.ObstacleMap, error) {
	var version int64 = 1
	if cur, ok := s.maps[wallID]; ok {
		version = cur.Version + 1
	}
	m := &domain.ObstacleMap{
		WallID:    wallID,
		Version:   version,
		Blocked:   blocked,
		UpdatedAt: time.Now().UTC(),
	}
	s.maps[wallID] = m
	return m, nil
}

// testCache поднимает miniredis и кэш поверх fake-хранилища.
func testCache(t *testing.T, ttl time.Duration) (*ObstacleCache, *fakeStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := newFakeStore()
	return New(rdb, store, ttl, nil), store, mr
}

func TestObstacleCache_ReadThrough(t *testing.T) {
	c, store, _ := testCache(t, 0)
	ctx := context.Background()
	wallID := uuid.New()

	store.maps[wallID] = &domain.ObstacleMap{
		WallID:  wallID,
		Version: 2,
		Blocked: []domain.Cell{{X: 1, Y: 1}},
	}

	// Промах: чтение из хранилища, запись в кэш.
	m, err := c.Get(ctx, wallID, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Version != 2 {
		t.Errorf("expected version 2, got %d", m.Version)
	}
	if store.getCalls != 1 {
		t.Errorf("expected 1 store read, got %d", store.getCalls)
	}

	// Повторное чтение обслуживается кэшем.
	m, err = c.Get(ctx, wallID, 0)
	if err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if m.Version != 2 || len(m.Blocked) != 1 {
		t.Errorf("cached map mismatch: version %d, %d blocked", m.Version, len(m.Blocked))
	}
	if store.getCalls != 1 {
		t.Errorf("cached read should not hit store, got %d calls", store.getCalls)
	}
}

func TestObstacleCache_NotFound(t *testing.T) {
	c, _, _ := testCache(t, 0)

	_, err := c.Get(context.Background(), uuid.New(), 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestObstacleCache_Stale(t *testing.T) {
	c, store, _ := testCache(t, 0)
	ctx := context.Background()
	wallID := uuid.New()

	store.maps[wallID] = &domain.ObstacleMap{WallID: wallID, Version: 3}

	// Версии 3 достаточно для minVersion 3.
	if _, err := c.Get(ctx, wallID, 3); err != nil {
		t.Fatalf("Get with satisfiable min version: %v", err)
	}

	// Версии 5 нет даже в хранилище.
	_, err := c.Get(ctx, wallID, 5)
	if !errors.Is(err, ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}
}

func TestObstacleCache_StaleCacheFallsThrough(t *testing.T) {
	c, store, _ := testCache(t, 0)
	ctx := context.Background()
	wallID := uuid.New()

	// Кэшируем версию 1, затем хранилище получает версию 2 в обход кэша.
	store.maps[wallID] = &domain.ObstacleMap{WallID: wallID, Version: 1}
	if _, err := c.Get(ctx, wallID, 0); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	store.maps[wallID] = &domain.ObstacleMap{WallID: wallID, Version: 2}

	// minVersion 2 обнаруживает устаревший кэш и читает хранилище.
	m, err := c.Get(ctx, wallID, 2)
	if err != nil {
		t.Fatalf("Get with min version 2: %v", err)
	}
	if m.Version != 2 {
		t.Errorf("expected version 2, got %d", m.Version)
	}

	// Без min version кэш уже обновлён до версии 2 (write-back после промаха).
	calls := store.getCalls
	m, err = c.Get(ctx, wallID, 0)
	if err != nil {
		t.Fatalf("Get after refresh: %v", err)
	}
	if m.Version != 2 {
		t.Errorf("cache should hold refreshed version 2, got %d", m.Version)
	}
	if store.getCalls != calls {
		t.Error("refreshed entry should be served from cache")
	}
}

func TestObstacleCache_TTLExpiry(t *testing.T) {
	c, store, mr := testCache(t, time.Minute)
	ctx := context.Background()
	wallID := uuid.New()

	store.maps[wallID] = &domain.ObstacleMap{WallID: wallID, Version: 1}
	if _, err := c.Get(ctx, wallID, 0); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := c.Get(ctx, wallID, 0); err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	if store.getCalls != 2 {
		t.Errorf("expired entry should re-read store, got %d calls", store.getCalls)
	}
}

func TestObstacleCache_Ingest(t *testing.T) {
	c, store, _ := testCache(t, 0)
	ctx := context.Background()
	wallID := uuid.New()

	m1, err := c.Ingest(ctx, wallID, []domain.Cell{{X: 0, Y: 0}})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if m1.Version != 1 {
		t.Errorf("first ingest should be version 1, got %d", m1.Version)
	}

	m2, err := c.Ingest(ctx, wallID, []domain.Cell{{X: 1, Y: 1}})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if m2.Version != 2 {
		t.Errorf("second ingest should be version 2, got %d", m2.Version)
	}

	// Write-through: чтение после ingest не ходит в хранилище.
	calls := store.getCalls
	got, err := c.Get(ctx, wallID, 2)
	if err != nil {
		t.Fatalf("Get after ingest: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("expected version 2, got %d", got.Version)
	}
	if store.getCalls != calls {
		t.Error("ingested map should be served from cache")
	}
}

func TestObstacleCache_Invalidate(t *testing.T) {
	c, store, _ := testCache(t, 0)
	ctx := context.Background()
	wallID := uuid.New()

	store.maps[wallID] = &domain.ObstacleMap{WallID: wallID, Version: 1}
	if _, err := c.Get(ctx, wallID, 0); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	if err := c.Invalidate(ctx, wallID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if _, err := c.Get(ctx, wallID, 0); err != nil {
		t.Fatalf("Get after invalidate: %v", err)
	}
	if store.getCalls != 2 {
		t.Errorf("invalidated entry should re-read store, got %d calls", store.getCalls)
	}
}

func TestObstacleCache_CorruptEntryFallsThrough(t *testing.T) {
	c, store, mr := testCache(t, 0)
	ctx := context.Background()
	wallID := uuid.New()

	store.maps[wallID] = &domain.ObstacleMap{WallID: wallID, Version: 4}
	mr.Set("obstacle:"+wallID.String(), "{not json")

	m, err := c.Get(ctx, wallID, 0)
	if err != nil {
		t.Fatalf("Get with corrupt entry: %v", err)
	}
	if m.Version != 4 {
		t.Errorf("expected version 4 from store, got %d", m.Version)
	}
}
