package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Fresco/internal/domain"
	"github.com/shaiso/Fresco/internal/repo"
	"github.com/shaiso/Fresco/internal/telemetry"
)

// defaultTTL — время жизни кэшированной карты.
const defaultTTL = 5 * time.Minute

// ObstacleStore — долговременное хранилище карт препятствий.
// Реализуется repo.ObstacleRepo.
type ObstacleStore interface {
	// GetLatest возвращает последнюю версию карты стены.
	GetLatest(ctx context.Context, wallID uuid.UUID) (*domain.ObstacleMap, error)

	// InsertNext сохраняет новую версию карты (latest+1) и возвращает её.
	InsertNext(ctx context.Context, wallID uuid.UUID, blocked []domain.Cell) (*domain.ObstacleMap, error)
}

// ObstacleCache — сквозной кэш карт препятствий поверх Redis.
//
// Политика согласованности:
//   - read-through при промахе
//   - write-through при приёме новых данных (Ingest)
//   - TTL ограничивает время жизни записи
//
// Это bounded staleness, не строгая согласованность: запрос планирования
// объявляет минимально допустимую версию, и устаревшая запись кэша
// обнаруживается по номеру версии.
type ObstacleCache struct {
	rdb    *redis.Client
	store  ObstacleStore
	ttl    time.Duration
	logger *slog.Logger
}

// New создаёт ObstacleCache. ttl <= 0 означает значение по умолчанию.
func New(rdb *redis.Client, store ObstacleStore, ttl time.Duration, logger *slog.Logger) *ObstacleCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ObstacleCache{rdb: rdb, store: store, ttl: ttl, logger: logger}
}

// key возвращает ключ кэша для стены.
func key(wallID uuid.UUID) string {
	return fmt.Sprintf("obstacle:%s", wallID)
}

// cacheEntry — значение в Redis. Версия внутри значения нужна для
// проверки свежести без похода в БД.
type cacheEntry struct {
	Version   int64         `json:"version"`
	Blocked   []domain.Cell `json:"blocked"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Get возвращает карту препятствий версии >= minVersion.
//
// Если кэш содержит неистёкшую запись достаточной версии — возвращает её.
// Иначе читает из хранилища, кладёт в кэш с TTL и возвращает.
// ErrNotFound, если стена неизвестна; ErrStale, если хранилище не может
// выдать версию >= minVersion.
func (c *ObstacleCache) Get(ctx context.Context, wallID uuid.UUID, minVersion int64) (*domain.ObstacleMap, error) {
	raw, err := c.rdb.Get(ctx, key(wallID)).Bytes()
	if err == nil {
		var entry cacheEntry
		if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
			if entry.Version >= minVersion {
				telemetry.CacheHits.Inc()
				return &domain.ObstacleMap{
					WallID:    wallID,
					Version:   entry.Version,
					Blocked:   entry.Blocked,
					UpdatedAt: entry.UpdatedAt,
				}, nil
			}
			c.logger.Debug("cached map too old, falling through",
				"wall_id", wallID,
				"cached_version", entry.Version,
				"min_version", minVersion,
			)
		} else {
			c.logger.Warn("corrupt cache entry, falling through",
				"wall_id", wallID,
				"error", jsonErr,
			)
		}
	} else if !errors.Is(err, redis.Nil) {
		// Redis недоступен — деградируем до чтения из хранилища.
		c.logger.Warn("cache read failed, falling through", "wall_id", wallID, "error", err)
	}

	telemetry.CacheMisses.Inc()

	m, err := c.store.GetLatest(ctx, wallID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: wall %s", ErrNotFound, wallID)
		}
		return nil, fmt.Errorf("load obstacle map: %w", err)
	}

	if m.Version < minVersion {
		return nil, fmt.Errorf("%w: have version %d, need >= %d", ErrStale, m.Version, minVersion)
	}

	c.put(ctx, m)
	return m, nil
}

// Ingest принимает новые данные о препятствиях: сохраняет версию latest+1
// в долговременное хранилище и синхронно обновляет кэш (write-through).
func (c *ObstacleCache) Ingest(ctx context.Context, wallID uuid.UUID, blocked []domain.Cell) (*domain.ObstacleMap, error) {
	m, err := c.store.InsertNext(ctx, wallID, blocked)
	if err != nil {
		return nil, fmt.Errorf("persist obstacle map: %w", err)
	}

	c.put(ctx, m)

	c.logger.Info("obstacle map ingested",
		"wall_id", wallID,
		"version", m.Version,
		"blocked_cells", len(blocked),
	)
	return m, nil
}

// Invalidate вытесняет кэшированную карту стены.
// Вызывается при приёме данных в обход этого процесса.
func (c *ObstacleCache) Invalidate(ctx context.Context, wallID uuid.UUID) error {
	if err := c.rdb.Del(ctx, key(wallID)).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", wallID, err)
	}
	return nil
}

// put записывает карту в кэш с TTL. Ошибка записи не фатальна:
// кэш восстановится при следующем read-through.
func (c *ObstacleCache) put(ctx context.Context, m *domain.ObstacleMap) {
	entry := cacheEntry{
		Version:   m.Version,
		Blocked:   m.Blocked,
		UpdatedAt: m.UpdatedAt,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("marshal cache entry", "wall_id", m.WallID, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, key(m.WallID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "wall_id", m.WallID, "error", err)
	}
}

// TTLFromEnv читает CACHE_TTL (duration, например "5m").
// Возвращает 0 при отсутствии или ошибке парсинга.
func TTLFromEnv() time.Duration {
	v := os.Getenv("CACHE_TTL")
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

// NewRedisClient создаёт клиент Redis из REDIS_URL.
func NewRedisClient() (*redis.Client, error) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
