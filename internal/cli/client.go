package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Fresco/internal/cache"
	"github.com/shaiso/Fresco/internal/domain"
	"github.com/shaiso/Fresco/internal/mq"
	"github.com/shaiso/Fresco/internal/repo"
)

// Client — доступ CLI к инфраструктуре Fresco.
//
// Подключения создаются лениво: команды, которым не нужен RabbitMQ
// или Redis, не требуют их наличия.
type Client struct {
	ctx    context.Context
	logger *slog.Logger

	pool      *pgxpool.Pool
	wallRepo  *repo.WallRepo
	obstRepo  *repo.ObstacleRepo
	jobRepo   *repo.JobRepo
	cache     *cache.ObstacleCache
	publisher *mq.Publisher
	mqConn    *mq.Connection
}

// NewClient создаёт Client. Подключения откладываются до первого использования.
func NewClient(ctx context.Context) *Client {
	// CLI шумит в stderr только при ошибках; структурный лог не нужен.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Client{ctx: ctx, logger: logger}
}

// Close закрывает открытые подключения.
func (c *Client) Close() {
	if c.mqConn != nil {
		c.mqConn.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}

// db лениво открывает пул Postgres и репозитории.
func (c *Client) db() error {
	if c.pool != nil {
		return nil
	}
	pool, err := repo.NewPool(c.ctx)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	c.pool = pool
	c.wallRepo = repo.NewWallRepo(pool)
	c.obstRepo = repo.NewObstacleRepo(pool)
	c.jobRepo = repo.NewJobRepo(pool)
	return nil
}

// obstacleCache лениво создаёт кэш карт препятствий.
func (c *Client) obstacleCache() (*cache.ObstacleCache, error) {
	if c.cache != nil {
		return c.cache, nil
	}
	if err := c.db(); err != nil {
		return nil, err
	}
	rdb, err := cache.NewRedisClient()
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	c.cache = cache.New(rdb, c.obstRepo, cache.TTLFromEnv(), c.logger)
	return c.cache, nil
}

// publish лениво подключается к RabbitMQ. Возвращает nil publisher,
// если брокер недоступен: submit тогда полагается на polling.
func (c *Client) publish() *mq.Publisher {
	if c.publisher != nil {
		return c.publisher
	}
	conn, err := mq.NewConnection(mq.URLFromEnv(), c.logger)
	if err != nil {
		return nil
	}
	c.mqConn = conn
	c.publisher = mq.NewPublisher(conn, c.logger)
	return c.publisher
}

// CreateWall сохраняет новую стену.
func (c *Client) CreateWall(width, height, resolution float64) (*domain.WallSurface, error) {
	if err := c.db(); err != nil {
		return nil, err
	}

	wall := &domain.WallSurface{
		ID:         uuid.New(),
		Width:      width,
		Height:     height,
		Resolution: resolution,
		CreatedAt:  time.Now().UTC(),
	}
	if err := wall.Validate(); err != nil {
		return nil, err
	}
	if err := c.wallRepo.Create(c.ctx, wall); err != nil {
		return nil, err
	}
	return wall, nil
}

// GetWall возвращает стену по ID.
func (c *Client) GetWall(id uuid.UUID) (*domain.WallSurface, error) {
	if err := c.db(); err != nil {
		return nil, err
	}
	wall, err := c.wallRepo.GetByID(c.ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("wall %s not found", id)
		}
		return nil, err
	}
	return wall, nil
}

// IngestObstacles принимает новую карту препятствий для стены.
func (c *Client) IngestObstacles(wallID uuid.UUID, blocked []domain.Cell) (*domain.ObstacleMap, error) {
	oc, err := c.obstacleCache()
	if err != nil {
		return nil, err
	}
	m, err := oc.Ingest(c.ctx, wallID, blocked)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("wall %s not found", wallID)
		}
		return nil, err
	}
	return m, nil
}

// SubmitJob создаёт job и уведомляет оркестратор.
//
// Повторный submit с тем же idempotency key возвращает существующий job.
func (c *Client) SubmitJob(req domain.PlanRequest) (*domain.Job, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if err := c.db(); err != nil {
		return nil, false, err
	}

	if existing, err := c.jobRepo.GetByIdempotencyKey(c.ctx, req.IdempotencyKey); err == nil {
		if !existing.Request.Matches(&req) {
			return nil, false, fmt.Errorf("idempotency key %q is bound to a different request (job %s)",
				req.IdempotencyKey, existing.ID)
		}
		return existing, true, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, err
	}

	job := domain.NewJob(req)
	if err := c.jobRepo.Create(c.ctx, job); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			existing, getErr := c.jobRepo.GetByIdempotencyKey(c.ctx, req.IdempotencyKey)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, true, nil
		}
		return nil, false, err
	}

	// Без брокера оркестратор подхватит job своим polling'ом.
	if pub := c.publish(); pub != nil {
		if err := pub.PublishJobSubmitted(c.ctx, job.ID); err != nil {
			c.logger.Warn("failed to publish job.submitted", "job_id", job.ID, "error", err)
		}
	}

	return job, false, nil
}

// GetJob возвращает job по ID.
func (c *Client) GetJob(id uuid.UUID) (*domain.Job, error) {
	if err := c.db(); err != nil {
		return nil, err
	}
	job, err := c.jobRepo.GetByID(c.ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("job %s not found", id)
		}
		return nil, err
	}
	return job, nil
}

// CancelJob отменяет job, если отправка инструкций ещё не началась.
//
// Отмена — условный UPDATE: оркестратор работает в другом процессе, и
// job мог уйти в DISPATCHING между чтением и записью. Предикат по
// статусу проверяется на стороне БД атомарно с самой записью.
func (c *Client) CancelJob(id uuid.UUID) (*domain.Job, error) {
	if err := c.db(); err != nil {
		return nil, err
	}
	job, err := c.jobRepo.CancelPending(c.ctx, id)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	// Не отменился: либо job нет, либо он уже вышел из отменяемых статусов.
	current, getErr := c.jobRepo.GetByID(c.ctx, id)
	if getErr != nil {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return nil, fmt.Errorf("cannot cancel job in status %s", current.Status)
}

// ListJobs возвращает последние jobs с опциональным фильтром по статусу.
func (c *Client) ListJobs(status string, limit int) ([]domain.Job, error) {
	if err := c.db(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return c.jobRepo.ListRecent(c.ctx, domain.JobStatus(status), limit)
}
