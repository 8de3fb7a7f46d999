package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Fresco/internal/domain"
)

// ObstacleRepo — репозиторий версионированных карт препятствий.
//
// Карты неизменяемы: InsertNext всегда создаёт новую версию, никогда не
// перезаписывает существующую. История версий ограничена PruneHistory.
type ObstacleRepo struct {
	pool *pgxpool.Pool
}

// NewObstacleRepo создаёт новый ObstacleRepo.
func NewObstacleRepo(pool *pgxpool.Pool) *ObstacleRepo {
	return &ObstacleRepo{pool: pool}
}

// GetLatest возвращает последнюю версию карты стены.
func (r *ObstacleRepo) GetLatest(ctx context.Context, wallID uuid.UUID) (*domain.ObstacleMap, error) {
	query := `
		SELECT wall_id, version, blocked, updated_at
		FROM obstacle_maps
		WHERE wall_id = $1
		ORDER BY version DESC
		LIMIT 1
	`
	return r.scanMap(r.pool.QueryRow(ctx, query, wallID))
}

// GetVersion возвращает конкретную версию карты стены.
func (r *ObstacleRepo) GetVersion(ctx context.Context, wallID uuid.UUID, version int64) (*domain.ObstacleMap, error) {
	query := `
		SELECT wall_id, version, blocked, updated_at
		FROM obstacle_maps
		WHERE wall_id = $1 AND version = $2
	`
	return r.scanMap(r.pool.QueryRow(ctx, query, wallID, version))
}

// InsertNext сохраняет новую версию карты (latest+1) и возвращает её.
// Возвращает ErrNotFound, если стена неизвестна.
func (r *ObstacleRepo) InsertNext(ctx context.Context, wallID uuid.UUID, blocked []domain.Cell) (*domain.ObstacleMap, error) {
	exists := false
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM walls WHERE id = $1)`, wallID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check wall: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	blockedJSON, err := json.Marshal(blocked)
	if err != nil {
		return nil, fmt.Errorf("marshal blocked cells: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO obstacle_maps (wall_id, version, blocked, updated_at)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3
		FROM obstacle_maps
		WHERE wall_id = $1
		RETURNING version
	`
	var version int64
	if err := r.pool.QueryRow(ctx, query, wallID, blockedJSON, now).Scan(&version); err != nil {
		return nil, fmt.Errorf("insert obstacle map: %w", err)
	}

	return &domain.ObstacleMap{
		WallID:    wallID,
		Version:   version,
		Blocked:   blocked,
		UpdatedAt: now,
	}, nil
}

// PruneHistory удаляет старые версии, оставляя keep последних на стену.
// Возвращает количество удалённых версий.
func (r *ObstacleRepo) PruneHistory(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	query := `
		DELETE FROM obstacle_maps m
		USING (
			SELECT wall_id, version,
			       ROW_NUMBER() OVER (PARTITION BY wall_id ORDER BY version DESC) AS rn
			FROM obstacle_maps
		) ranked
		WHERE m.wall_id = ranked.wall_id
		  AND m.version = ranked.version
		  AND ranked.rn > $1
	`
	result, err := r.pool.Exec(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("prune obstacle history: %w", err)
	}
	return result.RowsAffected(), nil
}

// scanMap сканирует строку в ObstacleMap.
func (r *ObstacleRepo) scanMap(row pgx.Row) (*domain.ObstacleMap, error) {
	var m domain.ObstacleMap
	var blockedJSON []byte

	err := row.Scan(&m.WallID, &m.Version, &blockedJSON, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan obstacle map: %w", err)
	}

	if blockedJSON != nil {
		if err := json.Unmarshal(blockedJSON, &m.Blocked); err != nil {
			return nil, fmt.Errorf("unmarshal blocked cells: %w", err)
		}
	}
	return &m, nil
}
