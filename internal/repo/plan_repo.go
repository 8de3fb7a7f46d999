package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Fresco/internal/domain"
)

// PlanRepo — репозиторий построенных планов.
// Планы неизменяемы: только Create и чтение.
type PlanRepo struct {
	pool *pgxpool.Pool
}

// NewPlanRepo создаёт новый PlanRepo.
func NewPlanRepo(pool *pgxpool.Pool) *PlanRepo {
	return &PlanRepo{pool: pool}
}

// Create сохраняет план.
func (r *PlanRepo) Create(ctx context.Context, plan *domain.PlannedPath) error {
	waypointsJSON, err := json.Marshal(plan.Waypoints)
	if err != nil {
		return fmt.Errorf("marshal waypoints: %w", err)
	}

	query := `
		INSERT INTO plans (id, wall_id, map_version, waypoints, cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		plan.ID,
		plan.WallID,
		plan.MapVersion,
		waypointsJSON,
		plan.Cost,
		plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// GetByID возвращает план по ID.
func (r *PlanRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PlannedPath, error) {
	query := `
		SELECT id, wall_id, map_version, waypoints, cost, created_at
		FROM plans
		WHERE id = $1
	`
	var plan domain.PlannedPath
	var waypointsJSON []byte

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&plan.ID,
		&plan.WallID,
		&plan.MapVersion,
		&waypointsJSON,
		&plan.Cost,
		&plan.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan plan: %w", err)
	}

	if err := json.Unmarshal(waypointsJSON, &plan.Waypoints); err != nil {
		return nil, fmt.Errorf("unmarshal waypoints: %w", err)
	}
	return &plan, nil
}
