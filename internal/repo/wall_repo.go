package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Fresco/internal/domain"
)

// WallRepo — репозиторий стен.
type WallRepo struct {
	pool *pgxpool.Pool
}

// NewWallRepo создаёт новый WallRepo.
func NewWallRepo(pool *pgxpool.Pool) *WallRepo {
	return &WallRepo{pool: pool}
}

// Create сохраняет новую стену.
func (r *WallRepo) Create(ctx context.Context, wall *domain.WallSurface) error {
	query := `
		INSERT INTO walls (id, width, height, resolution, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		wall.ID,
		wall.Width,
		wall.Height,
		wall.Resolution,
		wall.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wall: %w", err)
	}
	return nil
}

// GetByID возвращает стену по ID.
func (r *WallRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WallSurface, error) {
	query := `
		SELECT id, width, height, resolution, created_at
		FROM walls
		WHERE id = $1
	`
	var wall domain.WallSurface
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&wall.ID,
		&wall.Width,
		&wall.Height,
		&wall.Resolution,
		&wall.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan wall: %w", err)
	}
	return &wall, nil
}

// Exists проверяет существование стены без загрузки.
func (r *WallRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM walls WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check wall exists: %w", err)
	}
	return exists, nil
}
