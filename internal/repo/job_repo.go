package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Fresco/internal/domain"
)

// uniqueViolation — код ошибки PostgreSQL для конфликта уникальности.
const uniqueViolation = "23505"

// JobRepo — репозиторий jobs.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `
	id, wall_id, request, status, plan_id, map_version, final_seq,
	published_seq, ack_watermark, dispatch_attempts, reason, error,
	last_ack_at, finished_at, idempotency_key, created_at, updated_at,
	version
`

// Create сохраняет новый job.
// Возвращает ErrAlreadyExists при конфликте ключа идемпотентности:
// при конкурентной подаче одинаковых запросов ровно один insert проходит.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	requestJSON, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.WallID,
		requestJSON,
		job.Status,
		job.PlanID,
		job.MapVersion,
		job.FinalSeq,
		job.PublishedSeq,
		job.AckWatermark,
		job.DispatchAttempts,
		nullString(string(job.Reason)),
		nullString(job.Error),
		job.LastAckAt,
		job.FinishedAt,
		job.Request.IdempotencyKey,
		job.CreatedAt,
		job.UpdatedAt,
		job.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID возвращает job по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return r.scanJob(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает job по ключу идемпотентности.
func (r *JobRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE idempotency_key = $1`
	return r.scanJob(r.pool.QueryRow(ctx, query, key))
}

// Update сохраняет текущее состояние job.
// Вызывается после каждого перехода state machine (write-ahead).
//
// Запись условная: строка обновляется, только если её version совпадает
// с version на момент чтения. Per-job блокировки сериализуют писателей
// внутри процесса, но sweeper и CLI пишут из своих процессов — без
// этой проверки их терминальный переход мог бы быть затёрт полной
// записью устаревшей копии. При несовпадении возвращает
// ErrVersionConflict; вызывающий перечитывает job и повторяет.
func (r *JobRepo) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET status = $2, plan_id = $3, map_version = $4, final_seq = $5,
		    published_seq = $6, ack_watermark = $7, dispatch_attempts = $8,
		    reason = $9, error = $10, last_ack_at = $11, finished_at = $12,
		    updated_at = $13, version = version + 1
		WHERE id = $1 AND version = $14
	`
	result, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.PlanID,
		job.MapVersion,
		job.FinalSeq,
		job.PublishedSeq,
		job.AckWatermark,
		job.DispatchAttempts,
		nullString(string(job.Reason)),
		nullString(job.Error),
		job.LastAckAt,
		job.FinishedAt,
		job.UpdatedAt,
		job.Version,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s version %d", ErrVersionConflict, job.ID, job.Version)
	}
	job.Version++
	return nil
}

// cancellableStatuses — статусы, из которых допустима отмена
// (state machine: CANCELLED достижим до начала отправки).
var cancellableStatuses = []string{
	string(domain.JobStatusCreated),
	string(domain.JobStatusPlanning),
	string(domain.JobStatusPlanned),
}

// CancelPending отменяет job одним условным UPDATE.
//
// Для вызывающих из другого процесса (CLI): проверка статуса и переход
// выполняются атомарно на стороне БД, поэтому отмена не может затереть
// job, который оркестратор успел перевести в DISPATCHING. Возвращает
// ErrNotFound, если job не существует либо уже не в отменяемом статусе;
// вызывающий различает эти случаи повторным чтением.
func (r *JobRepo) CancelPending(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $2, finished_at = now(), updated_at = now(),
		    version = version + 1
		WHERE id = $1 AND status = ANY($3) AND NOT archived
		RETURNING ` + jobColumns
	row := r.pool.QueryRow(ctx, query, id, string(domain.JobStatusCancelled), cancellableStatuses)
	return r.scanJob(row)
}

// FailStalled переводит job в FAILED(ExecutionTimeout) одним условным
// UPDATE: строка меняется, только если job всё ещё в одном из statuses
// и прогресса не было с cutoff. Условие исключает гонку с tracker'ом
// другого процесса — подтверждение, пришедшее между выборкой ListStalled
// и этим вызовом, делает предикат ложным. Возвращает true, если job
// был переведён.
func (r *JobRepo) FailStalled(ctx context.Context, id uuid.UUID, statuses []domain.JobStatus, cutoff time.Time, detail string) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $2, reason = $3, error = $4,
		    finished_at = now(), updated_at = now(), version = version + 1
		WHERE id = $1
		  AND status = ANY($5)
		  AND NOT archived
		  AND COALESCE(last_ack_at, updated_at) < $6
	`
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	result, err := r.pool.Exec(ctx, query,
		id,
		string(domain.JobStatusFailed),
		string(domain.ReasonExecutionTimeout),
		detail,
		names,
		cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("fail stalled job: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListInStatus возвращает jobs в указанных статусах (старые первыми).
// Используется polling fallback'ом менеджера для подхвата jobs,
// созданных или брошенных во время простоя процесса.
func (r *JobRepo) ListInStatus(ctx context.Context, statuses []domain.JobStatus, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = ANY($1) AND NOT archived
		ORDER BY created_at ASC
		LIMIT $2
	`
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := r.pool.Query(ctx, query, names, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs in status: %w", err)
	}
	defer rows.Close()

	return r.collectJobs(rows)
}

// ListRecent возвращает последние jobs (новые первыми), с опциональным
// фильтром по статусу. Используется CLI.
func (r *JobRepo) ListRecent(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE ($1 = '' OR status = $1) AND NOT archived
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	return r.collectJobs(rows)
}

// ListStalled возвращает jobs в указанных статусах без прогресса
// подтверждений с момента cutoff. Используется sweeper'ом для
// ExecutionTimeout.
func (r *JobRepo) ListStalled(ctx context.Context, statuses []domain.JobStatus, cutoff time.Time, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = ANY($1)
		  AND NOT archived
		  AND COALESCE(last_ack_at, updated_at) < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := r.pool.Query(ctx, query, names, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stalled jobs: %w", err)
	}
	defer rows.Close()

	return r.collectJobs(rows)
}

// ArchiveFinishedBefore помечает архивными терминальные jobs, завершённые
// до cutoff. Архивный job недоступен для polling и dedup-поиска считается
// завершённой историей. Возвращает количество заархивированных.
func (r *JobRepo) ArchiveFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE jobs
		SET archived = TRUE
		WHERE NOT archived
		  AND finished_at IS NOT NULL
		  AND finished_at < $1
	`
	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive finished jobs: %w", err)
	}
	return result.RowsAffected(), nil
}

// --- Helpers ---

// collectJobs сканирует все строки результата.
func (r *JobRepo) collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// scanJob сканирует одну строку в Job.
func (r *JobRepo) scanJob(row pgx.Row) (*domain.Job, error) {
	job, err := scanJobRow(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// scanJobFromRows сканирует строку из rows в Job.
func (r *JobRepo) scanJobFromRows(rows pgx.Rows) (*domain.Job, error) {
	return scanJobRow(rows.Scan)
}

// scanJobRow — общий сканер для QueryRow и Rows.
func scanJobRow(scan func(dest ...any) error) (*domain.Job, error) {
	var job domain.Job
	var requestJSON []byte
	var reason, jobError, idempotencyKey *string

	err := scan(
		&job.ID,
		&job.WallID,
		&requestJSON,
		&job.Status,
		&job.PlanID,
		&job.MapVersion,
		&job.FinalSeq,
		&job.PublishedSeq,
		&job.AckWatermark,
		&job.DispatchAttempts,
		&reason,
		&jobError,
		&job.LastAckAt,
		&job.FinishedAt,
		&idempotencyKey,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if err := json.Unmarshal(requestJSON, &job.Request); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}

	if reason != nil {
		job.Reason = domain.FailureReason(*reason)
	}
	if jobError != nil {
		job.Error = *jobError
	}

	return &job, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
