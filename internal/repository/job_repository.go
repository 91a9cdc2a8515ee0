package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/episodeline/pipeline/internal/model"
)

const jobColumns = `id, episode_id, edit_plan_id, status, processing_method, complexity_score,
	progress_percentage, estimated_duration_seconds, started_at, completed_at,
	processing_duration_seconds, output_key, output_url, error_message,
	worker_request_id, worker_instance_id, version, created_at, updated_at`

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db.Conn()}
}

func (r *JobRepository) Create(ctx context.Context, job *model.RenderJob) error {
	if job.Version == 0 {
		job.Version = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO render_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.EpisodeID, job.EditPlanID, job.Status, job.ProcessingMethod, job.ComplexityScore,
		job.ProgressPercentage, job.EstimatedDurationSeconds, nullTime(job.StartedAt), nullTime(job.CompletedAt),
		nullInt(job.ProcessingDurationSeconds), nullString(job.OutputKey), nullString(job.OutputURL), nullString(job.ErrorMessage),
		nullString(job.WorkerRequestID), nullString(job.WorkerInstanceID), job.Version,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *JobRepository) Get(ctx context.Context, id string) (*model.RenderJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM render_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

func (r *JobRepository) ListByEpisode(ctx context.Context, episodeID string) ([]model.RenderJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM render_jobs WHERE episode_id = ? ORDER BY created_at DESC
	`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []model.RenderJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Update writes every mutable column, guarded by the version the caller
// read. On success job.Version is advanced.
func (r *JobRepository) Update(ctx context.Context, job *model.RenderJob) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE render_jobs SET
			status = ?, progress_percentage = ?, started_at = ?, completed_at = ?,
			processing_duration_seconds = ?, output_key = ?, output_url = ?, error_message = ?,
			worker_request_id = ?, worker_instance_id = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, job.Status, job.ProgressPercentage, nullTime(job.StartedAt), nullTime(job.CompletedAt),
		nullInt(job.ProcessingDurationSeconds), nullString(job.OutputKey), nullString(job.OutputURL), nullString(job.ErrorMessage),
		nullString(job.WorkerRequestID), nullString(job.WorkerInstanceID), formatTime(now),
		job.ID, job.Version)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.Get(ctx, job.ID); err != nil {
			return err
		}
		return ErrVersionConflict
	}

	job.Version++
	job.UpdatedAt = now
	return nil
}

func (r *JobRepository) CountByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM render_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.JobStatus]int{
		model.JobStatusQueued:     0,
		model.JobStatusProcessing: 0,
		model.JobStatusCompleted:  0,
		model.JobStatusFailed:     0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[model.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.RenderJob, error) {
	var job model.RenderJob
	var startedAt, completedAt, outputKey, outputURL, errMsg sql.NullString
	var workerRequest, workerInstance sql.NullString
	var duration sql.NullInt64
	var createdAt, updatedAt, status, method string

	err := row.Scan(&job.ID, &job.EpisodeID, &job.EditPlanID, &status, &method, &job.ComplexityScore,
		&job.ProgressPercentage, &job.EstimatedDurationSeconds, &startedAt, &completedAt,
		&duration, &outputKey, &outputURL, &errMsg,
		&workerRequest, &workerInstance, &job.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	job.ProcessingMethod = model.ProcessingMethod(method)
	job.StartedAt = scanTime(startedAt)
	job.CompletedAt = scanTime(completedAt)
	if duration.Valid {
		d := int(duration.Int64)
		job.ProcessingDurationSeconds = &d
	}
	job.OutputKey = scanString(outputKey)
	job.OutputURL = scanString(outputURL)
	job.ErrorMessage = scanString(errMsg)
	job.WorkerRequestID = scanString(workerRequest)
	job.WorkerInstanceID = scanString(workerInstance)
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func wrapNotFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", what, err)
	}
	return nil
}
