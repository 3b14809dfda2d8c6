package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
)

// JobRepo provides database operations for harvest jobs.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	newID        func() string
}

// JobRepoOptions configures a JobRepo.
type JobRepoOptions struct {
	TimeProvider TimeProvider
	// IDGenerator overrides job ID generation; defaults to random UUIDs.
	IDGenerator func() string
}

// NewJobRepo creates a new JobRepo instance with the given database connection.
func NewJobRepo(db *sql.DB, opts JobRepoOptions) *JobRepo {
	if opts.TimeProvider == nil {
		opts.TimeProvider = &RealTimeProvider{}
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = uuid.NewString
	}
	return &JobRepo{DB: db, timeProvider: opts.TimeProvider, newID: opts.IDGenerator}
}

// Create inserts a New job for sourceID. The partial unique index on active jobs
// turns a concurrent second creation into domain.ErrJobAlreadyExists.
func (r *JobRepo) Create(ctx context.Context, sourceID string) (*model.Job, error) {
	job := &model.Job{
		ID:        r.newID(),
		SourceID:  sourceID,
		Status:    model.JobStatusNew,
		CreatedAt: r.timeProvider.Now().UTC(),
	}

	var exists bool
	if err := r.DB.QueryRowContext(ctx, jobActiveExistsQuery, sourceID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check active job: %w", err)
	}
	if exists {
		return nil, domain.ErrJobAlreadyExists
	}

	_, err := r.DB.ExecContext(ctx, jobInsertQuery, job.ID, job.SourceID, string(job.Status), job.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrJobAlreadyExists
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM harvest_job WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs matching opts ordered by creation time.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	var (
		where []string
		args  []any
	)
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.SourceID != "" {
		args = append(args, opts.SourceID)
		where = append(where, fmt.Sprintf("source_id = $%d", len(args)))
	}
	if opts.GatherFinished {
		where = append(where, "gather_finished IS NOT NULL")
	}

	q := `SELECT ` + jobColumns + ` FROM harvest_job`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created, id`

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// MarkRunning moves a New job to Running. It returns false when another writer got there first.
func (r *JobRepo) MarkRunning(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE harvest_job SET status = 'Running' WHERE id = $1 AND status = 'New'`, id)
	if err != nil {
		return false, fmt.Errorf("mark job running: %w", err)
	}
	return affectedOne(res)
}

// RevertToNew undoes MarkRunning for a job that never reached the gather queue.
func (r *JobRepo) RevertToNew(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE harvest_job SET status = 'New' WHERE id = $1 AND status = 'Running' AND gather_started IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("revert job to new: %w", err)
	}
	return affectedOne(res)
}

// MarkFinished moves a Running job to Finished with the given finish time.
func (r *JobRepo) MarkFinished(ctx context.Context, id string, finished time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE harvest_job SET status = 'Finished', finished = $2 WHERE id = $1 AND status = 'Running'`,
		id, finished.UTC())
	if err != nil {
		return false, fmt.Errorf("mark job finished: %w", err)
	}
	return affectedOne(res)
}

// Stats counts object outcomes of a job. Errored counts objects in the ERROR state;
// the rest come from the objects' report status.
func (r *JobRepo) Stats(ctx context.Context, jobID string) (model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, jobStatsQuery, jobID).Scan(&s.Added, &s.Updated, &s.Deleted, &s.Errored)
	if err != nil {
		return model.JobStats{}, fmt.Errorf("job stats: %w", err)
	}
	return s, nil
}

// ListGatherErrors returns the gather-stage error messages of a job in creation order.
func (r *JobRepo) ListGatherErrors(ctx context.Context, jobID string) ([]string, error) {
	return queryStrings(ctx, r.DB,
		`SELECT message FROM harvest_gather_error WHERE harvest_job_id = $1 ORDER BY created, id`, jobID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job    model.Job
		status string
	)
	if err := row.Scan(&job.ID, &job.SourceID, &status, &job.GatherStarted, &job.GatherFinished,
		&job.CreatedAt, &job.FinishedAt); err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(status)
	return &job, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryStrings(ctx context.Context, db queryer, q string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const jobColumns = `id, source_id, status, gather_started, gather_finished, created, finished`

const (
	jobActiveExistsQuery = `
		SELECT EXISTS(
			SELECT 1 FROM harvest_job WHERE source_id = $1 AND status IN ('New', 'Running')
		)`

	jobInsertQuery = `INSERT INTO harvest_job (id, source_id, status, created) VALUES ($1, $2, $3, $4)`

	jobStatsQuery = `
		SELECT
			COUNT(*) FILTER (WHERE report_status = 'added'),
			COUNT(*) FILTER (WHERE report_status = 'updated'),
			COUNT(*) FILTER (WHERE report_status = 'deleted'),
			COUNT(*) FILTER (WHERE state = 'ERROR')
		FROM harvest_object
		WHERE harvest_job_id = $1`
)
