package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/data/pgxutil"
	"github.com/target/harvestd/internal/domain/model"
)

// HarvestObjectRepo provides database operations for harvest objects.
type HarvestObjectRepo struct {
	DB *sql.DB
}

// NewHarvestObjectRepo creates a new HarvestObjectRepo.
func NewHarvestObjectRepo(db *sql.DB) *HarvestObjectRepo {
	return &HarvestObjectRepo{DB: db}
}

// CountNonTerminal counts the job's objects that are still being processed.
func (r *HarvestObjectRepo) CountNonTerminal(ctx context.Context, jobID string) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, objectCountNonTerminalQuery, jobID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count non-terminal objects: %w", err)
	}
	return n, nil
}

// LatestImportFinished returns the most recent import_finished of the job's objects, or nil.
func (r *HarvestObjectRepo) LatestImportFinished(ctx context.Context, jobID string) (*time.Time, error) {
	var latest sql.NullTime
	if err := r.DB.QueryRowContext(ctx,
		`SELECT MAX(import_finished) FROM harvest_object WHERE harvest_job_id = $1`, jobID,
	).Scan(&latest); err != nil {
		return nil, fmt.Errorf("latest import finished: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time.UTC()
	return &t, nil
}

// ListDatasetsWithoutCurrent returns active datasets referenced by the source's
// objects for which no object is marked current.
func (r *HarvestObjectRepo) ListDatasetsWithoutCurrent(ctx context.Context, sourceID string) ([]string, error) {
	ids, err := queryStrings(ctx, r.DB, objectDatasetsWithoutCurrentQuery, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list datasets without current object: %w", err)
	}
	return ids, nil
}

// RelinkCurrent marks the latest COMPLETE object of a dataset current, provided the
// dataset still has no current object when the update runs.
func (r *HarvestObjectRepo) RelinkCurrent(ctx context.Context, datasetID string) (core.RelinkOutcome, error) {
	var objectID string
	err := r.DB.QueryRowContext(ctx, objectRelinkQuery, datasetID).Scan(&objectID)
	switch {
	case err == nil:
		return core.RelinkUpdated, nil
	case isUniqueViolation(err):
		return core.RelinkAlreadyLinked, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("relink current object for %s: %w", datasetID, err)
	}

	var hasCurrent bool
	if err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM harvest_object WHERE package_id = $1 AND current)`, datasetID,
	).Scan(&hasCurrent); err != nil {
		return 0, fmt.Errorf("check current object for %s: %w", datasetID, err)
	}
	if hasCurrent {
		return core.RelinkAlreadyLinked, nil
	}
	return core.RelinkNoValidObject, nil
}

// ListRecords returns the added, updated and deleted datasets of a job ordered by status.
func (r *HarvestObjectRepo) ListRecords(ctx context.Context, jobID string) ([]model.ObjectRecord, error) {
	rows, err := r.DB.QueryContext(ctx, objectRecordsQuery, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job records: %w", err)
	}
	defer rows.Close()

	var out []model.ObjectRecord
	for rows.Next() {
		var rec model.ObjectRecord
		if err := rows.Scan(&rec.ReportStatus, &rec.PackageID, &rec.Title); err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job records: %w", err)
	}
	return out, nil
}

// ListObjectErrors returns the error messages recorded against the job's objects.
func (r *HarvestObjectRepo) ListObjectErrors(ctx context.Context, jobID string) ([]string, error) {
	msgs, err := queryStrings(ctx, r.DB, objectErrorsQuery, jobID)
	if err != nil {
		return nil, fmt.Errorf("list object errors: %w", err)
	}
	return msgs, nil
}

// ListForImport returns current objects selected by filter whose dataset is active.
// ObjectID selects a single object regardless of its current flag.
func (r *HarvestObjectRepo) ListForImport(
	ctx context.Context,
	filter model.ObjectImportFilter,
) ([]*model.HarvestObject, error) {
	q, args := buildImportQuery(filter)

	var objects []model.HarvestObject
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		objects, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.HarvestObject])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list objects for import: %w", err)
	}

	out := make([]*model.HarvestObject, len(objects))
	for i := range objects {
		out[i] = &objects[i]
	}
	return out, nil
}

func buildImportQuery(filter model.ObjectImportFilter) (string, []any) {
	base := `SELECT ` + objectColumns + ` FROM harvest_object ho JOIN package p ON p.id = ho.package_id`
	switch {
	case filter.SourceID != "":
		return base + ` WHERE ho.harvest_source_id = $1 AND ho.current AND p.state = 'active' ORDER BY ho.id`,
			[]any{filter.SourceID}
	case filter.ObjectID != "":
		return base + ` WHERE ho.id = $1 AND p.state = 'active'`, []any{filter.ObjectID}
	case filter.PackageID != "":
		return base + ` WHERE (p.id = $1 OR p.name = $1) AND ho.current AND p.state = 'active' ORDER BY ho.id`,
			[]any{filter.PackageID}
	default:
		return base + ` WHERE ho.current AND p.state = 'active' ORDER BY ho.id`, nil
	}
}

const objectColumns = `ho.id, ho.guid, ho.harvest_job_id, ho.harvest_source_id, ho.package_id, ho.state,
	ho.current, ho.report_status, ho.content, ho.import_finished, ho.created`

const (
	objectCountNonTerminalQuery = `
		SELECT COUNT(*)
		FROM harvest_object
		WHERE harvest_job_id = $1
		  AND state NOT IN ('COMPLETE', 'ERROR', 'STUCK')`

	objectDatasetsWithoutCurrentQuery = `
		SELECT DISTINCT ho.package_id
		FROM harvest_object ho
		JOIN package p ON p.id = ho.package_id
		WHERE ho.harvest_source_id = $1
		  AND p.state = 'active'
		  AND NOT EXISTS (
			SELECT 1 FROM harvest_object cur
			WHERE cur.package_id = ho.package_id AND cur.current
		  )
		ORDER BY ho.package_id`

	// The NOT EXISTS guard makes the relink a compare-and-set: a writer that
	// restored the pointer first turns this into a no-op.
	objectRelinkQuery = `
		UPDATE harvest_object
		SET current = true
		WHERE id = (
			SELECT id FROM harvest_object
			WHERE package_id = $1
			  AND state = 'COMPLETE'
			  AND import_finished IS NOT NULL
			ORDER BY import_finished DESC, created DESC, id DESC
			LIMIT 1
		)
		AND NOT EXISTS (
			SELECT 1 FROM harvest_object WHERE package_id = $1 AND current
		)
		RETURNING id`

	objectRecordsQuery = `
		SELECT ho.report_status, ho.package_id, p.title
		FROM harvest_object ho
		JOIN package p ON p.id = ho.package_id
		WHERE ho.harvest_job_id = $1
		  AND ho.report_status IN ('added', 'updated', 'deleted')
		ORDER BY ho.report_status ASC, p.title`

	objectErrorsQuery = `
		SELECT hoe.message
		FROM harvest_object ho
		JOIN harvest_object_error hoe ON hoe.harvest_object_id = ho.id
		WHERE ho.harvest_job_id = $1
		ORDER BY hoe.created, hoe.id`
)
