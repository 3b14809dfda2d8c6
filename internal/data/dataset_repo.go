package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
)

// DatasetRepo provides database operations for local datasets.
type DatasetRepo struct {
	DB *sql.DB
}

// NewDatasetRepo creates a new DatasetRepo.
func NewDatasetRepo(db *sql.DB) *DatasetRepo {
	return &DatasetRepo{DB: db}
}

// ListOrphans returns active datasets of the default type owned by q.OwnerOrg that
// no harvest object references, skipping datasets carrying the external marker extra.
func (r *DatasetRepo) ListOrphans(ctx context.Context, q model.OrphanQuery) ([]*model.Dataset, error) {
	rows, err := r.DB.QueryContext(ctx, datasetOrphansQuery, q.OwnerOrg, model.DatasetTypeDefault, q.MarkerKey, q.MarkerValue)
	if err != nil {
		return nil, fmt.Errorf("list orphan datasets: %w", err)
	}
	defer rows.Close()

	var out []*model.Dataset
	for rows.Next() {
		var d model.Dataset
		if err := rows.Scan(&d.ID, &d.Name, &d.Title, &d.Type, &d.State, &d.OwnerOrg); err != nil {
			return nil, fmt.Errorf("scan orphan dataset: %w", err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphan datasets: %w", err)
	}
	return out, nil
}

// MarkDeleted soft-deletes a dataset.
func (r *DatasetRepo) MarkDeleted(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE package SET state = 'deleted', metadata_modified = now() WHERE id = $1 AND state <> 'deleted'`, id)
	if err != nil {
		return fmt.Errorf("delete dataset %s: %w", id, err)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, id)
	}
	return nil
}

// GetDocument returns the indexable representation of a dataset. Active extras
// are added as extras_<key> fields.
func (r *DatasetRepo) GetDocument(ctx context.Context, id string) (model.SourceDocument, error) {
	var d model.Dataset
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, title, type, state, owner_org FROM package WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.Title, &d.Type, &d.State, &d.OwnerOrg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, id)
		}
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}

	doc := model.SourceDocument{
		"id":           d.ID,
		"name":         d.Name,
		"title":        d.Title,
		"dataset_type": d.Type,
		"state":        d.State,
	}
	if d.OwnerOrg != nil {
		doc["owner_org"] = *d.OwnerOrg
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT key, COALESCE(value, '') FROM package_extra WHERE package_id = $1 AND state = 'active' ORDER BY key`, id)
	if err != nil {
		return nil, fmt.Errorf("get dataset extras %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan dataset extra: %w", err)
		}
		doc["extras_"+k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset extras: %w", err)
	}
	return doc, nil
}

const datasetOrphansQuery = `
	SELECT p.id, p.name, p.title, p.type, p.state, p.owner_org
	FROM package p
	WHERE p.owner_org = $1
	  AND p.type = $2
	  AND p.state = 'active'
	  AND NOT EXISTS (SELECT 1 FROM harvest_object ho WHERE ho.package_id = p.id)
	  AND NOT EXISTS (
		SELECT 1 FROM package_extra pe
		WHERE pe.package_id = p.id AND pe.key = $3 AND pe.value = $4
	  )
	ORDER BY p.id`
