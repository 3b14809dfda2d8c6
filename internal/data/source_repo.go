package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/harvestd/internal/data/pgxutil"
	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
)

// SourceDatasetType is the dataset type recorded on indexed source documents.
const SourceDatasetType = "harvest"

// SourceRepo provides database operations for harvest sources.
type SourceRepo struct {
	DB *sql.DB
}

// NewSourceRepo creates a new SourceRepo instance with the given database connection.
func NewSourceRepo(db *sql.DB) *SourceRepo {
	return &SourceRepo{DB: db}
}

func (r *SourceRepo) collectSources(ctx context.Context, q string, args ...any) ([]*model.Source, error) {
	var sources []model.Source
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		sources, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Source])
		return err
	})
	if err != nil {
		return nil, err
	}

	result := make([]*model.Source, len(sources))
	for i := range sources {
		result[i] = &sources[i]
	}
	return result, nil
}

// GetByID retrieves a source by its ID.
func (r *SourceRepo) GetByID(ctx context.Context, id string) (*model.Source, error) {
	var source model.Source
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, sourceGetByIDQuery, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		source, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Source])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, id)
		}
		return nil, fmt.Errorf("failed to get source by ID: %w", err)
	}
	return &source, nil
}

// ListDue returns active, non-manual sources whose next run is unset or at or before q.Now.
// Non-sysadmin actors only see sources owned by their organizations.
func (r *SourceRepo) ListDue(ctx context.Context, q model.DueSourcesQuery) ([]*model.Source, error) {
	var (
		sources []*model.Source
		err     error
	)
	if q.Actor.Sysadmin {
		sources, err = r.collectSources(ctx, sourceListDueQuery, q.Now.UTC())
	} else {
		if len(q.Actor.OrgIDs) == 0 {
			return nil, nil
		}
		sources, err = r.collectSources(ctx, sourceListDueForOrgsQuery, q.Now.UTC(), q.Actor.OrgIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list due sources: %w", err)
	}
	return sources, nil
}

// ListActive returns every active source ordered by name.
func (r *SourceRepo) ListActive(ctx context.Context) ([]*model.Source, error) {
	sources, err := r.collectSources(ctx, sourceListActiveQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}
	return sources, nil
}

// UpdateNextRun persists the next time a source is due.
func (r *SourceRepo) UpdateNextRun(ctx context.Context, id string, next time.Time) error {
	return r.updateOne(ctx, `UPDATE harvest_source SET next_run = $2 WHERE id = $1`, id, next.UTC())
}

// UpdateConfig replaces the raw JSON configuration of a source.
func (r *SourceRepo) UpdateConfig(ctx context.Context, id string, config string) error {
	return r.updateOne(ctx, `UPDATE harvest_source SET config = $2 WHERE id = $1`, id, config)
}

func (r *SourceRepo) updateOne(ctx context.Context, q, id string, value any) error {
	res, err := r.DB.ExecContext(ctx, q, id, value)
	if err != nil {
		return fmt.Errorf("failed to update source %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSourceNotFound, id)
	}
	return nil
}

// GetDocument returns the indexable representation of a source. Configuration
// keys are flattened into the document alongside the source's own fields.
func (r *SourceRepo) GetDocument(ctx context.Context, id string) (model.SourceDocument, error) {
	src, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return SourceToDocument(src), nil
}

// SourceToDocument flattens a source and its configuration into an index document.
// Configuration keys never overwrite the source's own fields.
func SourceToDocument(src *model.Source) model.SourceDocument {
	doc := model.SourceDocument{}
	if cfg, err := src.ParsedConfig(); err == nil {
		for k, v := range cfg {
			doc[k] = v
		}
	}

	doc["id"] = src.ID
	doc["name"] = src.Name
	doc["title"] = src.Title
	doc["url"] = src.URL
	doc["source_type"] = src.Type
	doc["frequency"] = string(src.Frequency)
	doc["config"] = src.Config
	doc["dataset_type"] = SourceDatasetType
	doc["state"] = model.DatasetStateActive
	if !src.Active {
		doc["state"] = model.DatasetStateDeleted
	}
	if src.OwnerOrg != nil {
		doc["owner_org"] = *src.OwnerOrg
	}
	if src.NextRun != nil {
		doc["next_run"] = src.NextRun.UTC().Format(time.RFC3339)
	}
	doc["metadata_created"] = src.CreatedAt.UTC().Format(time.RFC3339)
	return doc
}

const sourceColumns = `id, name, title, url, source_type, frequency, config, active, owner_org, next_run, created`

const (
	sourceGetByIDQuery = `SELECT ` + sourceColumns + ` FROM harvest_source WHERE id = $1`

	sourceListDueQuery = `
		SELECT ` + sourceColumns + `
		FROM harvest_source
		WHERE active
		  AND frequency <> 'MANUAL'
		  AND (next_run IS NULL OR next_run <= $1)
		ORDER BY next_run NULLS FIRST, id`

	sourceListDueForOrgsQuery = `
		SELECT ` + sourceColumns + `
		FROM harvest_source
		WHERE active
		  AND frequency <> 'MANUAL'
		  AND (next_run IS NULL OR next_run <= $1)
		  AND owner_org = ANY($2)
		ORDER BY next_run NULLS FIRST, id`

	sourceListActiveQuery = `
		SELECT ` + sourceColumns + `
		FROM harvest_source
		WHERE active
		ORDER BY name`
)
