package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/data/pgxutil"
)

// clearStep is one ordered delete run while clearing a source.
type clearStep struct {
	name  string
	query string
	// global steps act on datasets already marked to_delete and take no arguments.
	global bool
}

// clearSteps lists the delete steps in foreign-key order. Datasets are marked
// to_delete first so later steps can find them once the harvest objects are gone.
var clearSteps = []clearStep{
	{
		name: "mark_datasets",
		query: `UPDATE package SET state = 'to_delete'
			WHERE id IN (SELECT package_id FROM harvest_object WHERE harvest_source_id = $1 AND package_id IS NOT NULL)`,
	},
	{
		name:   "dataset_extras",
		global: true,
		query:  `DELETE FROM package_extra WHERE package_id IN (SELECT id FROM package WHERE state = 'to_delete')`,
	},
	{
		name:   "dataset_memberships",
		global: true,
		query:  `DELETE FROM member WHERE table_id IN (SELECT id FROM package WHERE state = 'to_delete')`,
	},
	{
		name: "object_errors",
		query: `DELETE FROM harvest_object_error
			WHERE harvest_object_id IN (SELECT id FROM harvest_object WHERE harvest_source_id = $1)`,
	},
	{
		name: "object_extras",
		query: `DELETE FROM harvest_object_extra
			WHERE harvest_object_id IN (SELECT id FROM harvest_object WHERE harvest_source_id = $1)`,
	},
	{
		name:  "objects",
		query: `DELETE FROM harvest_object WHERE harvest_source_id = $1`,
	},
	{
		name: "gather_errors",
		query: `DELETE FROM harvest_gather_error
			WHERE harvest_job_id IN (SELECT id FROM harvest_job WHERE source_id = $1)`,
	},
	{
		name:  "jobs",
		query: `DELETE FROM harvest_job WHERE source_id = $1`,
	},
	{
		name:   "datasets",
		global: true,
		query:  `DELETE FROM package WHERE state = 'to_delete'`,
	},
}

// ClearStepNames returns the clear steps in execution order.
func ClearStepNames() []string {
	names := make([]string, len(clearSteps))
	for i, s := range clearSteps {
		names[i] = s.name
	}
	return names
}

// SourceClearRepo removes everything a source has harvested while keeping the source.
type SourceClearRepo struct {
	DB *sql.DB
}

// NewSourceClearRepo creates a new SourceClearRepo.
func NewSourceClearRepo(db *sql.DB) *SourceClearRepo {
	return &SourceClearRepo{DB: db}
}

// ClearSource runs every clear step in a single transaction.
func (r *SourceClearRepo) ClearSource(ctx context.Context, sourceID string) (core.ClearSourceResult, error) {
	result := core.ClearSourceResult{Steps: make(map[string]int64, len(clearSteps))}
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			for _, step := range clearSteps {
				n, err := runClearStep(ctx, tx, step, sourceID)
				if err != nil {
					return err
				}
				result.Steps[step.name] = n
			}
			return nil
		},
	})
	if err != nil {
		return core.ClearSourceResult{}, fmt.Errorf("clear source %s: %w", sourceID, err)
	}
	return result, nil
}

func runClearStep(ctx context.Context, tx *sql.Tx, step clearStep, sourceID string) (int64, error) {
	var args []any
	if !step.global {
		args = append(args, sourceID)
	}
	res, err := tx.ExecContext(ctx, step.query, args...)
	if err != nil {
		return 0, fmt.Errorf("step %s: %w", step.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("step %s rows affected: %w", step.name, err)
	}
	return n, nil
}
