package data

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/domain/model"
)

func newMockObjectRepo(t *testing.T) (*HarvestObjectRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewHarvestObjectRepo(db), mock
}

func TestHarvestObjectRepo_CountNonTerminal(t *testing.T) {
	repo, mock := newMockObjectRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(`state NOT IN ('COMPLETE', 'ERROR', 'STUCK')`)).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountNonTerminal(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHarvestObjectRepo_LatestImportFinished(t *testing.T) {
	repo, mock := newMockObjectRepo(t)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT MAX\(import_finished\)`).WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(ts))
	mock.ExpectQuery(`SELECT MAX\(import_finished\)`).WithArgs("job-2").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	got, err := repo.LatestImportFinished(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, ts.Equal(*got))

	got, err = repo.LatestImportFinished(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHarvestObjectRepo_RelinkCurrent(t *testing.T) {
	relink := regexp.QuoteMeta(`UPDATE harvest_object
		SET current = true`)
	exists := regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM harvest_object WHERE package_id = $1 AND current)`)

	tests := []struct {
		name  string
		setup func(mock sqlmock.Sqlmock)
		want  core.RelinkOutcome
		err   bool
	}{
		{
			name: "updated",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(relink).WithArgs("pkg-1").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("obj-9"))
			},
			want: core.RelinkUpdated,
		},
		{
			name: "unique conflict counts as already relinked",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(relink).WithArgs("pkg-1").
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			want: core.RelinkAlreadyLinked,
		},
		{
			name: "another writer relinked first",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(relink).WithArgs("pkg-1").WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery(exists).WithArgs("pkg-1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
			want: core.RelinkAlreadyLinked,
		},
		{
			name: "no complete object",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(relink).WithArgs("pkg-1").
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
				mock.ExpectQuery(exists).WithArgs("pkg-1").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			want: core.RelinkNoValidObject,
		},
		{
			name: "database error",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(relink).WithArgs("pkg-1").WillReturnError(errors.New("connection reset"))
			},
			err: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockObjectRepo(t)
			tt.setup(mock)

			got, err := repo.RelinkCurrent(context.Background(), "pkg-1")
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHarvestObjectRepo_ReportQueries(t *testing.T) {
	repo, mock := newMockObjectRepo(t)
	mock.ExpectQuery(`SELECT ho.report_status, ho.package_id, p.title`).WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"report_status", "package_id", "title"}).
			AddRow("added", "pkg-1", "Alpha").
			AddRow("deleted", "pkg-2", "Beta"))
	mock.ExpectQuery(`SELECT hoe.message`).WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"message"}).AddRow("missing title"))
	mock.ExpectQuery(`SELECT DISTINCT ho.package_id`).WithArgs("src-1").
		WillReturnRows(sqlmock.NewRows([]string{"package_id"}).AddRow("pkg-3"))

	records, err := repo.ListRecords(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, []model.ObjectRecord{
		{ReportStatus: "added", PackageID: "pkg-1", Title: "Alpha"},
		{ReportStatus: "deleted", PackageID: "pkg-2", Title: "Beta"},
	}, records)

	errs, err := repo.ListObjectErrors(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"missing title"}, errs)

	ids, err := repo.ListDatasetsWithoutCurrent(context.Background(), "src-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg-3"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildImportQuery(t *testing.T) {
	q, args := buildImportQuery(model.ObjectImportFilter{SourceID: "src-1", ObjectID: "ignored"})
	assert.Contains(t, q, "ho.harvest_source_id = $1 AND ho.current")
	assert.Equal(t, []any{"src-1"}, args)

	q, args = buildImportQuery(model.ObjectImportFilter{ObjectID: "obj-1"})
	assert.Contains(t, q, "ho.id = $1")
	assert.NotContains(t, q, "ho.current")
	assert.Equal(t, []any{"obj-1"}, args)

	q, args = buildImportQuery(model.ObjectImportFilter{PackageID: "my-dataset"})
	assert.Contains(t, q, "(p.id = $1 OR p.name = $1)")
	assert.Equal(t, []any{"my-dataset"}, args)

	q, args = buildImportQuery(model.ObjectImportFilter{})
	assert.Contains(t, q, "WHERE ho.current AND p.state = 'active'")
	assert.Nil(t, args)
}
