package errors

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireAppError(t *testing.T, err error) *AppError {
	t.Helper()
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	return appErr
}

func TestMapDBErrorPassThrough(t *testing.T) {
	require.NoError(t, MapDBError(nil))

	plain := errors.New("not a db error")
	assert.Same(t, plain, MapDBError(plain))
}

func TestMapDBErrorNoRows(t *testing.T) {
	for _, err := range []error{pgx.ErrNoRows, sql.ErrNoRows} {
		assert.Equal(t, ErrCodeNotFound, requireAppError(t, MapDBError(err)).Code)
	}
}

func TestMapDBErrorUniqueViolation(t *testing.T) {
	tests := []struct {
		name  string
		pgErr *pgconn.PgError
		field string
	}{
		{
			name:  "column metadata",
			pgErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "url"},
			field: "url",
		},
		{
			name: "detail",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: "Key (name)=(census) already exists.",
			},
			field: "name",
		},
		{
			name:  "constraint name",
			pgErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "harvest_source_url_key"},
			field: "url",
		},
		{
			name:  "longest table prefix wins",
			pgErr: &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "harvest_object_extra_key_key"},
			field: "key",
		},
		{
			name: "multi-column constraint",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "harvest_object_package_id_current_idx",
			},
			field: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := requireAppError(t, MapDBError(tt.pgErr))
			assert.Equal(t, ErrCodeConflict, appErr.Code)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestMapDBErrorForeignKeyViolation(t *testing.T) {
	tests := []struct {
		name  string
		pgErr *pgconn.PgError
		want  string
	}{
		{
			name: "parent still referenced",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.ForeignKeyViolation,
				Detail: `Key (id)=(abc) is still referenced from table "harvest_object".`,
			},
			want: "Cannot delete because this item is in use by a harvest object.",
		},
		{
			name: "missing parent",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.ForeignKeyViolation,
				Detail: `Key (harvest_source_id)=(abc) is not present in table "harvest_source".`,
			},
			want: "The referenced harvest source does not exist.",
		},
		{
			name:  "table metadata",
			pgErr: &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, TableName: "package_extra"},
			want:  "This item is in use by a dataset.",
		},
		{
			name:  "no detail",
			pgErr: &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation},
			want:  "This item is in use.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := requireAppError(t, MapDBError(tt.pgErr))
			assert.Equal(t, ErrCodeForeignKey, appErr.Code)
			assert.Equal(t, tt.want, appErr.Message)
		})
	}
}

func TestMapDBErrorValidation(t *testing.T) {
	for _, code := range []string{pgerrcode.NotNullViolation, pgerrcode.CheckViolation} {
		appErr := requireAppError(t, MapDBError(&pgconn.PgError{Code: code, ColumnName: "frequency"}))
		assert.Equal(t, ErrCodeValidation, appErr.Code)
		assert.Equal(t, "frequency", appErr.Field)
	}
}

func TestMapDBErrorOtherPgError(t *testing.T) {
	appErr := requireAppError(t, MapDBError(&pgconn.PgError{Code: pgerrcode.DeadlockDetected}))
	assert.Equal(t, ErrCodeInternal, appErr.Code)
}

func TestTableNoun(t *testing.T) {
	assert.Equal(t, "organization", tableNoun(`group`))
	assert.Equal(t, "harvest job", tableNoun("harvest_gather_error"))
	assert.Equal(t, "system info", tableNoun("system_info"))
}
