package errors

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// "Key (url)=(http://x) already exists."
	reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// "... is still referenced from table "harvest_object"."
	reReferencedFrom = regexp.MustCompile(`is still referenced from table "?([^"]+)"?`)
	// "... is not present in table "harvest_source"."
	reNotPresent = regexp.MustCompile(`is not present in table "?([^"]+)"?`)
)

// MapDBError maps context, no-rows and Postgres constraint errors to an AppError.
// Any other error is returned unchanged.
func MapDBError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "Request timed out. Please try again.")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "Request was canceled.")
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, sql.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "Resource not found")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		appErr := Wrap(pgErr, ErrCodeConflict, "This value already exists.")
		appErr.Field = uniqueField(pgErr)
		return appErr
	case pgerrcode.ForeignKeyViolation:
		return Wrap(pgErr, ErrCodeForeignKey, foreignKeyMessage(pgErr))
	case pgerrcode.NotNullViolation:
		appErr := Wrap(pgErr, ErrCodeValidation, "Required field is missing.")
		appErr.Field = pgErr.ColumnName
		return appErr
	case pgerrcode.CheckViolation:
		appErr := Wrap(pgErr, ErrCodeValidation, "Invalid value.")
		appErr.Field = pgErr.ColumnName
		return appErr
	default:
		return Wrap(pgErr, ErrCodeInternal, "A database error occurred. Please try again.")
	}
}

func uniqueField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return m[1]
	}
	return fieldFromConstraint(pgErr.ConstraintName)
}

func foreignKeyMessage(pgErr *pgconn.PgError) string {
	if m := reReferencedFrom.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return "Cannot delete because this item is in use by a " + tableNoun(m[1]) + "."
	}
	if m := reNotPresent.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return "The referenced " + tableNoun(m[1]) + " does not exist."
	}
	if pgErr.TableName != "" {
		return "This item is in use by a " + tableNoun(pgErr.TableName) + "."
	}
	return "This item is in use."
}

// constraintTables lists the tables whose constraint names can be parsed, longest first
// so "harvest_object_extra" wins over "harvest_object".
var constraintTables = []string{ //nolint:gochecknoglobals // read-only lookup table
	"harvest_source_organization",
	"harvest_object_extra",
	"harvest_object_error",
	"harvest_gather_error",
	"harvest_object",
	"harvest_source",
	"harvest_job",
	"package_extra",
	"package",
	"member",
	"group",
}

// fieldFromConstraint reads the column out of a single-column constraint name
// such as "harvest_source_url_key". Multi-column names yield "".
func fieldFromConstraint(name string) string {
	name = strings.ToLower(name)
	trimmed := false
	for _, suffix := range []string{"_key", "_unique", "_idx"} {
		if rest, ok := strings.CutSuffix(name, suffix); ok {
			name, trimmed = rest, true
			break
		}
	}
	if !trimmed {
		return ""
	}
	for _, table := range constraintTables {
		if rest, ok := strings.CutPrefix(name, table+"_"); ok {
			if rest == "" || strings.Contains(rest, "_") {
				return ""
			}
			return rest
		}
	}
	return ""
}

func tableNoun(table string) string {
	switch strings.ToLower(strings.TrimSpace(table)) {
	case "harvest_source", "harvest_source_organization":
		return "harvest source"
	case "harvest_job", "harvest_gather_error":
		return "harvest job"
	case "harvest_object", "harvest_object_extra", "harvest_object_error":
		return "harvest object"
	case "package", "package_extra":
		return "dataset"
	case "group", "member":
		return "organization"
	default:
		return strings.ReplaceAll(table, "_", " ")
	}
}
