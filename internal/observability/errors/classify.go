// Package errors maps errors to short class names for metric tags and notifications.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/target/harvestd/internal/domain"
)

var sentinelClasses = []struct {
	err   error
	class string
}{
	{domain.ErrInvalidFrequency, "invalid_frequency"},
	{domain.ErrJobAlreadyExists, "job_already_exists"},
	{domain.ErrSourceInactive, "source_inactive"},
	{domain.ErrSourceNotFound, "source_not_found"},
	{domain.ErrJobNotFound, "job_not_found"},
	{domain.ErrDatasetNotFound, "dataset_not_found"},
	{domain.ErrDeleteFailed, "delete_failed"},
	{domain.ErrNotificationFailed, "notification_failed"},
	{domain.ErrNoObjectsToImport, "no_objects_to_import"},
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
}

// Classify returns a normalized error class suitable for tagging metrics and logs.
// Known sentinels and Postgres errors get stable names; anything else is named after
// the innermost concrete error type.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	for _, s := range sentinelClasses {
		if goerrors.Is(err, s.err) {
			return s.class
		}
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return "pg_" + strings.ToLower(pgErr.Code)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
