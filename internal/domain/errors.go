package domain

import "errors"

// Harvest orchestration error taxonomy.
var (
	// ErrInvalidFrequency is returned when a next run cannot be computed for a frequency.
	ErrInvalidFrequency = errors.New("invalid frequency")
	// ErrJobAlreadyExists is returned when a source already has a New or Running job.
	ErrJobAlreadyExists = errors.New("there already is an unrun job for this source")
	// ErrSourceInactive is returned when work is requested for an inactive source.
	ErrSourceInactive = errors.New("harvest source is inactive")
	// ErrSourceNotFound is returned when a source does not exist.
	ErrSourceNotFound = errors.New("harvest source not found")
	// ErrJobNotFound is returned when a job does not exist.
	ErrJobNotFound = errors.New("harvest job not found")
	// ErrDatasetNotFound is returned when a dataset does not exist or is already deleted.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrDeleteFailed wraps a per-dataset deletion failure during orphan removal.
	ErrDeleteFailed = errors.New("dataset delete failed")
	// ErrNotificationFailed wraps a delivery failure. It is logged, never surfaced.
	ErrNotificationFailed = errors.New("notification delivery failed")
	// ErrNoObjectsToImport is returned when an import filter matches nothing.
	ErrNoObjectsToImport = errors.New("no harvest objects to import")
)
