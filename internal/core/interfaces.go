package core

import (
	"context"
	"time"

	"github.com/target/harvestd/internal/domain/model"
)

// This file contains the ports between the harvest services and their collaborators.
// Services depend on these interfaces; internal/data and internal/adapters implement them.

// SourceRepository defines the interface for harvest source data operations.
type SourceRepository interface {
	// GetByID returns domain.ErrSourceNotFound when no source matches.
	GetByID(ctx context.Context, id string) (*model.Source, error)
	// ListDue returns active sources whose next run is at or before q.Now and that q.Actor may see.
	ListDue(ctx context.Context, q model.DueSourcesQuery) ([]*model.Source, error)
	ListActive(ctx context.Context) ([]*model.Source, error)
	UpdateNextRun(ctx context.Context, id string, next time.Time) error
	UpdateConfig(ctx context.Context, id string, config string) error
	// GetDocument returns the indexable representation of a source.
	GetDocument(ctx context.Context, id string) (model.SourceDocument, error)
}

// JobRepository defines the interface for harvest job data operations.
type JobRepository interface {
	// Create inserts a New job. Returns domain.ErrJobAlreadyExists when the source already has an active job.
	Create(ctx context.Context, sourceID string) (*model.Job, error)
	// GetByID returns domain.ErrJobNotFound when no job matches.
	GetByID(ctx context.Context, id string) (*model.Job, error)
	// List returns jobs ordered by creation time.
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	// MarkRunning moves a New job to Running. Returns false when the job was no longer New.
	MarkRunning(ctx context.Context, id string) (bool, error)
	// RevertToNew moves a Running job whose gather stage never started back to New.
	// Returns false when a gather worker already picked the job up.
	RevertToNew(ctx context.Context, id string) (bool, error)
	// MarkFinished moves a Running job to Finished. Returns false when the job was no longer Running.
	MarkFinished(ctx context.Context, id string, finished time.Time) (bool, error)
	Stats(ctx context.Context, jobID string) (model.JobStats, error)
	ListGatherErrors(ctx context.Context, jobID string) ([]string, error)
}

// RelinkOutcome describes the result of restoring a dataset's current harvest object.
type RelinkOutcome int

const (
	// RelinkUpdated means an object was marked current.
	RelinkUpdated RelinkOutcome = iota
	// RelinkAlreadyLinked means another writer restored the pointer first.
	RelinkAlreadyLinked
	// RelinkNoValidObject means the dataset has no COMPLETE harvest object.
	RelinkNoValidObject
)

// HarvestObjectRepository defines the interface for harvest object data operations.
type HarvestObjectRepository interface {
	CountNonTerminal(ctx context.Context, jobID string) (int, error)
	// LatestImportFinished returns nil when no object of the job has finished importing.
	LatestImportFinished(ctx context.Context, jobID string) (*time.Time, error)
	// ListDatasetsWithoutCurrent returns active datasets referenced by the source's objects
	// that have no current object.
	ListDatasetsWithoutCurrent(ctx context.Context, sourceID string) ([]string, error)
	// RelinkCurrent marks the latest COMPLETE object of a dataset current,
	// provided the dataset still lacks one.
	RelinkCurrent(ctx context.Context, datasetID string) (RelinkOutcome, error)
	ListRecords(ctx context.Context, jobID string) ([]model.ObjectRecord, error)
	ListObjectErrors(ctx context.Context, jobID string) ([]string, error)
	ListForImport(ctx context.Context, filter model.ObjectImportFilter) ([]*model.HarvestObject, error)
}

// DatasetRepository defines the interface for local dataset operations.
type DatasetRepository interface {
	ListOrphans(ctx context.Context, q model.OrphanQuery) ([]*model.Dataset, error)
	MarkDeleted(ctx context.Context, id string) error
	GetDocument(ctx context.Context, id string) (model.SourceDocument, error)
}

// OrganizationRepository defines the interface for organization lookups used in job reports.
type OrganizationRepository interface {
	// ListForSource returns the organizations the source is a member of.
	ListForSource(ctx context.Context, sourceID string) ([]model.Organization, error)
	// AdminEmails returns the addresses of active admin members of an organization.
	AdminEmails(ctx context.Context, orgID string) ([]string, error)
}

// SystemInfoRepository stores process-wide key/value facts. A missing table is tolerated.
type SystemInfoRepository interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
}

// ClearSourceResult counts the rows removed while clearing a source.
type ClearSourceResult struct {
	Steps map[string]int64
}

// SourceClearRepository removes everything a source has harvested.
type SourceClearRepository interface {
	ClearSource(ctx context.Context, sourceID string) (ClearSourceResult, error)
}

// Publisher sends dispatch messages to the gather queue.
type Publisher interface {
	Publish(ctx context.Context, msg model.DispatchMessage) error
	Close() error
}

// QueueConnector opens a publisher for one dispatch batch.
type QueueConnector interface {
	GatherPublisher(ctx context.Context) (Publisher, error)
}

// SearchIndex is the document search index.
type SearchIndex interface {
	// Index adds or replaces a document. The change is committed unless deferCommit is set.
	Index(ctx context.Context, doc model.SourceDocument, deferCommit bool) error
	// DeleteSource removes every document harvested by a source on this site.
	DeleteSource(ctx context.Context, sourceID string) error
	DeleteDataset(ctx context.Context, datasetID string) error
	Commit(ctx context.Context) error
}

// MailMessage is one outgoing mail.
type MailMessage struct {
	To      []string
	Bcc     []string
	Subject string
	Body    string
}

// Mailer delivers mail.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}
