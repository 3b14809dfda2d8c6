package model

import "time"

// ObjectState is the per-object processing state.
type ObjectState string

const (
	// ObjectStateWaiting is set when gather creates the object.
	ObjectStateWaiting ObjectState = "WAITING"
	// ObjectStateFetch is set while the remote record is being fetched.
	ObjectStateFetch ObjectState = "FETCH"
	// ObjectStateImport is set while the record is written into a dataset.
	ObjectStateImport ObjectState = "IMPORT"
	// ObjectStateComplete is set after a successful import.
	ObjectStateComplete ObjectState = "COMPLETE"
	// ObjectStateError is set when fetch or import failed.
	ObjectStateError ObjectState = "ERROR"
	// ObjectStateStuck is set on objects abandoned in a non-terminal state.
	ObjectStateStuck ObjectState = "STUCK"
)

// TerminalObjectStates lists the states after which an object is never processed again.
var TerminalObjectStates = []ObjectState{ObjectStateComplete, ObjectStateError, ObjectStateStuck}

// Terminal reports whether no further processing happens for an object in this state.
func (s ObjectState) Terminal() bool {
	for _, t := range TerminalObjectStates {
		if s == t {
			return true
		}
	}
	return false
}

// ReportStatus describes what an import did to the linked dataset. Only the
// statuses listed here appear in job reports.
type ReportStatus string

const (
	// ReportStatusAdded marks an import that created the dataset.
	ReportStatusAdded ReportStatus = "added"
	// ReportStatusUpdated marks an import that changed an existing dataset.
	ReportStatusUpdated ReportStatus = "updated"
	// ReportStatusDeleted marks an import that removed the dataset.
	ReportStatusDeleted ReportStatus = "deleted"
)

// HarvestObject is one external record discovered during a job.
type HarvestObject struct {
	ID             string       `json:"id"                        db:"id"`
	GUID           string       `json:"guid"                      db:"guid"`
	JobID          string       `json:"harvest_job_id"            db:"harvest_job_id"`
	SourceID       string       `json:"harvest_source_id"         db:"harvest_source_id"`
	PackageID      *string      `json:"package_id,omitempty"      db:"package_id"`
	State          ObjectState  `json:"state"                     db:"state"`
	Current        bool         `json:"current"                   db:"current"`
	ReportStatus   *string      `json:"report_status,omitempty"   db:"report_status"`
	Content        *string      `json:"content,omitempty"         db:"content"`
	ImportFinished *time.Time   `json:"import_finished,omitempty" db:"import_finished"`
	CreatedAt      time.Time    `json:"created"                   db:"created"`
	Errors         []string     `json:"errors,omitempty"          db:"-"`
}

// ObjectRecord is one per-record line in a job report.
type ObjectRecord struct {
	ReportStatus string `db:"report_status"`
	PackageID    string `db:"package_id"`
	Title        string `db:"title"`
}

// ObjectImportFilter selects objects to reimport.
type ObjectImportFilter struct {
	SourceID  string
	ObjectID  string
	PackageID string
	// Segments restricts to objects whose md5(id) hex digest starts with one of these characters.
	Segments string
}

// Empty reports whether no selector was provided.
func (f ObjectImportFilter) Empty() bool {
	return f.SourceID == "" && f.ObjectID == "" && f.PackageID == ""
}
