package testutil

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/target/harvestd/internal/domain/model"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func mustExec(t TestingTB, db execer, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("fixture insert failed: %v\nquery: %s", err, query)
	}
}

// SeedOrganization inserts an organization and returns its ID.
// A non-empty emailList is stored as the active "email_list" extra.
func SeedOrganization(t TestingTB, db *sql.DB, name, emailList string) string {
	t.Helper()
	id := uuid.NewString()
	mustExec(t, db, `INSERT INTO "group" (id, name, title) VALUES ($1, $2, $3)`, id, name, name+" title")
	if emailList != "" {
		mustExec(t, db, `INSERT INTO group_extra (id, group_id, key, value) VALUES ($1, $2, 'email_list', $3)`,
			uuid.NewString(), id, emailList)
	}
	return id
}

// SeedOrgAdmin inserts an active user and makes it an active admin of orgID.
func SeedOrgAdmin(t TestingTB, db *sql.DB, orgID, email string) string {
	t.Helper()
	id := uuid.NewString()
	mustExec(t, db, `INSERT INTO "user" (id, name, email) VALUES ($1, $2, $3)`, id, "user-"+id[:8], email)
	mustExec(t, db, `INSERT INTO member (id, group_id, table_id, table_name, capacity) VALUES ($1, $2, $3, 'user', 'admin')`,
		uuid.NewString(), orgID, id)
	return id
}

// SourceBuilder provides a fluent interface for inserting harvest sources.
type SourceBuilder struct {
	src model.Source
}

// NewSource creates a SourceBuilder with sensible defaults.
func NewSource(name string) *SourceBuilder {
	return &SourceBuilder{src: model.Source{
		ID:        uuid.NewString(),
		Name:      name,
		Title:     name + " title",
		URL:       "https://example.org/" + name + "/data.json",
		Type:      "datajson",
		Frequency: model.FrequencyManual,
		Active:    true,
		CreatedAt: TestTime(),
	}}
}

// WithFrequency sets the source frequency.
func (b *SourceBuilder) WithFrequency(f model.Frequency) *SourceBuilder {
	b.src.Frequency = f
	return b
}

// WithNextRun sets the next run timestamp.
func (b *SourceBuilder) WithNextRun(t time.Time) *SourceBuilder {
	b.src.NextRun = &t
	return b
}

// WithConfig sets the raw JSON configuration.
func (b *SourceBuilder) WithConfig(cfg string) *SourceBuilder {
	b.src.Config = cfg
	return b
}

// WithOrg sets the owning organization and records the source as a member of it.
func (b *SourceBuilder) WithOrg(orgID string) *SourceBuilder {
	b.src.OwnerOrg = &orgID
	return b
}

// Inactive marks the source inactive.
func (b *SourceBuilder) Inactive() *SourceBuilder {
	b.src.Active = false
	return b
}

// Insert writes the source and returns it.
func (b *SourceBuilder) Insert(t TestingTB, db *sql.DB) *model.Source {
	t.Helper()
	s := b.src
	mustExec(t, db, `
		INSERT INTO harvest_source (id, name, title, url, source_type, frequency, config, active, owner_org, next_run, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.Name, s.Title, s.URL, s.Type, string(s.Frequency), s.Config, s.Active, s.OwnerOrg, s.NextRun, s.CreatedAt)
	if s.OwnerOrg != nil {
		mustExec(t, db, `INSERT INTO member (id, group_id, table_id, table_name) VALUES ($1, $2, $3, 'harvest_source')`,
			uuid.NewString(), *s.OwnerOrg, s.ID)
	}
	return &s
}

// SeedJob inserts a job for sourceID and returns its ID.
func SeedJob(t TestingTB, db *sql.DB, sourceID string, status model.JobStatus, gatherFinished bool) string {
	t.Helper()
	id := uuid.NewString()
	var finished *time.Time
	if gatherFinished {
		finished = TimePtr(TestTime())
	}
	mustExec(t, db, `INSERT INTO harvest_job (id, source_id, status, gather_finished, created) VALUES ($1, $2, $3, $4, $5)`,
		id, sourceID, string(status), finished, TestTime())
	return id
}

// DatasetSeed describes a dataset fixture.
type DatasetSeed struct {
	Name     string
	Type     string
	State    string
	OwnerOrg string
	Extras   map[string]string
}

// SeedDataset inserts a dataset and its extras and returns its ID.
func SeedDataset(t TestingTB, db *sql.DB, d DatasetSeed) string {
	t.Helper()
	id := uuid.NewString()
	if d.Type == "" {
		d.Type = model.DatasetTypeDefault
	}
	if d.State == "" {
		d.State = model.DatasetStateActive
	}
	var owner *string
	if d.OwnerOrg != "" {
		owner = &d.OwnerOrg
	}
	mustExec(t, db, `INSERT INTO package (id, name, title, type, state, owner_org) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, d.Name, d.Name+" title", d.Type, d.State, owner)
	for k, v := range d.Extras {
		mustExec(t, db, `INSERT INTO package_extra (id, package_id, key, value) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), id, k, v)
	}
	return id
}

// ObjectSeed describes a harvest object fixture.
type ObjectSeed struct {
	JobID          string
	SourceID       string
	PackageID      string
	State          model.ObjectState
	Current        bool
	ReportStatus   string
	ImportFinished *time.Time
	Errors         []string
}

// SeedObject inserts a harvest object with its errors and returns its ID.
func SeedObject(t TestingTB, db *sql.DB, o ObjectSeed) string {
	t.Helper()
	id := uuid.NewString()
	var pkg, report *string
	if o.PackageID != "" {
		pkg = &o.PackageID
	}
	if o.ReportStatus != "" {
		report = &o.ReportStatus
	}
	mustExec(t, db, `
		INSERT INTO harvest_object (id, guid, harvest_job_id, harvest_source_id, package_id, state, current, report_status, import_finished)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, "guid-"+id[:8], o.JobID, o.SourceID, pkg, string(o.State), o.Current, report, o.ImportFinished)
	for _, msg := range o.Errors {
		mustExec(t, db, `INSERT INTO harvest_object_error (id, harvest_object_id, message, stage) VALUES ($1, $2, $3, 'Import')`,
			uuid.NewString(), id, msg)
	}
	return id
}

// SeedGatherError records a gather-stage error for a job.
func SeedGatherError(t TestingTB, db *sql.DB, jobID, message string) {
	t.Helper()
	mustExec(t, db, `INSERT INTO harvest_gather_error (id, harvest_job_id, message) VALUES ($1, $2, $3)`,
		uuid.NewString(), jobID, message)
}
