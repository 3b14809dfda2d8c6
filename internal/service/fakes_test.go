package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/data"
	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
	"github.com/target/harvestd/internal/observability/notify"
)

// fakeSourceRepo is an in-memory core.SourceRepository.
type fakeSourceRepo struct {
	mu       sync.Mutex
	sources  map[string]*model.Source
	listErr  error
	nextRuns map[string]time.Time
	configs  map[string]string
	// dueQuery records the last ListDue query.
	dueQuery model.DueSourcesQuery
}

func newFakeSourceRepo(sources ...*model.Source) *fakeSourceRepo {
	r := &fakeSourceRepo{
		sources:  map[string]*model.Source{},
		nextRuns: map[string]time.Time{},
		configs:  map[string]string{},
	}
	for _, s := range sources {
		r.sources[s.ID] = s
	}
	return r
}

func (r *fakeSourceRepo) GetByID(_ context.Context, id string) (*model.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, id)
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSourceRepo) ListDue(_ context.Context, q model.DueSourcesQuery) ([]*model.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dueQuery = q
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*model.Source
	for _, s := range r.sortedLocked() {
		if !s.Active || s.Frequency == model.FrequencyManual {
			continue
		}
		if s.NextRun == nil || !s.NextRun.After(q.Now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSourceRepo) ListActive(context.Context) ([]*model.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*model.Source
	for _, s := range r.sortedLocked() {
		if s.Active {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSourceRepo) UpdateNextRun(_ context.Context, id string, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextRuns[id] = next
	if s, ok := r.sources[id]; ok {
		s.NextRun = &next
	}
	return nil
}

func (r *fakeSourceRepo) UpdateConfig(_ context.Context, id string, config string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[id] = config
	if s, ok := r.sources[id]; ok {
		s.Config = config
	}
	return nil
}

func (r *fakeSourceRepo) GetDocument(ctx context.Context, id string) (model.SourceDocument, error) {
	src, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return data.SourceToDocument(src), nil
}

func (r *fakeSourceRepo) sortedLocked() []*model.Source {
	out := make([]*model.Source, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// fakeJobRepo is an in-memory core.JobRepository that enforces one active job per source.
type fakeJobRepo struct {
	mu        sync.Mutex
	jobs      []*model.Job
	seq       int
	now       time.Time
	createErr map[string]error
	listErr   error

	stats        map[string]model.JobStats
	gatherErrors map[string][]string
	// markRunningHook runs before the compare-and-set, simulating a concurrent writer.
	markRunningHook func(id string)
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{
		now:          time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		createErr:    map[string]error{},
		stats:        map[string]model.JobStats{},
		gatherErrors: map[string][]string{},
	}
}

func (r *fakeJobRepo) add(job *model.Job) *model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.CreatedAt.IsZero() {
		r.seq++
		job.CreatedAt = r.now.Add(time.Duration(r.seq) * time.Minute)
	}
	r.jobs = append(r.jobs, job)
	return job
}

func (r *fakeJobRepo) Create(_ context.Context, sourceID string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.createErr[sourceID]; err != nil {
		return nil, err
	}
	for _, j := range r.jobs {
		if j.SourceID == sourceID && j.Status.Active() {
			return nil, domain.ErrJobAlreadyExists
		}
	}
	r.seq++
	job := &model.Job{
		ID:        fmt.Sprintf("job-%d", r.seq),
		SourceID:  sourceID,
		Status:    model.JobStatusNew,
		CreatedAt: r.now.Add(time.Duration(r.seq) * time.Minute),
	}
	r.jobs = append(r.jobs, job)
	cp := *job
	return &cp, nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			cp := *j
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
}

func (r *fakeJobRepo) List(_ context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*model.Job
	for _, j := range r.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.SourceID != "" && j.SourceID != opts.SourceID {
			continue
		}
		if opts.GatherFinished && j.GatherFinished == nil {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (r *fakeJobRepo) MarkRunning(_ context.Context, id string) (bool, error) {
	if r.markRunningHook != nil {
		r.markRunningHook(id)
	}
	return r.transition(id, model.JobStatusNew, model.JobStatusRunning, nil), nil
}

func (r *fakeJobRepo) RevertToNew(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id && j.Status == model.JobStatusRunning && j.GatherStarted == nil {
			j.Status = model.JobStatusNew
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeJobRepo) MarkFinished(_ context.Context, id string, finished time.Time) (bool, error) {
	return r.transition(id, model.JobStatusRunning, model.JobStatusFinished, &finished), nil
}

func (r *fakeJobRepo) transition(id string, from, to model.JobStatus, finished *time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id && j.Status == from {
			j.Status = to
			if finished != nil {
				j.FinishedAt = finished
			}
			return true
		}
	}
	return false
}

func (r *fakeJobRepo) Stats(_ context.Context, jobID string) (model.JobStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats[jobID], nil
}

func (r *fakeJobRepo) ListGatherErrors(_ context.Context, jobID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gatherErrors[jobID], nil
}

func (r *fakeJobRepo) status(id string) model.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			return j.Status
		}
	}
	return ""
}

func (r *fakeJobRepo) activeFor(sourceID string) []*model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, j := range r.jobs {
		if j.SourceID == sourceID && j.Status.Active() {
			out = append(out, j)
		}
	}
	return out
}

// fakeObjectRepo is an in-memory core.HarvestObjectRepository backed by a list of objects.
type fakeObjectRepo struct {
	mu           sync.Mutex
	objects      []*model.HarvestObject
	activeData   map[string]bool
	objectErrors map[string][]string
	records      map[string][]model.ObjectRecord
	relinkErr    map[string]error
	latestErr    error
	// relinkHook runs before the compare-and-set, simulating a concurrent writer.
	relinkHook func(datasetID string)
	panicOn    string
}

func newFakeObjectRepo(objects ...*model.HarvestObject) *fakeObjectRepo {
	return &fakeObjectRepo{
		objects:      objects,
		activeData:   map[string]bool{},
		relinkErr:    map[string]error{},
		objectErrors: map[string][]string{},
		records:      map[string][]model.ObjectRecord{},
	}
}

func (r *fakeObjectRepo) CountNonTerminal(_ context.Context, jobID string) (int, error) {
	if r.panicOn != "" && r.panicOn == jobID {
		panic("object store exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.objects {
		if o.JobID == jobID && !o.State.Terminal() {
			n++
		}
	}
	return n, nil
}

func (r *fakeObjectRepo) LatestImportFinished(_ context.Context, jobID string) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latestErr != nil {
		return nil, r.latestErr
	}
	var latest *time.Time
	for _, o := range r.objects {
		if o.JobID != jobID || o.ImportFinished == nil {
			continue
		}
		if latest == nil || o.ImportFinished.After(*latest) {
			t := *o.ImportFinished
			latest = &t
		}
	}
	return latest, nil
}

func (r *fakeObjectRepo) ListDatasetsWithoutCurrent(_ context.Context, sourceID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, o := range r.objects {
		if o.SourceID != sourceID || o.PackageID == nil || !r.activeData[*o.PackageID] {
			continue
		}
		id := *o.PackageID
		if seen[id] || r.hasCurrentLocked(id) {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeObjectRepo) RelinkCurrent(_ context.Context, datasetID string) (core.RelinkOutcome, error) {
	if r.relinkHook != nil {
		r.relinkHook(datasetID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.relinkErr[datasetID]; err != nil {
		return 0, err
	}
	if r.hasCurrentLocked(datasetID) {
		return core.RelinkAlreadyLinked, nil
	}
	var best *model.HarvestObject
	for _, o := range r.objects {
		if o.PackageID == nil || *o.PackageID != datasetID || o.State != model.ObjectStateComplete || o.ImportFinished == nil {
			continue
		}
		if best == nil || o.ImportFinished.After(*best.ImportFinished) {
			best = o
		}
	}
	if best == nil {
		return core.RelinkNoValidObject, nil
	}
	best.Current = true
	return core.RelinkUpdated, nil
}

func (r *fakeObjectRepo) ListRecords(_ context.Context, jobID string) ([]model.ObjectRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[jobID], nil
}

func (r *fakeObjectRepo) ListObjectErrors(_ context.Context, jobID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.objectErrors[jobID], nil
}

func (r *fakeObjectRepo) ListForImport(_ context.Context, f model.ObjectImportFilter) ([]*model.HarvestObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.HarvestObject
	for _, o := range r.objects {
		switch {
		case f.ObjectID != "":
			if o.ID != f.ObjectID {
				continue
			}
		case !o.Current:
			continue
		case f.SourceID != "" && o.SourceID != f.SourceID:
			continue
		case f.PackageID != "" && (o.PackageID == nil || *o.PackageID != f.PackageID):
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *fakeObjectRepo) hasCurrentLocked(datasetID string) bool {
	for _, o := range r.objects {
		if o.Current && o.PackageID != nil && *o.PackageID == datasetID {
			return true
		}
	}
	return false
}

func (r *fakeObjectRepo) current(datasetID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, o := range r.objects {
		if o.Current && o.PackageID != nil && *o.PackageID == datasetID {
			out = append(out, o.ID)
		}
	}
	return out
}

// fakeDatasetRepo is an in-memory core.DatasetRepository.
type fakeDatasetRepo struct {
	mu        sync.Mutex
	orphans   map[string][]*model.Dataset
	deleteErr map[string]error
	deleted   []string
	lastQuery model.OrphanQuery
}

func newFakeDatasetRepo() *fakeDatasetRepo {
	return &fakeDatasetRepo{orphans: map[string][]*model.Dataset{}, deleteErr: map[string]error{}}
}

func (r *fakeDatasetRepo) ListOrphans(_ context.Context, q model.OrphanQuery) ([]*model.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastQuery = q
	return r.orphans[q.OwnerOrg], nil
}

func (r *fakeDatasetRepo) MarkDeleted(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.deleteErr[id]; err != nil {
		return err
	}
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeDatasetRepo) GetDocument(_ context.Context, id string) (model.SourceDocument, error) {
	return model.SourceDocument{"id": id, "dataset_type": "dataset"}, nil
}

// recordingIndexer records Indexer calls.
type recordingIndexer struct {
	mu        sync.Mutex
	sources   []string
	datasets  []string
	removed   []string
	sourceErr error
}

func (i *recordingIndexer) ReindexSource(_ context.Context, sourceID string, _ bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sources = append(i.sources, sourceID)
	return i.sourceErr
}

func (i *recordingIndexer) ReindexDataset(_ context.Context, datasetID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.datasets = append(i.datasets, datasetID)
	return nil
}

func (i *recordingIndexer) RemoveDataset(_ context.Context, datasetID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.removed = append(i.removed, datasetID)
	return nil
}

// recordingFailures records failure notifications.
type recordingFailures struct {
	mu       sync.Mutex
	payloads []notify.HarvestFailurePayload
}

func (f *recordingFailures) NotifyHarvestFailure(_ context.Context, p notify.HarvestFailurePayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
}

// recordingMailer records delivered mail.
type recordingMailer struct {
	mu   sync.Mutex
	sent []core.MailMessage
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg core.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
