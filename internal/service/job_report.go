package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
	"github.com/target/harvestd/internal/domain/report"
)

// maxConcurrentReports bounds parallel deliveries for one job.
const maxConcurrentReports = 4

// JobReportNotifierOptions groups dependencies for JobReportNotifier.
type JobReportNotifierOptions struct {
	Jobs          core.JobRepository           // Required
	Objects       core.HarvestObjectRepository // Required
	Organizations core.OrganizationRepository  // Required
	Mailer        core.Mailer                  // Required
	Site          report.Site
	Logger        *slog.Logger // Optional
}

// JobReportNotifier mails the summary of a finished job to the administrators
// of every organization owning its source.
type JobReportNotifier struct {
	jobs    core.JobRepository
	objects core.HarvestObjectRepository
	orgs    core.OrganizationRepository
	mailer  core.Mailer
	site    report.Site
	logger  *slog.Logger
}

// NewJobReportNotifier constructs a JobReportNotifier.
func NewJobReportNotifier(opts JobReportNotifierOptions) (*JobReportNotifier, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Objects == nil:
		return nil, errors.New("HarvestObjectRepository is required")
	case opts.Organizations == nil:
		return nil, errors.New("OrganizationRepository is required")
	case opts.Mailer == nil:
		return nil, errors.New("Mailer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobReportNotifier{
		jobs:    opts.Jobs,
		objects: opts.Objects,
		orgs:    opts.Organizations,
		mailer:  opts.Mailer,
		site:    opts.Site,
		logger:  logger.With("component", "job_report"),
	}, nil
}

// NotifyJobFinished builds the report for job and sends one message per organization.
// Delivery failures are logged and never returned; only failing to gather the
// report data is an error.
func (n *JobReportNotifier) NotifyJobFinished(ctx context.Context, src *model.Source, job *model.Job) error {
	in, err := n.collect(ctx, src, job)
	if err != nil {
		return err
	}

	orgs, err := n.orgs.ListForSource(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("list organizations of source %s: %w", src.ID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReports)
	for _, org := range orgs {
		org := org
		g.Go(func() error {
			n.sendForOrganization(gctx, in, org)
			return nil
		})
	}
	return g.Wait()
}

func (n *JobReportNotifier) collect(ctx context.Context, src *model.Source, job *model.Job) (report.Input, error) {
	stats, err := n.jobs.Stats(ctx, job.ID)
	if err != nil {
		return report.Input{}, fmt.Errorf("job stats %s: %w", job.ID, err)
	}
	records, err := n.objects.ListRecords(ctx, job.ID)
	if err != nil {
		return report.Input{}, fmt.Errorf("job records %s: %w", job.ID, err)
	}
	objErrs, err := n.objects.ListObjectErrors(ctx, job.ID)
	if err != nil {
		return report.Input{}, fmt.Errorf("object errors %s: %w", job.ID, err)
	}
	gatherErrs, err := n.jobs.ListGatherErrors(ctx, job.ID)
	if err != nil {
		return report.Input{}, fmt.Errorf("gather errors %s: %w", job.ID, err)
	}
	return report.Input{
		Site:         n.site,
		Source:       *src,
		Job:          *job,
		Stats:        stats,
		Records:      records,
		ObjectErrors: objErrs,
		GatherErrors: gatherErrs,
	}, nil
}

func (n *JobReportNotifier) sendForOrganization(ctx context.Context, in report.Input, org model.Organization) {
	log := n.logger.With("job_id", in.Job.ID, "source_id", in.Source.ID, "organization_id", org.ID)

	admins, err := n.orgs.AdminEmails(ctx, org.ID)
	if err != nil {
		log.WarnContext(ctx, "failed to load organization admins", "error", err)
	}
	recipients := report.Recipients(admins, org.EmailList)
	if len(recipients) == 0 {
		log.DebugContext(ctx, "organization has no report recipients")
		return
	}

	in.Organization = org.DisplayName()
	msg := report.Summarize(in).Render()
	err = n.mailer.Send(ctx, core.MailMessage{Bcc: recipients, Subject: msg.Subject, Body: msg.Body})
	if err != nil {
		log.WarnContext(ctx, "failed to send job report",
			"recipients", len(recipients),
			"error", fmt.Errorf("%w: %w", domain.ErrNotificationFailed, err),
		)
		return
	}
	log.InfoContext(ctx, "job report sent", "recipients", len(recipients))
}
