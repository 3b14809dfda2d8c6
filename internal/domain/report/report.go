// Package report renders the per-organization summary mailed when a harvest job finishes.
package report

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/target/harvestd/internal/domain/model"
)

// DefaultSiteTitle is used when no site title is configured.
const DefaultSiteTitle = "Data.gov"

// dateLayout matches how job creation times are shown to organization admins.
const dateLayout = "2006-01-02 15:04:05"

// Site describes the catalog the report is sent on behalf of.
type Site struct {
	Title string
	URL   string
	// AdminURL is the base of the job link. Falls back to URL when empty.
	AdminURL string
}

// Input carries everything needed to build a job report.
type Input struct {
	Site         Site
	Source       model.Source
	Job          model.Job
	Organization string
	Stats        model.JobStats
	Records      []model.ObjectRecord
	ObjectErrors []string
	GatherErrors []string
}

// Summary is the structured form of a job report.
type Summary struct {
	SiteTitle    string
	HarvestName  string
	Organization string
	JobTitle     string
	HarvestedAt  time.Time
	Stats        model.JobStats
	Records      []model.ObjectRecord
	ObjectErrors []string
	GatherErrors []string
	JobURL       string
}

// Message is a rendered report ready for delivery.
type Message struct {
	Subject string
	Body    string
}

// Summarize builds the structured summary for a finished job.
// Records without a dataset or title, or with a status other than
// added, updated or deleted, are left out.
func Summarize(in Input) Summary {
	title := in.Site.Title
	if title == "" {
		title = DefaultSiteTitle
	}

	records := make([]model.ObjectRecord, 0, len(in.Records))
	for _, r := range in.Records {
		if r.PackageID == "" || r.Title == "" {
			continue
		}
		switch model.ReportStatus(r.ReportStatus) {
		case model.ReportStatusAdded, model.ReportStatusUpdated, model.ReportStatusDeleted:
			records = append(records, r)
		}
	}
	slices.SortStableFunc(records, func(a, b model.ObjectRecord) int {
		return strings.Compare(a.ReportStatus, b.ReportStatus)
	})

	return Summary{
		SiteTitle:    title,
		HarvestName:  in.Source.Name,
		Organization: in.Organization,
		JobTitle:     in.Source.Title,
		HarvestedAt:  in.Job.CreatedAt.UTC(),
		Stats:        in.Stats,
		Records:      records,
		ObjectErrors: nonEmpty(in.ObjectErrors),
		GatherErrors: nonEmpty(in.GatherErrors),
		JobURL:       JobURL(in.Site, in.Source.Name, in.Job.ID),
	}
}

// JobURL returns the link to the job page of a source.
func JobURL(site Site, sourceName, jobID string) string {
	base := site.AdminURL
	if base == "" {
		base = site.URL
	}
	return strings.TrimRight(base, "/") + "/harvest/" + sourceName + "/job/" + jobID
}

// Subject returns the mail subject for a summary.
func (s Summary) Subject() string {
	return s.SiteTitle + " Latest Harvest Job Report for " + capitalize(s.HarvestName)
}

// Render produces the mail subject and plain-text body.
func (s Summary) Render() Message {
	var b strings.Builder

	fmt.Fprintf(&b, "Here is the summary of latest harvest job for your organization in %s\n\n", s.SiteTitle)
	if s.Organization != "" {
		fmt.Fprintf(&b, "Organization: %s\n\n", s.Organization)
		fmt.Fprintf(&b, "Harvest Job Title: %s\n\n", s.JobTitle)
	}
	fmt.Fprintf(&b, "Date of Harvest: %s GMT\n\n", s.HarvestedAt.Format(dateLayout))

	fmt.Fprintf(&b, "Records in Error: %d\n", s.Stats.Errored)
	fmt.Fprintf(&b, "Records Added: %d\n", s.Stats.Added)
	fmt.Fprintf(&b, "Records Updated: %d\n", s.Stats.Updated)
	fmt.Fprintf(&b, "Records Deleted: %d\n\n", s.Stats.Deleted)

	if len(s.Records) > 0 {
		b.WriteString("Summary\n\n")
		for _, r := range s.Records {
			fmt.Fprintf(&b, "%s , %s, %s\n", r.ReportStatus, r.PackageID, r.Title)
		}
		b.WriteString("\n\n")
	}

	if len(s.ObjectErrors) > 0 || len(s.GatherErrors) > 0 {
		b.WriteString("Error Summary\n\n")
	}
	if len(s.ObjectErrors) > 0 {
		b.WriteString("Document Error\n")
		writeLines(&b, s.ObjectErrors)
		b.WriteString("\n\n")
	}
	if len(s.GatherErrors) > 0 {
		b.WriteString("Job Errors\n")
		writeLines(&b, s.GatherErrors)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "\n--\nYou are receiving this email because you are currently the administrator "+
		"for your organization in %s. Please do not reply to this email as it was sent "+
		"from a non-monitored address.", s.SiteTitle)
	b.WriteString("\n\nIf you have an admin/editor account in the catalog, you can view the " +
		"detailed job report at the following url after logging in:")
	b.WriteString("\n\n" + s.JobURL)

	return Message{Subject: s.Subject(), Body: b.String()}
}

// ParseEmailList splits an organization "email_list" value on semicolons,
// commas and whitespace. Addresses are lowercased.
func ParseEmailList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == ',' || unicode.IsSpace(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ToLower(f))
	}
	return out
}

// Recipients merges organization admin addresses with the organization email list.
// Addresses are lowercased, empty entries dropped and duplicates removed, keeping first-seen order.
func Recipients(adminEmails []string, emailList string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(adminEmails))
	add := func(addr string) {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	for _, a := range adminEmails {
		add(a)
	}
	for _, a := range ParseEmailList(emailList) {
		add(a)
	}
	return out
}

// FixedPackagesSubject is the subject of the mail listing datasets repaired during reconciliation.
func FixedPackagesSubject(at time.Time) string {
	return "Packages fixed " + at.UTC().Format(time.RFC3339)
}

func writeLines(b *strings.Builder, lines []string) {
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
