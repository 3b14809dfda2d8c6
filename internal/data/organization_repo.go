package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/target/harvestd/internal/domain/model"
)

// OrganizationRepo looks up organizations and their administrators.
type OrganizationRepo struct {
	DB *sql.DB
}

// NewOrganizationRepo creates a new OrganizationRepo.
func NewOrganizationRepo(db *sql.DB) *OrganizationRepo {
	return &OrganizationRepo{DB: db}
}

// ListForSource returns the organizations a source belongs to, through membership
// or ownership, with their active "email_list" extra.
func (r *OrganizationRepo) ListForSource(ctx context.Context, sourceID string) ([]model.Organization, error) {
	rows, err := r.DB.QueryContext(ctx, organizationsForSourceQuery, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list organizations for source: %w", err)
	}
	defer rows.Close()

	var out []model.Organization
	for rows.Next() {
		var o model.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Title, &o.EmailList); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}
	return out, nil
}

// AdminEmails returns the addresses of active users holding an active admin membership.
func (r *OrganizationRepo) AdminEmails(ctx context.Context, orgID string) ([]string, error) {
	emails, err := queryStrings(ctx, r.DB, organizationAdminEmailsQuery, orgID)
	if err != nil {
		return nil, fmt.Errorf("list admin emails: %w", err)
	}
	return emails, nil
}

const (
	organizationsForSourceQuery = `
		SELECT g.id, g.name, g.title, COALESCE(ge.value, '')
		FROM "group" g
		LEFT JOIN group_extra ge
		  ON ge.group_id = g.id AND ge.key = 'email_list' AND ge.state = 'active'
		WHERE g.id IN (
			SELECT group_id FROM member WHERE table_id = $1 AND state = 'active'
			UNION
			SELECT owner_org FROM harvest_source WHERE id = $1 AND owner_org IS NOT NULL
		)
		ORDER BY g.name`

	organizationAdminEmailsQuery = `
		SELECT u.email
		FROM "user" u
		JOIN member m ON m.table_id = u.id
		WHERE m.group_id = $1
		  AND m.capacity = 'admin'
		  AND m.state = 'active'
		  AND u.state = 'active'
		  AND COALESCE(u.email, '') <> ''
		ORDER BY u.email`
)
