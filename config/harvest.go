package config

import "strings"

// HarvestConfig identifies the catalog site and tunes reconciliation.
type HarvestConfig struct {
	// SiteID scopes search documents and the default gather queue key.
	SiteID string `env:"HARVEST_SITE_ID" envDefault:"default"`

	// SiteURL is the public catalog base URL.
	SiteURL string `env:"HARVEST_SITE_URL" envDefault:"http://localhost:5000"`

	// SiteAdminURL is the base of job links in reports. Defaults to SiteURL.
	SiteAdminURL string `env:"HARVEST_SITE_ADMIN_URL"`

	// SiteTitle names the catalog in report mail.
	SiteTitle string `env:"HARVEST_SITE_TITLE" envDefault:"Data.gov"`

	// EmailNotifications mails a per-organization report when a job finishes.
	EmailNotifications bool `env:"HARVEST_EMAIL_NOTIFICATIONS" envDefault:"false"`

	// FixedPackagesEmailTo receives the relink/orphan summary of each reconciled job.
	FixedPackagesEmailTo string `env:"HARVEST_FIXED_PACKAGES_EMAIL_TO"`

	// ExternalMarkerKey and ExternalMarkerValue mark datasets managed outside of
	// harvesting. Such datasets are never removed as orphans.
	ExternalMarkerKey   string `env:"HARVEST_EXTERNAL_MARKER_KEY"   envDefault:"metadata-source"`
	ExternalMarkerValue string `env:"HARVEST_EXTERNAL_MARKER_VALUE" envDefault:"dms"`

	// CollectionKey is the source config key that drives parent/children job chaining.
	CollectionKey string `env:"HARVEST_COLLECTION_KEY" envDefault:"datajson_collection"`
}

// Sanitize applies guardrails to harvest configuration values.
func (h *HarvestConfig) Sanitize() {
	h.SiteID = strings.TrimSpace(h.SiteID)
	if h.SiteID == "" {
		h.SiteID = "default"
	}
	h.SiteURL = strings.TrimRight(strings.TrimSpace(h.SiteURL), "/")
	h.SiteAdminURL = strings.TrimRight(strings.TrimSpace(h.SiteAdminURL), "/")
	if h.SiteTitle = strings.TrimSpace(h.SiteTitle); h.SiteTitle == "" {
		h.SiteTitle = "Data.gov"
	}
	h.FixedPackagesEmailTo = strings.TrimSpace(h.FixedPackagesEmailTo)
	if h.ExternalMarkerKey = strings.TrimSpace(h.ExternalMarkerKey); h.ExternalMarkerKey == "" {
		h.ExternalMarkerKey = "metadata-source"
	}
	if h.CollectionKey = strings.TrimSpace(h.CollectionKey); h.CollectionKey == "" {
		h.CollectionKey = "datajson_collection"
	}
}
