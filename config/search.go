package config

import (
	"strings"
	"time"
)

// SearchConfig configures the Solr core. Fields are read with the SEARCH_ prefix.
type SearchConfig struct {
	// SolrURL is the core base URL. Indexing is disabled when empty.
	SolrURL string        `env:"SOLR_URL" envDefault:"http://localhost:8983/solr/ckan"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"30s"`
}

// Sanitize applies guardrails to search configuration values.
func (s *SearchConfig) Sanitize() {
	s.SolrURL = strings.TrimRight(strings.TrimSpace(s.SolrURL), "/")
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
}

// Enabled reports whether a search index is configured.
func (s *SearchConfig) Enabled() bool {
	return s.SolrURL != ""
}
