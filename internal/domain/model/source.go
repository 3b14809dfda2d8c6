// Package model defines the core data types shared across the harvest orchestration system.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Frequency is how often a source is due for a new harvest job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Frequency string

const (
	// FrequencyManual sources are only harvested on explicit request.
	FrequencyManual Frequency = "MANUAL"
	// FrequencyAlways sources become due again immediately.
	FrequencyAlways Frequency = "ALWAYS"
	// FrequencyDaily sources are due once a day.
	FrequencyDaily Frequency = "DAILY"
	// FrequencyWeekly sources are due every seven days.
	FrequencyWeekly Frequency = "WEEKLY"
	// FrequencyBiweekly sources are due every fourteen days.
	FrequencyBiweekly Frequency = "BIWEEKLY"
	// FrequencyMonthly sources are due after a month-length number of days.
	FrequencyMonthly Frequency = "MONTHLY"
)

// Valid returns true if the frequency is one of the known values.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyManual, FrequencyAlways, FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// UnmarshalText normalises case so "daily" and "DAILY" parse the same.
func (f *Frequency) UnmarshalText(text []byte) error {
	v := Frequency(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid frequency: %q", string(text))
	}
	*f = v
	return nil
}

// Source is a configured origin of external catalog data.
type Source struct {
	ID        string     `json:"id"                 db:"id"`
	Name      string     `json:"name"               db:"name"`
	Title     string     `json:"title"              db:"title"`
	URL       string     `json:"url"                db:"url"`
	Type      string     `json:"source_type"        db:"source_type"`
	Frequency Frequency  `json:"frequency"          db:"frequency"`
	Config    string     `json:"config"             db:"config"`
	Active    bool       `json:"active"             db:"active"`
	OwnerOrg  *string    `json:"owner_org,omitempty" db:"owner_org"`
	NextRun   *time.Time `json:"next_run,omitempty" db:"next_run"`
	CreatedAt time.Time  `json:"created"            db:"created"`
}

// ParsedConfig decodes the source configuration document.
// An empty configuration yields an empty map.
func (s *Source) ParsedConfig() (SourceConfig, error) {
	return ParseSourceConfig(s.Config)
}

// SourceConfig is the decoded free-form configuration of a source.
type SourceConfig map[string]any

// ParseSourceConfig decodes a JSON configuration document.
func ParseSourceConfig(raw string) (SourceConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SourceConfig{}, nil
	}
	cfg := SourceConfig{}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("parse source config: %w", err)
	}
	return cfg, nil
}

// String re-encodes the configuration. Keys are sorted by encoding/json.
func (c SourceConfig) String() string {
	if len(c) == 0 {
		return "{}"
	}
	b, err := json.Marshal(map[string]any(c))
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Truthy reports whether the value stored under key is set to something truthy.
func (c SourceConfig) Truthy(key string) bool {
	v, ok := c[key]
	if !ok {
		return false
	}
	return IsTruthy(v)
}

// IsTruthy mirrors loose truthiness for decoded JSON values.
func IsTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case json.Number:
		return t.String() != "0"
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// SourceDocument is the dictized representation of a source written to the search index.
type SourceDocument map[string]any

// Actor scopes listing operations to what a caller may see.
type Actor struct {
	UserID   string
	Sysadmin bool
	OrgIDs   []string
}

// SystemActor is used by internal maintenance passes.
func SystemActor() Actor {
	return Actor{UserID: "system", Sysadmin: true}
}

// DueSourcesQuery selects sources whose next run is at or before Now.
type DueSourcesQuery struct {
	Now   time.Time
	Actor Actor
}
