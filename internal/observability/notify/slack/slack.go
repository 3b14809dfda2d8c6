// Package slack posts harvest failure notifications to a Slack incoming webhook.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/target/harvestd/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// SiteURL is the catalog base URL used to link the failing source.
	SiteURL string
}

// Client delivers harvest failure notifications to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	siteURL    string
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   notify.Fallback(strings.TrimSpace(cfg.Username), "harvestd"),
		retryLimit: max(cfg.RetryLimit, 0),
		siteURL:    strings.TrimSpace(cfg.SiteURL),
		client:     hc,
	}, nil
}

// SendHarvestFailure posts a formatted message to Slack.
func (c *Client) SendHarvestFailure(ctx context.Context, payload notify.HarvestFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return notify.PostJSON(ctx, notify.PostOptions{
		Client:     c.client,
		URL:        c.webhookURL,
		Body:       body,
		RetryLimit: c.retryLimit,
		Label:      "slack webhook",
	})
}

func (c *Client) formatMessage(payload notify.HarvestFailurePayload) map[string]any {
	at := payload.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	var text strings.Builder
	text.WriteString("*Harvest failure*")
	if payload.JobID != "" {
		fmt.Fprintf(&text, " `%s`", payload.JobID)
	}
	if payload.Stage != "" {
		fmt.Fprintf(&text, " (%s)", payload.Stage)
	}
	text.WriteByte('\n')

	writeField(&text, "Severity", notify.Fallback(payload.Severity, notify.SeverityCritical))
	writeField(&text, "Source", c.sourceValue(payload.SourceID, payload.SourceName))
	writeField(&text, "Error class", payload.ErrorClass)
	writeField(&text, "Error", payload.Error)
	writeMetadata(&text, payload.Metadata)
	text.WriteString("• Timestamp: ")
	text.WriteString(at.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func (c *Client) sourceValue(sourceID, sourceName string) string {
	id := escape(strings.TrimSpace(sourceID))
	name := escape(strings.TrimSpace(sourceName))

	link := ""
	if rawName := strings.TrimSpace(sourceName); rawName != "" {
		link = c.sourceLink(rawName)
	}

	switch {
	case link != "" && id != "":
		return fmt.Sprintf("<%s|%s> (%s)", link, name, id)
	case link != "":
		return fmt.Sprintf("<%s|%s>", link, name)
	case name != "" && id != "":
		return fmt.Sprintf("%s (%s)", name, id)
	case name != "":
		return name
	default:
		return id
	}
}

// sourceLink points at the public harvest source page.
func (c *Client) sourceLink(sourceName string) string {
	if c.siteURL == "" {
		return ""
	}
	u, err := url.Parse(c.siteURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	link, err := url.JoinPath(u.String(), "harvest", sourceName)
	if err != nil {
		return ""
	}
	return link
}

func escape(value string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(value)
}

func writeField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(text, "• %s: %s\n", label, value)
}

func writeMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	text.WriteString("• Metadata:\n")
	for _, k := range keys {
		fmt.Fprintf(text, "    • %s: %s\n", k, metadata[k])
	}
}
