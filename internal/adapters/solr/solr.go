// Package solr writes harvest documents to a Solr core through its JSON update handler.
package solr

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // index ids are not a security boundary
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/domain/model"
)

// Options configures a Client.
type Options struct {
	// CoreURL is the Solr core base, e.g. http://solr:8983/solr/ckan.
	CoreURL string
	SiteID  string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// Client talks to one Solr core.
type Client struct {
	updateURL string
	siteID    string
	http      *http.Client
	logger    *slog.Logger
}

var _ core.SearchIndex = (*Client)(nil)

// NewClient builds a Client.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.CoreURL), "/")
	if base == "" {
		return nil, errors.New("solr core url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid solr core url: %w", err)
	}
	siteID := strings.TrimSpace(opts.SiteID)
	if siteID == "" {
		return nil, errors.New("site id is required")
	}

	hc := opts.Client
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		updateURL: base + "/update",
		siteID:    siteID,
		http:      hc,
		logger:    logger.With("component", "solr"),
	}, nil
}

// IndexID derives the unique index key of a document, scoped to the site.
func IndexID(siteID, id string) string {
	sum := md5.Sum([]byte(siteID + id)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// Index adds or replaces doc. site_id and index_id are filled in when missing.
func (c *Client) Index(ctx context.Context, doc model.SourceDocument, deferCommit bool) error {
	id, _ := doc["id"].(string)
	if id == "" {
		return errors.New("document has no id")
	}

	out := make(map[string]any, len(doc)+2)
	for k, v := range doc {
		out[k] = v
	}
	if _, ok := out["site_id"]; !ok {
		out["site_id"] = c.siteID
	}
	if _, ok := out["index_id"]; !ok {
		out["index_id"] = IndexID(c.siteID, id)
	}

	body := map[string]any{"add": map[string]any{"doc": out}}
	if err := c.update(ctx, body, !deferCommit); err != nil {
		return fmt.Errorf("index document %s: %w", id, err)
	}
	return nil
}

// DeleteSource removes every document of a harvest source on this site.
func (c *Client) DeleteSource(ctx context.Context, sourceID string) error {
	q := fmt.Sprintf("+harvest_source_id:%s +site_id:%s", quote(sourceID), quote(c.siteID))
	if err := c.deleteByQuery(ctx, q); err != nil {
		return fmt.Errorf("clear index for source %s: %w", sourceID, err)
	}
	return nil
}

// DeleteDataset removes one dataset document on this site.
func (c *Client) DeleteDataset(ctx context.Context, datasetID string) error {
	q := fmt.Sprintf("+id:%s +site_id:%s", quote(datasetID), quote(c.siteID))
	if err := c.deleteByQuery(ctx, q); err != nil {
		return fmt.Errorf("remove dataset %s from index: %w", datasetID, err)
	}
	return nil
}

// Commit makes pending changes visible to searches.
func (c *Client) Commit(ctx context.Context) error {
	if err := c.update(ctx, map[string]any{"commit": map[string]any{}}, false); err != nil {
		return fmt.Errorf("commit index: %w", err)
	}
	return nil
}

func (c *Client) deleteByQuery(ctx context.Context, q string) error {
	c.logger.DebugContext(ctx, "delete by query", "query", q)
	return c.update(ctx, map[string]any{"delete": map[string]any{"query": q}}, true)
}

func (c *Client) update(ctx context.Context, body map[string]any, commit bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode solr update: %w", err)
	}

	u := c.updateURL + "?wt=json"
	if commit {
		u += "&commit=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create solr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("solr request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read solr response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("solr %s: %s", resp.Status, errorMessage(respBody))
	}
	return nil
}

// errorMessage extracts error.msg from a Solr error response.
func errorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Msg string `json:"msg"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Msg != "" {
		return parsed.Error.Msg
	}
	return strings.TrimSpace(string(body))
}

// quote wraps a term in double quotes, escaping backslashes and quotes.
func quote(term string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(term) + `"`
}

// NopIndex discards every index operation. Used when no Solr core is configured.
type NopIndex struct{}

var _ core.SearchIndex = NopIndex{}

// Index implements core.SearchIndex.
func (NopIndex) Index(context.Context, model.SourceDocument, bool) error { return nil }

// DeleteSource implements core.SearchIndex.
func (NopIndex) DeleteSource(context.Context, string) error { return nil }

// DeleteDataset implements core.SearchIndex.
func (NopIndex) DeleteDataset(context.Context, string) error { return nil }

// Commit implements core.SearchIndex.
func (NopIndex) Commit(context.Context) error { return nil }
