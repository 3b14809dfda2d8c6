package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PostOptions configures a JSON webhook delivery.
type PostOptions struct {
	Client     *http.Client
	URL        string
	Body       []byte
	RetryLimit int
	// Label prefixes error messages, e.g. "slack".
	Label string
}

// PostJSON sends Body to URL, retrying with a linear backoff on failure.
func PostJSON(ctx context.Context, opts PostOptions) error {
	attempts := max(opts.RetryLimit, 0) + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = postOnce(ctx, opts)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func postOnce(ctx context.Context, opts PostOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.URL, bytes.NewReader(opts.Body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", opts.Label, err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", opts.Label, err)
	}

	body, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", opts.Label, resp.Status, strings.TrimSpace(string(body)))
	}
	if readErr != nil || closeErr != nil {
		return errors.Join(readErr, closeErr)
	}
	return nil
}

// Fallback returns value unless it is blank.
func Fallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
