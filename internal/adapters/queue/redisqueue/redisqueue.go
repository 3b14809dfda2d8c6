// Package redisqueue publishes gather requests onto a Redis list consumed by gather workers.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/domain/model"
)

// DefaultKeySuffix is appended to the site id to build the default gather list key.
const DefaultKeySuffix = "harvest_job_id"

// DefaultKey returns the list key gather workers read for a site.
func DefaultKey(siteID string) string {
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return DefaultKeySuffix
	}
	return siteID + ":" + DefaultKeySuffix
}

// Options configures a Connector.
type Options struct {
	Client redis.UniversalClient
	// Key is the Redis list gather requests are pushed onto.
	Key string
}

// Connector hands out publishers that share one Redis client.
type Connector struct {
	client redis.UniversalClient
	key    string
}

var _ core.QueueConnector = (*Connector)(nil)

// NewConnector builds a Connector.
func NewConnector(opts Options) (*Connector, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		return nil, errors.New("gather queue key is required")
	}
	return &Connector{client: opts.Client, key: key}, nil
}

// GatherPublisher returns a publisher for one dispatch batch.
func (c *Connector) GatherPublisher(ctx context.Context) (core.Publisher, error) {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis gather queue unavailable: %w", err)
	}
	return &Publisher{client: c.client, key: c.key}, nil
}

// Publisher pushes dispatch messages with RPUSH.
type Publisher struct {
	client redis.UniversalClient
	key    string
	closed bool
}

// Publish appends msg to the gather list.
func (p *Publisher) Publish(ctx context.Context, msg model.DispatchMessage) error {
	if p.closed {
		return errors.New("publisher is closed")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode dispatch message: %w", err)
	}
	if err := p.client.RPush(ctx, p.key, body).Err(); err != nil {
		return fmt.Errorf("publish job %s to %s: %w", msg.HarvestJobID, p.key, err)
	}
	return nil
}

// Close marks the publisher unusable. The shared client stays open.
func (p *Publisher) Close() error {
	p.closed = true
	return nil
}
