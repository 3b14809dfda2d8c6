package config

import (
	"fmt"
	"strings"
	"time"
)

// QueueBackend selects where gather requests are published.
type QueueBackend string

const (
	// QueueBackendRedis pushes onto a Redis list.
	QueueBackendRedis QueueBackend = "redis"
	// QueueBackendNATS publishes to a JetStream work-queue stream.
	QueueBackendNATS QueueBackend = "nats"
)

// QueueConfig configures the gather queue. Fields are read with the QUEUE_ prefix.
type QueueConfig struct {
	Backend QueueBackend `env:"BACKEND" envDefault:"redis"`

	// RedisGatherKey defaults to "<site_id>:harvest_job_id".
	RedisGatherKey string `env:"REDIS_GATHER_KEY"`

	NATSURL     string        `env:"NATS_URL"     envDefault:"nats://localhost:4222"`
	NATSStream  string        `env:"NATS_STREAM"  envDefault:"HARVEST"`
	NATSSubject string        `env:"NATS_SUBJECT" envDefault:"harvest.gather"`
	NATSMaxAge  time.Duration `env:"NATS_MAX_AGE" envDefault:"0s"`
}

// Sanitize normalises queue settings. siteID feeds the default Redis key.
func (q *QueueConfig) Sanitize(siteID string) {
	q.Backend = QueueBackend(strings.ToLower(strings.TrimSpace(string(q.Backend))))
	if q.Backend == "" {
		q.Backend = QueueBackendRedis
	}
	if q.RedisGatherKey = strings.TrimSpace(q.RedisGatherKey); q.RedisGatherKey == "" {
		q.RedisGatherKey = siteID + ":harvest_job_id"
	}
	q.NATSURL = strings.TrimSpace(q.NATSURL)
	if q.NATSMaxAge < 0 {
		q.NATSMaxAge = 0
	}
}

// Validate checks the backend name.
func (q *QueueConfig) Validate() error {
	switch q.Backend {
	case QueueBackendRedis:
		return nil
	case QueueBackendNATS:
		if q.NATSURL == "" {
			return fmt.Errorf("QUEUE_NATS_URL is required for the %s backend", q.Backend)
		}
		return nil
	default:
		return fmt.Errorf("invalid QUEUE_BACKEND %q (valid options: redis, nats)", q.Backend)
	}
}
