// Package natsqueue publishes gather requests to a NATS JetStream work-queue stream.
package natsqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/domain/model"
)

// Defaults for the gather stream.
const (
	DefaultStream  = "HARVEST"
	DefaultSubject = "harvest.gather"
)

// Options configures a Connector.
type Options struct {
	URL     string
	Stream  string
	Subject string
	// MaxAge bounds how long unconsumed gather requests are retained. Zero keeps them.
	MaxAge         time.Duration
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// Connector opens one NATS connection per dispatch batch.
type Connector struct {
	url     string
	stream  string
	subject string
	maxAge  time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

var _ core.QueueConnector = (*Connector)(nil)

// NewConnector builds a Connector.
func NewConnector(opts Options) (*Connector, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	stream := strings.TrimSpace(opts.Stream)
	if stream == "" {
		stream = DefaultStream
	}
	subject := strings.TrimSpace(opts.Subject)
	if subject == "" {
		subject = DefaultSubject
	}
	return &Connector{
		url:     url,
		stream:  stream,
		subject: subject,
		maxAge:  opts.MaxAge,
		timeout: timeout,
		logger:  logger.With("component", "natsqueue"),
	}, nil
}

// StreamConfig returns the stream definition the connector maintains.
func (c *Connector) StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:      c.stream,
		Subjects:  []string{c.subject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    c.maxAge,
		Discard:   jetstream.DiscardOld,
	}
}

// EnsureStream creates or updates the gather stream.
func (c *Connector) EnsureStream(ctx context.Context) error {
	nc, js, err := c.connect()
	if err != nil {
		return err
	}
	defer nc.Close()

	if _, err := js.CreateOrUpdateStream(ctx, c.StreamConfig()); err != nil {
		return fmt.Errorf("creating stream %s: %w", c.stream, err)
	}
	c.logger.InfoContext(ctx, "gather stream ready", "stream", c.stream, "subject", c.subject)
	return nil
}

// GatherPublisher opens a connection for one dispatch batch. Close drains it.
func (c *Connector) GatherPublisher(_ context.Context) (core.Publisher, error) {
	nc, js, err := c.connect()
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, js: js, subject: c.subject}, nil
}

func (c *Connector) connect() (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(c.url,
		nats.Name("harvestd"),
		nats.Timeout(c.timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	return nc, js, nil
}

// Publisher publishes dispatch messages on one connection.
type Publisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
}

// Publish sends msg to the gather subject. The job id doubles as the JetStream
// message id so a repeated publish inside the dedupe window is dropped by the server.
func (p *Publisher) Publish(ctx context.Context, msg model.DispatchMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode dispatch message: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.subject, body, jetstream.WithMsgID(msg.HarvestJobID)); err != nil {
		return fmt.Errorf("publish job %s to %s: %w", msg.HarvestJobID, p.subject, err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (p *Publisher) Close() error {
	if p.nc == nil || p.nc.IsClosed() {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
