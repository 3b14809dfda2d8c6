package natsqueue

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/harvestd/internal/domain/model"
)

func TestNewConnectorDefaults(t *testing.T) {
	_, err := NewConnector(Options{})
	require.Error(t, err)

	c, err := NewConnector(Options{URL: "nats://localhost:4222"})
	require.NoError(t, err)

	cfg := c.StreamConfig()
	assert.Equal(t, DefaultStream, cfg.Name)
	assert.Equal(t, []string{DefaultSubject}, cfg.Subjects)
	assert.Equal(t, jetstream.WorkQueuePolicy, cfg.Retention)
	assert.Equal(t, jetstream.FileStorage, cfg.Storage)
}

func TestPublisherCloseWithoutConnection(t *testing.T) {
	require.NoError(t, (&Publisher{}).Close())
}

func TestPublishIntegration(t *testing.T) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	stream := "HARVEST_TEST_" + time.Now().UTC().Format("150405000")
	subject := "harvest.test." + time.Now().UTC().Format("150405000")
	c, err := NewConnector(Options{URL: natsURL, Stream: stream, Subject: subject, ConnectTimeout: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.EnsureStream(ctx); err != nil {
		t.Skipf("skipping integration test; NATS unavailable at %s: %v", natsURL, err)
	}

	nc, err := nats.Connect(natsURL)
	require.NoError(t, err)
	js, err := jetstream.New(nc)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = js.DeleteStream(context.Background(), stream)
		nc.Close()
	})

	pub, err := c.GatherPublisher(ctx)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, model.DispatchMessage{HarvestJobID: "job-1"}))
	require.NoError(t, pub.Publish(ctx, model.DispatchMessage{HarvestJobID: "job-1"}))
	require.NoError(t, pub.Close())

	s, err := js.Stream(ctx, stream)
	require.NoError(t, err)
	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs, "duplicate publish must be dropped")

	raw, err := s.GetMsg(ctx, info.State.FirstSeq)
	require.NoError(t, err)
	var msg model.DispatchMessage
	require.NoError(t, json.Unmarshal(raw.Data, &msg))
	assert.Equal(t, "job-1", msg.HarvestJobID)
}
