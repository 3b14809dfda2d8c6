package bootstrap

import (
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/harvestd/config"
	"github.com/target/harvestd/internal/adapters/smtpmail"
	"github.com/target/harvestd/internal/adapters/solr"
	"github.com/target/harvestd/internal/mocks"
	"go.uber.org/mock/gomock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{name: "no services enabled", want: 0},
		{name: "http only", modes: []config.ServiceMode{config.ServiceModeHTTP}, want: 1},
		{
			name:  "http and runner",
			modes: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceModeRunner},
			want:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}
			assert.Equal(t, tt.want, errorChannelCapacity(enabled))
			assert.Equal(t, tt.want+1, errorChannelBufferSize(enabled))
		})
	}
}

func testAppConfig() *config.AppConfig {
	cfg := &config.AppConfig{Services: "http,runner"}
	cfg.Harvest.SiteID = "catalog"
	cfg.Sanitize()
	return cfg
}

func TestNewServices_RequiresDependencies(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = NewServices(nil)
	require.Error(t, err)

	_, err = NewServices(&ServiceDeps{Config: testAppConfig()})
	require.ErrorContains(t, err, "database")

	_, err = NewServices(&ServiceDeps{Config: testAppConfig(), DB: db})
	require.ErrorContains(t, err, "search index")

	_, err = NewServices(&ServiceDeps{Config: testAppConfig(), DB: db, Index: solr.NopIndex{}})
	require.ErrorContains(t, err, "mailer")
}

func TestNewServices_WithoutQueue(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svcs, err := NewServices(&ServiceDeps{
		Config: testAppConfig(),
		DB:     db,
		Index:  solr.NopIndex{},
		Mailer: smtpmail.LogMailer{},
		Logger: discardLogger(),
	})
	require.NoError(t, err)

	assert.NotNil(t, svcs.Jobs)
	assert.NotNil(t, svcs.Reconciler)
	assert.NotNil(t, svcs.Reindex)
	assert.NotNil(t, svcs.SourceAdmin)
	assert.Nil(t, svcs.Dispatcher)
	assert.Nil(t, svcs.Passes)
	assert.Empty(t, svcs.Harvesters.List())
}

func TestNewServices_WithQueueAndReports(t *testing.T) {
	ctrl := gomock.NewController(t)
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := testAppConfig()
	cfg.Harvest.EmailNotifications = true

	svcs, err := NewServices(&ServiceDeps{
		Config:        cfg,
		DB:            db,
		Queue:         mocks.NewMockQueueConnector(ctrl),
		Index:         solr.NopIndex{},
		Mailer:        smtpmail.LogMailer{},
		Observability: BuildObservability(discardLogger(), config.ObservabilityConfig{}, ""),
		Logger:        discardLogger(),
	})
	require.NoError(t, err)
	assert.NotNil(t, svcs.Dispatcher)
	assert.NotNil(t, svcs.Passes)
}

func TestReconcilerConfig(t *testing.T) {
	cfg := config.HarvestConfig{
		CollectionKey:        "datajson_collection",
		ExternalMarkerKey:    "metadata-source",
		ExternalMarkerValue:  "dms",
		FixedPackagesEmailTo: "ops@example.gov",
		EmailNotifications:   true,
	}
	got := reconcilerConfig(cfg)
	assert.Equal(t, "datajson_collection", got.CollectionKey)
	assert.Equal(t, "metadata-source", got.ExternalMarkerKey)
	assert.Equal(t, "dms", got.ExternalMarkerValue)
	assert.Equal(t, "ops@example.gov", got.FixedPackagesEmailTo)
	assert.True(t, got.EmailNotifications)
}

func TestFailureNotifier_NilStaysNil(t *testing.T) {
	assert.Nil(t, failureNotifier(ObservabilityContainer{}))
	assert.NotNil(t, failureNotifier(BuildObservability(discardLogger(), config.ObservabilityConfig{}, "")))
}

func TestHealthChecks(t *testing.T) {
	assert.Empty(t, healthChecks(nil, nil))

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	checks := healthChecks(db, client)
	assert.Contains(t, checks, "postgres")
	assert.Contains(t, checks, "redis")
}
