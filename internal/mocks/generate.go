// Package mocks provides mock implementations of the harvest ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// queue, search index and mail interfaces in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	index := mocks.NewMockSearchIndex(ctrl)
//	index.EXPECT().Commit(gomock.Any()).Return(nil)
package mocks

// Generate mocks for the gather queue ports.
// MockPublisher: Publish, Close. MockQueueConnector: GatherPublisher.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=queue_mock.go github.com/target/harvestd/internal/core Publisher,QueueConnector

// Generate mock for SearchIndex interface from internal/core package.
// This creates MockSearchIndex with methods Index, DeleteSource, DeleteDataset, Commit.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=search_index_mock.go github.com/target/harvestd/internal/core SearchIndex

// Generate mock for Mailer interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=mailer_mock.go github.com/target/harvestd/internal/core Mailer
