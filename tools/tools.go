//go:build tools

// Package tools documents development tool dependencies.
// The tools run through `go run` or a global `go install`, so go.mod does not track them.
package tools

// Development tools:
//
// mockgen - regenerates internal/mocks from the ports in internal/core
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock v0.6.0 (pinned in the go:generate directives)
//
// Air - live reload for cmd/harvestd during local development
//   Install: go install github.com/air-verse/air@v1.63.0
//   Docs: https://github.com/air-verse/air
