package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/domain/model"
)

// ReindexServiceOptions groups dependencies for ReindexService.
type ReindexServiceOptions struct {
	Sources  core.SourceRepository  // Required
	Datasets core.DatasetRepository // Required
	Index    core.SearchIndex       // Required
	SiteID   string                 // Required
	Logger   *slog.Logger           // Optional
}

// ReindexService writes source and dataset documents to the search index.
type ReindexService struct {
	sources  core.SourceRepository
	datasets core.DatasetRepository
	index    core.SearchIndex
	siteID   string
	logger   *slog.Logger
}

// ReindexAllResult counts the outcome of a full source reindex.
type ReindexAllResult struct {
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`
}

// NewReindexService constructs a ReindexService.
func NewReindexService(opts ReindexServiceOptions) (*ReindexService, error) {
	switch {
	case opts.Sources == nil:
		return nil, errors.New("SourceRepository is required")
	case opts.Datasets == nil:
		return nil, errors.New("DatasetRepository is required")
	case opts.Index == nil:
		return nil, errors.New("SearchIndex is required")
	case opts.SiteID == "":
		return nil, errors.New("SiteID is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReindexService{
		sources:  opts.Sources,
		datasets: opts.Datasets,
		index:    opts.Index,
		siteID:   opts.SiteID,
		logger:   logger.With("component", "reindexer"),
	}, nil
}

// ReindexSource writes the document of one source. Keys that also appear in the
// source configuration are tuning knobs, not metadata, and are dropped.
func (s *ReindexService) ReindexSource(ctx context.Context, sourceID string, deferCommit bool) error {
	doc, err := s.sources.GetDocument(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("load source document %s: %w", sourceID, err)
	}

	raw, _ := doc["config"].(string)
	cfg, err := model.ParseSourceConfig(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "source config is not valid JSON, indexing as is",
			"source_id", sourceID, "error", err)
	}

	out := make(model.SourceDocument, len(doc)+2)
	for k, v := range doc {
		if _, isConfig := cfg[k]; isConfig {
			continue
		}
		out[k] = v
	}
	out["site_id"] = s.siteID
	out["harvest_source_id"] = sourceID

	s.logger.DebugContext(ctx, "updating search index for harvest source", "source_id", sourceID)
	if err := s.index.Index(ctx, out, deferCommit); err != nil {
		return fmt.Errorf("index source %s: %w", sourceID, err)
	}
	return nil
}

// ReindexDataset rebuilds the index entry of one dataset.
func (s *ReindexService) ReindexDataset(ctx context.Context, datasetID string) error {
	doc, err := s.datasets.GetDocument(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("load dataset document %s: %w", datasetID, err)
	}
	doc["site_id"] = s.siteID
	if err := s.index.Index(ctx, doc, false); err != nil {
		return fmt.Errorf("index dataset %s: %w", datasetID, err)
	}
	return nil
}

// RemoveDataset deletes a dataset from the index.
func (s *ReindexService) RemoveDataset(ctx context.Context, datasetID string) error {
	return s.index.DeleteDataset(ctx, datasetID)
}

// ReindexAllSources reindexes every active source with a deferred commit and
// commits once at the end. Per-source failures are logged and counted.
func (s *ReindexService) ReindexAllSources(ctx context.Context) (ReindexAllResult, error) {
	sources, err := s.sources.ListActive(ctx)
	if err != nil {
		return ReindexAllResult{}, fmt.Errorf("list active sources: %w", err)
	}

	s.logger.InfoContext(ctx, "reindexing all harvest sources", "count", len(sources))
	var res ReindexAllResult
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.ReindexSource(ctx, src.ID, true); err != nil {
			res.Failed++
			s.logger.ErrorContext(ctx, "failed to reindex source", "source_id", src.ID, "error", err)
			continue
		}
		res.Indexed++
	}

	if err := s.index.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit search index: %w", err)
	}
	return res, nil
}
