package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/domain/model"
	"github.com/target/harvestd/internal/harvester"
)

// HarvesterLookup resolves a harvester by source type.
type HarvesterLookup interface {
	Lookup(sourceType string) (harvester.Harvester, error)
}

// SourceReindexer rebuilds a source's search document.
type SourceReindexer interface {
	ReindexSource(ctx context.Context, sourceID string, deferCommit bool) error
}

// SourceAdminServiceOptions groups dependencies for SourceAdminService.
type SourceAdminServiceOptions struct {
	Sources    core.SourceRepository        // Required
	Objects    core.HarvestObjectRepository // Required
	Clearer    core.SourceClearRepository   // Required
	Index      core.SearchIndex             // Required
	Reindexer  SourceReindexer              // Required
	Harvesters HarvesterLookup              // Required
	Logger     *slog.Logger                 // Optional
}

// SourceAdminService provides operator maintenance on harvest sources.
type SourceAdminService struct {
	sources    core.SourceRepository
	objects    core.HarvestObjectRepository
	clearer    core.SourceClearRepository
	index      core.SearchIndex
	reindexer  SourceReindexer
	harvesters HarvesterLookup
	logger     *slog.Logger
}

// ImportRequest selects harvest objects to import again.
type ImportRequest struct {
	model.ObjectImportFilter
	// Force asks harvesters to import content even when it has not changed.
	Force bool
}

// ImportResult counts the outcome of ImportObjects.
type ImportResult struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// NewSourceAdminService constructs a SourceAdminService.
func NewSourceAdminService(opts SourceAdminServiceOptions) (*SourceAdminService, error) {
	switch {
	case opts.Sources == nil:
		return nil, errors.New("SourceRepository is required")
	case opts.Objects == nil:
		return nil, errors.New("HarvestObjectRepository is required")
	case opts.Clearer == nil:
		return nil, errors.New("SourceClearRepository is required")
	case opts.Index == nil:
		return nil, errors.New("SearchIndex is required")
	case opts.Reindexer == nil:
		return nil, errors.New("SourceReindexer is required")
	case opts.Harvesters == nil:
		return nil, errors.New("HarvesterLookup is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceAdminService{
		sources:    opts.Sources,
		objects:    opts.Objects,
		clearer:    opts.Clearer,
		index:      opts.Index,
		reindexer:  opts.Reindexer,
		harvesters: opts.Harvesters,
		logger:     logger.With("component", "source_admin"),
	}, nil
}

// ClearSourceIndex removes every index document harvested by the source on this site.
func (s *SourceAdminService) ClearSourceIndex(ctx context.Context, sourceID string) error {
	src, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		return err
	}
	if err := s.index.DeleteSource(ctx, src.ID); err != nil {
		return fmt.Errorf("clear index of source %s: %w", src.ID, err)
	}
	return nil
}

// ClearSource deletes every dataset, object and job a source produced but keeps
// the source itself, then reindexes it.
func (s *SourceAdminService) ClearSource(ctx context.Context, sourceID string) (core.ClearSourceResult, error) {
	if err := s.ClearSourceIndex(ctx, sourceID); err != nil {
		return core.ClearSourceResult{}, err
	}

	res, err := s.clearer.ClearSource(ctx, sourceID)
	if err != nil {
		return res, err
	}
	s.logger.InfoContext(ctx, "harvest source cleared", "source_id", sourceID, "steps", res.Steps)

	if err := s.reindexer.ReindexSource(ctx, sourceID, false); err != nil {
		return res, fmt.Errorf("reindex cleared source: %w", err)
	}
	return res, nil
}

// ImportObjects runs the import stage again for the selected objects. No remote
// fetch happens; the content stored on each object is imported. Per-object
// failures are logged and counted.
func (s *SourceAdminService) ImportObjects(ctx context.Context, req ImportRequest) (ImportResult, error) {
	if req.SourceID != "" {
		src, err := s.sources.GetByID(ctx, req.SourceID)
		if err != nil {
			return ImportResult{}, err
		}
		if !src.Active {
			return ImportResult{}, fmt.Errorf("%w: %s", domain.ErrSourceInactive, src.ID)
		}
	}

	objects, err := s.objects.ListForImport(ctx, req.ObjectImportFilter)
	if err != nil {
		return ImportResult{}, err
	}
	if len(objects) == 0 {
		return ImportResult{}, domain.ErrNoObjectsToImport
	}

	sourceTypes := map[string]string{}
	var res ImportResult
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !InSegments(obj.ID, req.Segments) {
			res.Skipped++
			continue
		}
		if err := s.importOne(ctx, obj, req.Force, sourceTypes); err != nil {
			res.Failed++
			s.logger.ErrorContext(ctx, "failed to import harvest object",
				"object_id", obj.ID, "source_id", obj.SourceID, "error", err)
			continue
		}
		res.Imported++
	}

	s.logger.InfoContext(ctx, "harvest objects imported",
		"imported", res.Imported, "failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

func (s *SourceAdminService) importOne(
	ctx context.Context,
	obj *model.HarvestObject,
	force bool,
	sourceTypes map[string]string,
) error {
	sourceType, ok := sourceTypes[obj.SourceID]
	if !ok {
		src, err := s.sources.GetByID(ctx, obj.SourceID)
		if err != nil {
			return err
		}
		sourceType = src.Type
		sourceTypes[obj.SourceID] = sourceType
	}

	h, err := s.harvesters.Lookup(sourceType)
	if err != nil {
		return err
	}
	if fi, ok := h.(harvester.ForceImporter); ok {
		fi.SetForceImport(force)
	}
	return h.ImportStage(ctx, obj)
}

// InSegments reports whether the md5 hex digest of id starts with one of the
// characters in segments. An empty segments string matches everything.
func InSegments(id, segments string) bool {
	if segments == "" {
		return true
	}
	sum := md5.Sum([]byte(id))
	return strings.ContainsRune(strings.ToLower(segments), rune(hex.EncodeToString(sum[:1])[0]))
}
