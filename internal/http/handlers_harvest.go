// Package httpx provides the operator HTTP API of the harvest daemon.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/target/harvestd/internal/core"
	"github.com/target/harvestd/internal/domain/model"
	apperrors "github.com/target/harvestd/internal/errors"
	"github.com/target/harvestd/internal/service"
)

// PassRunner runs one harvest pass.
type PassRunner interface {
	RunPass(ctx context.Context, sourceID string) (service.PassResult, error)
}

// JobCreator creates manual harvest jobs.
type JobCreator interface {
	CreateJob(ctx context.Context, sourceID string) (*model.Job, error)
}

// Reindexer rebuilds search index documents.
type Reindexer interface {
	ReindexSource(ctx context.Context, sourceID string, deferCommit bool) error
	ReindexAllSources(ctx context.Context) (service.ReindexAllResult, error)
}

// SourceAdministrator performs destructive maintenance on sources.
type SourceAdministrator interface {
	ClearSource(ctx context.Context, sourceID string) (core.ClearSourceResult, error)
	ClearSourceIndex(ctx context.Context, sourceID string) error
	ImportObjects(ctx context.Context, req service.ImportRequest) (service.ImportResult, error)
}

// HarvestHandlers serves manual triggers for harvest operations.
type HarvestHandlers struct {
	Passes  PassRunner
	Jobs    JobCreator
	Reindex Reindexer
	Admin   SourceAdministrator
	Logger  *slog.Logger
}

// RunPass handles POST /api/v1/harvest/run.
func (h *HarvestHandlers) RunPass(w http.ResponseWriter, r *http.Request) {
	sourceID := strings.TrimSpace(r.URL.Query().Get("source_id"))

	res, err := h.Passes.RunPass(r.Context(), sourceID)
	if err != nil {
		// Step errors do not stop the pass, so the counts are still meaningful.
		appErr := apperrors.FromDomain(err)
		WriteJSON(w, apperrors.HTTPStatus(appErr.Code), map[string]any{
			"error":   "pass_failed",
			"message": err.Error(),
			"result":  res,
		})
		return
	}

	WriteJSON(w, http.StatusOK, res)
}

// CreateJob handles POST /api/v1/sources/{id}/jobs.
func (h *HarvestHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := sourceIDParam(w, r)
	if !ok {
		return
	}

	job, err := h.Jobs.CreateJob(r.Context(), sourceID)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// ReindexSource handles POST /api/v1/sources/{id}/reindex.
func (h *HarvestHandlers) ReindexSource(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := sourceIDParam(w, r)
	if !ok {
		return
	}

	if err := h.Reindex.ReindexSource(r.Context(), sourceID, false); err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"source_id": sourceID, "status": "reindexed"})
}

// ReindexAll handles POST /api/v1/sources/reindex.
func (h *HarvestHandlers) ReindexAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.Reindex.ReindexAllSources(r.Context())
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, res)
}

// ClearSource handles POST /api/v1/sources/{id}/clear.
func (h *HarvestHandlers) ClearSource(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := sourceIDParam(w, r)
	if !ok {
		return
	}

	res, err := h.Admin.ClearSource(r.Context(), sourceID)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"source_id": sourceID, "steps": res.Steps})
}

// ClearSourceIndex handles POST /api/v1/sources/{id}/index/clear.
func (h *HarvestHandlers) ClearSourceIndex(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := sourceIDParam(w, r)
	if !ok {
		return
	}

	if err := h.Admin.ClearSourceIndex(r.Context(), sourceID); err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"source_id": sourceID, "status": "cleared"})
}

type importObjectsRequest struct {
	SourceID  string `json:"source_id"`
	ObjectID  string `json:"object_id"`
	PackageID string `json:"package_id"`
	Segments  string `json:"segments"`
	Force     bool   `json:"force"`
}

// ImportObjects handles POST /api/v1/objects/import.
func (h *HarvestHandlers) ImportObjects(w http.ResponseWriter, r *http.Request) {
	var body importObjectsRequest
	if !DecodeJSON(w, r, &body) {
		return
	}

	req := service.ImportRequest{
		ObjectImportFilter: model.ObjectImportFilter{
			SourceID:  strings.TrimSpace(body.SourceID),
			ObjectID:  strings.TrimSpace(body.ObjectID),
			PackageID: strings.TrimSpace(body.PackageID),
			Segments:  strings.TrimSpace(body.Segments),
		},
		Force: body.Force,
	}
	if req.Empty() {
		WriteServiceError(w, r, h.Logger,
			apperrors.Validation("one of source_id, object_id or package_id is required"))
		return
	}

	res, err := h.Admin.ImportObjects(r.Context(), req)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, res)
}

func sourceIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("source id is required"),
		})
		return "", false
	}
	return id, true
}
