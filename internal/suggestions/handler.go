// Package suggestions exposes the merge engine over HTTP. Merging is stateless;
// persisting the returned draft is the caller's job.
package suggestions

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"supercv-backend/internal/analyses"
	"supercv-backend/internal/shared/server/middleware"
	"supercv-backend/internal/shared/server/respond"
	"supercv-backend/internal/shared/telemetry"
	"supercv-backend/resume/merge"
	"supercv-backend/resume/model"
)

// RecordReader loads analysis records so a stored AI draft can serve as the patch.
type RecordReader interface {
	Get(ctx context.Context, id string) (analyses.Record, error)
}

// Handler serves merge requests.
type Handler struct {
	Records RecordReader
}

// NewHandler constructs a Handler. records may be nil, in which case every
// request must carry its own patch.
func NewHandler(records RecordReader) *Handler {
	return &Handler{Records: records}
}

// RegisterRoutes attaches merge routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/merge", h.merge)
}

type mergeRequest struct {
	Document   model.Document  `json:"document"`
	Patch      *model.Document `json:"patch"`
	AnalysisID string          `json:"analysisId"`
	Field      string          `json:"field"`
	Index      *int            `json:"index"`
}

type mergeResponse struct {
	Document  model.Document `json:"document"`
	Changed   bool           `json:"changed"`
	Selector  string         `json:"selector"`
	NewSkills []string       `json:"newSkills,omitempty"`
}

func (h *Handler) merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	sel, err := merge.ParseSelector(req.Field, req.Index)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), []map[string]string{
			{"field": "field", "issue": "invalid"},
		})
		return
	}

	patch, ok := h.resolvePatch(c, req)
	if !ok {
		return
	}

	merged := merge.Merge(req.Document, patch, sel)
	changed := merge.HasSuggestion(req.Document, patch, sel)
	if changed {
		if err := merged.Validate(); err != nil {
			respond.Error(c, http.StatusUnprocessableEntity, "invalid_document", err.Error(), nil)
			return
		}
	}

	resp := mergeResponse{Document: merged, Changed: changed, Selector: sel.String()}
	switch sel.Field() {
	case merge.FieldHardSkills:
		resp.NewSkills = merge.NewSkills(req.Document.HardSkills, patch.HardSkills)
	case merge.FieldSoftSkills:
		resp.NewSkills = merge.NewSkills(req.Document.SoftSkills, patch.SoftSkills)
	}
	telemetry.Info("suggestion.merged", map[string]any{
		"request_id": middleware.RequestIDFromContext(c),
		"selector":   sel.String(),
		"changed":    changed,
	})
	respond.OK(c, resp)
}

// resolvePatch returns the inline patch, or the AI draft of the referenced
// analysis when no inline patch was sent.
func (h *Handler) resolvePatch(c *gin.Context, req mergeRequest) (model.Document, bool) {
	if req.Patch != nil {
		return *req.Patch, true
	}
	if req.AnalysisID == "" || h.Records == nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "patch or analysisId is required", nil)
		return model.Document{}, false
	}
	rec, err := h.Records.Get(c.Request.Context(), req.AnalysisID)
	if err != nil {
		if errors.Is(err, analyses.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
			return model.Document{}, false
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load analysis", nil)
		return model.Document{}, false
	}
	if !rec.Anonymous() && !rec.OwnedBy(middleware.AccountIDFromContext(c)) {
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		return model.Document{}, false
	}
	if rec.Status != analyses.StatusCompleted || rec.Result == nil || rec.Result.AIDraft == nil {
		respond.Error(c, http.StatusConflict, "not_ready", "No AI draft is available for this analysis yet.", nil)
		return model.Document{}, false
	}
	return *rec.Result.AIDraft, true
}
