package analyses

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"supercv-backend/internal/credits"
	"supercv-backend/internal/shared/server/middleware"
	"supercv-backend/internal/shared/server/respond"
	"supercv-backend/internal/shared/storage/object"
	"supercv-backend/internal/shared/telemetry"
)

const maxJobContextChars = 20000

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc     *Service
	Store   object.ObjectStore
	Limiter PollLimiter
}

// NewHandler constructs a Handler. A nil limiter disables poll throttling.
func NewHandler(svc *Service, store object.ObjectStore, limiter PollLimiter) *Handler {
	return &Handler{Svc: svc, Store: store, Limiter: limiter}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.submit)
	rg.GET("/analyses", middleware.RequireAccount(), h.list)
	rg.GET("/analyses/:id", h.get)
	rg.POST("/analyses/:id/customize", h.customize)
}

func (h *Handler) submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+(1<<20))
	header, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	file, err := header.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file could not be read", nil)
		return
	}
	defer file.Close()

	if _, err := validateUpload(header, file); err != nil {
		if errors.Is(err, errUploadRejected) {
			respond.Error(c, http.StatusBadRequest, "invalid_file", err.Error(), nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "invalid_file", "file could not be inspected", nil)
		return
	}

	jobText := c.PostForm("jobDescriptionText")
	if len(jobText) > maxJobContextChars {
		respond.Error(c, http.StatusBadRequest, "validation_error", "jobDescriptionText is too long", nil)
		return
	}
	jobURL, err := normalizeJobURL(c.PostForm("jobDescriptionUrl"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	accountID := middleware.AccountIDFromContext(c)
	ownerKey := accountID
	if ownerKey == "" {
		ownerKey = "anonymous"
	}
	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	storageKey, _, _, err := h.Store.Save(ctx, ownerKey, header.Filename, file)
	if err != nil {
		telemetry.Error("analysis.upload_failed", map[string]any{"error": err, "request_id": middleware.RequestIDFromContext(c)})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store file", nil)
		return
	}

	in := SubmitInput{InputRef: storageKey, JobContext: JobContext{Text: jobText, URL: jobURL}}
	if accountID != "" {
		in.OwnerID = &accountID
	}
	rec, err := h.Svc.Submit(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, credits.ErrInsufficientCredit):
			respond.Error(c, http.StatusPaymentRequired, "insufficient_credit", "No credits left today. Buy credits or come back tomorrow.", nil)
		case errors.Is(err, credits.ErrNotFound):
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "account not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			writeError(c, err, "failed to submit analysis")
		}
		return
	}

	c.Set("analysisId", rec.ID)
	resp := gin.H{
		"analysisId": rec.ID,
		"status":     rec.Status,
	}
	if rec.ClaimToken != "" {
		resp["claimToken"] = rec.ClaimToken
	}
	if rec.FailureReason != "" {
		resp["failureReason"] = rec.FailureReason
	}
	respond.JSON(c, http.StatusAccepted, resp)
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	accountID := middleware.AccountIDFromContext(c)
	c.Set("analysisId", id)

	if h.Limiter != nil {
		principal := accountID
		if principal == "" {
			principal = "ip:" + c.ClientIP()
		}
		ok, wait, err := h.Limiter.Allow(c.Request.Context(), principal+"|"+id)
		if err != nil {
			telemetry.Warn("analysis.poll_limiter_error", map[string]any{"error": err})
		}
		if !ok {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			respond.Error(c, http.StatusTooManyRequests, "rate_limited", "polling too fast", gin.H{"retryAfterMs": wait.Milliseconds()})
			return
		}
	}

	rec, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to fetch analysis")
		return
	}
	if !visibleTo(rec, accountID) {
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		return
	}
	respond.OK(c, statusView(rec))
}

func (h *Handler) list(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	recs, err := h.Svc.List(c.Request.Context(), middleware.AccountIDFromContext(c), limit, offset)
	if err != nil {
		writeError(c, err, "failed to list analyses")
		return
	}
	items := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		item := gin.H{
			"analysisId": rec.ID,
			"status":     rec.Status,
			"createdAt":  rec.CreatedAt,
		}
		if rec.Status == StatusCompleted && rec.Result != nil && rec.Result.Scores != nil {
			item["scores"] = rec.Result.Scores
		}
		items = append(items, item)
	}
	respond.OK(c, gin.H{"items": items, "limit": limit, "offset": offset})
}

type customizeRequest struct {
	Mode string `json:"mode"`
}

func (h *Handler) customize(c *gin.Context) {
	id := c.Param("id")
	c.Set("analysisId", id)
	var req customizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	mode, err := ParseMode(req.Mode)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	rec, err := h.Svc.Get(ctx, id)
	if err != nil {
		writeError(c, err, "failed to fetch analysis")
		return
	}
	if !visibleTo(rec, middleware.AccountIDFromContext(c)) {
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		return
	}

	ack, err := h.Svc.Customize(ctx, id, mode)
	if err != nil {
		writeError(c, err, "failed to request customization")
		return
	}
	respond.JSON(c, http.StatusAccepted, ack)
}

// writeError maps service errors onto HTTP responses.
func writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, ErrInvalidState):
		respond.Error(c, http.StatusConflict, "not_ready", "Analysis is not ready yet.", gin.H{"reason": err.Error()})
	case errors.Is(err, ErrQueueUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, "queue_unavailable", "job queue unavailable, try again later", nil)
	case errors.Is(err, ErrInvalidTransition):
		telemetry.Error("analysis.invalid_transition", map[string]any{"error": err, "path": c.FullPath()})
		respond.Error(c, http.StatusInternalServerError, "internal_error", msg, nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", msg, nil)
	}
}

// visibleTo hides owned records from everyone but their owner. Anonymous
// records are addressed by their unguessable id alone.
func visibleTo(rec Record, accountID string) bool {
	return rec.Anonymous() || rec.OwnedBy(accountID)
}

func statusView(rec Record) gin.H {
	view := gin.H{
		"id":         rec.ID,
		"status":     rec.Status,
		"isClaimed":  !rec.Anonymous(),
		"jobContext": rec.JobContext,
		"createdAt":  rec.CreatedAt,
		"updatedAt":  rec.UpdatedAt,
	}
	switch rec.Status {
	case StatusCompleted:
		view["result"] = rec.Result
	case StatusFailed:
		view["failureReason"] = rec.FailureReason
	}
	if rec.Customization != nil {
		view["customization"] = rec.Customization
	}
	return view
}

func retryAfterSeconds(wait time.Duration) int {
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
