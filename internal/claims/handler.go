package claims

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"supercv-backend/internal/shared/server/middleware"
	"supercv-backend/internal/shared/server/respond"
)

// Handler exposes the claim endpoint.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches claim routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses/:id/claim", middleware.RequireAccount(), h.claim)
}

type claimRequest struct {
	ClaimToken string `json:"claimToken"`
}

func (h *Handler) claim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ClaimToken) == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "claimToken is required", []map[string]string{
			{"field": "claimToken", "issue": "required"},
		})
		return
	}

	id := c.Param("id")
	c.Set("analysisId", id)
	acct, err := h.Svc.Claim(c.Request.Context(), id, req.ClaimToken, middleware.AccountIDFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		case errors.Is(err, ErrAlreadyClaimed), errors.Is(err, ErrInvalidToken):
			respond.Error(c, http.StatusConflict, "cannot_claim", "This analysis cannot be claimed.", nil)
		case errors.Is(err, ErrAccountNotFound):
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "account not found", nil)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to claim analysis", nil)
		}
		return
	}
	respond.OK(c, gin.H{
		"analysisId":            id,
		"accountId":             acct.ID,
		"creditBalance":         acct.CreditBalance,
		"lastCreditRefreshDate": acct.LastCreditRefreshDate.Format("2006-01-02"),
	})
}
