package payments

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"supercv-backend/internal/shared/server/respond"
	"supercv-backend/internal/shared/telemetry"
)

const (
	signatureHeader = "X-Webhook-Signature"
	maxWebhookBytes = 64 << 10
)

type Handler struct {
	Svc    *Service
	Secret []byte
}

// NewHandler builds the webhook handler. An empty secret rejects every
// delivery.
func NewHandler(svc *Service, secret string) *Handler {
	return &Handler{Svc: svc, Secret: []byte(secret)}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/webhook", h.webhook)
}

func (h *Handler) webhook(c *gin.Context) {
	if len(h.Secret) == 0 {
		respond.Error(c, http.StatusServiceUnavailable, "payments_not_configured", "payment webhook not configured", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes+1))
	if err != nil || len(body) > maxWebhookBytes {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "unreadable body", nil)
		return
	}
	if err := ValidateSignature(body, h.Secret, c.GetHeader(signatureHeader)); err != nil {
		telemetry.Warn("payments.signature_rejected", map[string]any{"error": err})
		respond.Error(c, http.StatusUnauthorized, "invalid_signature", err.Error(), nil)
		return
	}
	ev, err := Decode(body)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_event", "invalid event body", nil)
		return
	}
	res, err := h.Svc.Apply(c.Request.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidEvent):
			respond.Error(c, http.StatusBadRequest, "invalid_event", err.Error(), nil)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respond.Error(c, http.StatusRequestTimeout, "request_timeout", "request cancelled", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to apply payment", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, res)
}
