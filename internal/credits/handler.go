package credits

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"supercv-backend/internal/shared/server/middleware"
	"supercv-backend/internal/shared/server/respond"
)

// Handler exposes the caller's balance and ledger history.
type Handler struct {
	Ledger *Ledger
}

// NewHandler constructs a Handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{Ledger: ledger}
}

// RegisterRoutes attaches credit routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/credits", middleware.RequireAccount())
	g.GET("", h.getBalance)
	g.GET("/entries", h.listEntries)
}

func (h *Handler) getBalance(c *gin.Context) {
	acct, err := h.Ledger.Get(c.Request.Context(), middleware.AccountIDFromContext(c))
	if err != nil {
		writeError(c, err, "failed to fetch balance")
		return
	}
	respond.OK(c, gin.H{
		"creditBalance":         acct.CreditBalance,
		"lastCreditRefreshDate": acct.LastCreditRefreshDate.Format("2006-01-02"),
	})
}

func (h *Handler) listEntries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.Ledger.Entries(c.Request.Context(), middleware.AccountIDFromContext(c), limit)
	if err != nil {
		writeError(c, err, "failed to list entries")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	respond.OK(c, gin.H{"items": entries})
}

func writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "account not found", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", msg, nil)
	}
}
