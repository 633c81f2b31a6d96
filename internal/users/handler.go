package users

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"supercv-backend/internal/credits"
	"supercv-backend/internal/shared/server/middleware"
	"supercv-backend/internal/shared/server/respond"
)

const syncSecretHeader = "X-Sync-Secret"

type Handler struct {
	Svc *Service
	// SyncSecret guards /auth/sync. Empty disables the check.
	SyncSecret string
}

func NewHandler(svc *Service, syncSecret string) *Handler {
	return &Handler{Svc: svc, SyncSecret: syncSecret}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", middleware.RequireAccount(), h.me)
	rg.POST("/auth/sync", h.sync)
	rg.POST("/auth/register", h.register)
	rg.POST("/auth/login", h.login)
}

type syncRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) me(c *gin.Context) {
	acct, err := h.Svc.Me(c.Request.Context(), middleware.AccountIDFromContext(c))
	if err != nil {
		writeError(c, err, "failed to load account")
		return
	}
	respond.JSON(c, http.StatusOK, accountView(acct))
}

func (h *Handler) sync(c *gin.Context) {
	if h.SyncSecret != "" {
		got := c.GetHeader(syncSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.SyncSecret)) != 1 {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid sync secret", nil)
			return
		}
	}
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}
	sess, err := h.Svc.SyncIdentity(c.Request.Context(), Identity{Email: req.Email, Name: req.Name, AvatarRef: req.Picture})
	if err != nil {
		writeError(c, err, "failed to sync identity")
		return
	}
	status := http.StatusOK
	if sess.Created {
		status = http.StatusCreated
	}
	respond.JSON(c, status, sessionView(sess))
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}
	sess, err := h.Svc.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(c, err, "failed to register")
		return
	}
	respond.JSON(c, http.StatusCreated, sessionView(sess))
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return
	}
	sess, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err, "failed to log in")
		return
	}
	respond.JSON(c, http.StatusOK, sessionView(sess))
}

func writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "invalid_request", strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": "), nil)
	case errors.Is(err, ErrEmailTaken):
		respond.Error(c, http.StatusConflict, "email_taken", "email already registered", nil)
	case errors.Is(err, ErrInvalidCredentials):
		respond.Error(c, http.StatusUnauthorized, "invalid_credentials", "invalid email or password", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "account not found", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "request_timeout", "request cancelled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", msg, nil)
	}
}

func accountView(acct credits.Account) gin.H {
	return gin.H{
		"id":                    acct.ID,
		"email":                 acct.Email,
		"name":                  acct.Name,
		"avatarRef":             acct.AvatarRef,
		"creditBalance":         acct.CreditBalance,
		"lastCreditRefreshDate": acct.LastCreditRefreshDate.Format("2006-01-02"),
	}
}

func sessionView(sess Session) gin.H {
	return gin.H{
		"account": accountView(sess.Account),
		"token":   sess.Token,
	}
}
