package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"supercv-backend/internal/shared/auth"
)

func newAuthRouter(m *auth.Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(m))
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"accountId": AccountIDFromContext(c)})
	})
	router.GET("/private", RequireAccount(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	router := newAuthRouter(auth.NewManager("", "test", time.Hour))
	router.OPTIONS("/api/v1/analyses", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/analyses", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestAuthTreatsMissingHeaderAsAnonymous(t *testing.T) {
	router := newAuthRouter(auth.NewManager("", "test", time.Hour))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/private", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous private call, got %d", resp.Code)
	}
}

func TestAuthAcceptsValidBearer(t *testing.T) {
	m := auth.NewManager("", "test", time.Hour)
	token, err := m.Sign(auth.Claims{Sub: "acct-7"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	router := newAuthRouter(m)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthRejectsGarbageBearer(t *testing.T) {
	router := newAuthRouter(auth.NewManager("", "test", time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}
