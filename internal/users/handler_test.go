package users

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"supercv-backend/internal/shared/server/middleware"
)

func newTestRouter(t *testing.T, syncSecret string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, tokens := newTestService(t)
	r := gin.New()
	r.Use(middleware.Auth(tokens))
	NewHandler(svc, syncSecret).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRegisterLoginAndMe(t *testing.T) {
	r := newTestRouter(t, "")

	resp := doJSON(r, http.MethodPost, "/api/v1/auth/register", `{"email":"ada@example.com","password":"analytical","name":"Ada"}`, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(r, http.MethodPost, "/api/v1/auth/login", `{"email":"ada@example.com","password":"analytical"}`, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Token   string         `json:"token"`
		Account map[string]any `json:"account"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Token == "" {
		t.Fatalf("expected token")
	}

	resp = doJSON(r, http.MethodGet, "/api/v1/me", "", map[string]string{"Authorization": "Bearer " + body.Token})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"creditBalance":1`) {
		t.Fatalf("expected signup balance, got %s", resp.Body.String())
	}
	if strings.Contains(resp.Body.String(), "analytical") || strings.Contains(resp.Body.String(), "$2a$") {
		t.Fatalf("password material leaked: %s", resp.Body.String())
	}
}

func TestRegisterDuplicateIsConflict(t *testing.T) {
	r := newTestRouter(t, "")
	doJSON(r, http.MethodPost, "/api/v1/auth/register", `{"email":"dup@example.com","password":"12345678"}`, nil)
	resp := doJSON(r, http.MethodPost, "/api/v1/auth/register", `{"email":"dup@example.com","password":"12345678"}`, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestLoginWrongPasswordIsUnauthorized(t *testing.T) {
	r := newTestRouter(t, "")
	doJSON(r, http.MethodPost, "/api/v1/auth/register", `{"email":"b@example.com","password":"12345678"}`, nil)
	resp := doJSON(r, http.MethodPost, "/api/v1/auth/login", `{"email":"b@example.com","password":"87654321"}`, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestSyncRequiresSecretWhenConfigured(t *testing.T) {
	r := newTestRouter(t, "s3cret")
	body := `{"email":"sync@example.com","name":"Sync"}`

	resp := doJSON(r, http.MethodPost, "/api/v1/auth/sync", body, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	resp = doJSON(r, http.MethodPost, "/api/v1/auth/sync", body, map[string]string{syncSecretHeader: "s3cret"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	resp = doJSON(r, http.MethodPost, "/api/v1/auth/sync", body, map[string]string{syncSecretHeader: "s3cret"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat sync, got %d", resp.Code)
	}
}

func TestMeRequiresAccount(t *testing.T) {
	r := newTestRouter(t, "")
	resp := doJSON(r, http.MethodGet, "/api/v1/me", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}
