package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supercv-backend/internal/credits"
)

const testSecret = "whsec-test"

func newPaymentsFixture(t *testing.T) (*gin.Engine, *credits.Ledger, credits.Account) {
	t.Helper()
	ledger := credits.NewMemoryLedger(credits.NewFixedClock(time.Date(2026, time.July, 2, 10, 0, 0, 0, time.UTC)), time.UTC)
	acct, _, err := ledger.EnsureAccount(context.Background(), credits.IdentityAttributes{Email: "buyer@example.com"})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(NewService(ledger), testSecret).RegisterRoutes(r.Group("/api/v1"))
	return r, ledger, acct
}

func deliver(r *gin.Engine, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestWebhookGrantsOncePerPayment(t *testing.T) {
	r, ledger, acct := newPaymentsFixture(t)
	body := `{"event":"payment.success","id":"pay_1","data":{"accountId":"` + acct.ID + `","credits":5}}`
	sig := Sign([]byte(body), []byte(testSecret))

	resp := deliver(r, body, sig)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var res Result
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
	assert.Equal(t, OutcomeGranted, res.Outcome)
	assert.Equal(t, 5, res.CreditsAdded)

	resp = deliver(r, body, sig)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &res))
	assert.Equal(t, OutcomeDuplicate, res.Outcome)

	got, err := ledger.Get(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.CreditBalance)
}

func TestWebhookResolvesByEmail(t *testing.T) {
	r, ledger, acct := newPaymentsFixture(t)
	body := `{"event":"payment.success","id":"pay_2","data":{"email":"BUYER@example.com","credits":2}}`

	resp := deliver(r, body, Sign([]byte(body), []byte(testSecret)))
	require.Equal(t, http.StatusOK, resp.Code)

	got, err := ledger.Get(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CreditBalance)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	r, ledger, acct := newPaymentsFixture(t)
	body := `{"event":"payment.success","id":"pay_3","data":{"accountId":"` + acct.ID + `","credits":5}}`

	assert.Equal(t, http.StatusUnauthorized, deliver(r, body, "").Code)
	assert.Equal(t, http.StatusUnauthorized, deliver(r, body, Sign([]byte(body), []byte("other"))).Code)

	tampered := strings.Replace(body, `"credits":5`, `"credits":500`, 1)
	assert.Equal(t, http.StatusUnauthorized, deliver(r, tampered, Sign([]byte(body), []byte(testSecret))).Code)

	got, err := ledger.Get(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CreditBalance)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	r, _, _ := newPaymentsFixture(t)
	body := `{"event":"payment.expired","id":"pay_4"}`
	resp := deliver(r, body, Sign([]byte(body), []byte(testSecret)))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"ignored"`)
}

func TestWebhookUnknownAccountIsIgnored(t *testing.T) {
	r, _, _ := newPaymentsFixture(t)
	body := `{"event":"payment.success","id":"pay_5","data":{"accountId":"ghost","credits":1}}`
	resp := deliver(r, body, Sign([]byte(body), []byte(testSecret)))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"ignored"`)
}

func TestWebhookRejectsNonPositiveCredits(t *testing.T) {
	r, _, acct := newPaymentsFixture(t)
	body := `{"event":"payment.success","id":"pay_6","data":{"accountId":"` + acct.ID + `","credits":0}}`
	resp := deliver(r, body, Sign([]byte(body), []byte(testSecret)))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestWebhookUnconfiguredSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	ledger := credits.NewMemoryLedger(credits.SystemClock{}, time.UTC)
	NewHandler(NewService(ledger), "").RegisterRoutes(r.Group("/api/v1"))

	resp := deliver(r, `{}`, "abc")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestValidateSignatureAcceptsUppercaseHex(t *testing.T) {
	payload := []byte(`{"id":"x"}`)
	sig := strings.ToUpper(Sign(payload, []byte(testSecret)))
	assert.NoError(t, ValidateSignature(payload, []byte(testSecret), sig))
}
