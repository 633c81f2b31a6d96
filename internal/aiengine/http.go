package aiengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"supercv-backend/internal/analyses"
	"supercv-backend/internal/shared/telemetry"
	"supercv-backend/resume/model"
)

const (
	defaultTimeout   = 120 * time.Second
	defaultRetryWait = 300 * time.Millisecond
	maxResponseBytes = 4 << 20
)

// HTTPClient calls the engine's /api/analyze and /api/customize endpoints with
// multipart form bodies.
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
	RetryWait  time.Duration
	now        func() time.Time
}

// NewHTTPClient builds a client for baseURL. A non-positive timeout uses two minutes.
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("AI_ENGINE_URL is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		RetryWait:  defaultRetryWait,
		now:        time.Now,
	}, nil
}

// Analyze implements Client.
func (c *HTTPClient) Analyze(ctx context.Context, in AnalyzeInput) (analyses.ResultPayload, error) {
	fields := map[string]string{
		"current_date": c.now().UTC().Format("2006-01-02"),
	}
	if t := strings.TrimSpace(in.JobText); t != "" {
		fields["job_description"] = t
	} else if u := strings.TrimSpace(in.JobURL); u != "" {
		fields["job_url"] = u
	}
	if in.CVText != "" {
		fields["cv_text"] = in.CVText
	}

	var resp analyzeResponse
	if err := c.postWithRetry(ctx, "/api/analyze", in.FileName, in.Content, fields, &resp); err != nil {
		return analyses.ResultPayload{}, err
	}
	if len(resp.Analysis) == 0 {
		return analyses.ResultPayload{}, fmt.Errorf("%w: empty analysis", ErrRejected)
	}
	return resp.payload(), nil
}

// Customize implements Client.
func (c *HTTPClient) Customize(ctx context.Context, in CustomizeInput) (model.Document, error) {
	fields := map[string]string{
		"mode":         string(in.Mode),
		"current_date": c.now().UTC().Format("2006-01-02"),
	}
	switch in.Mode {
	case analyses.ModeJobDesc:
		fields["job_description"] = in.JobText
	default:
		if in.AnalysisContext != "" {
			fields["analysis_context"] = in.AnalysisContext
		}
	}
	if in.CVText != "" {
		fields["cv_text"] = in.CVText
	}

	var resp cvWire
	if err := c.postWithRetry(ctx, "/api/customize", in.FileName, in.Content, fields, &resp); err != nil {
		return model.Document{}, err
	}
	return resp.document(), nil
}

// postWithRetry retries once after a short pause when the failure looks
// transient.
func (c *HTTPClient) postWithRetry(ctx context.Context, path, fileName string, content []byte, fields map[string]string, out any) error {
	err := c.post(ctx, path, fileName, content, fields, out)
	if err == nil || !shouldRetry(err) {
		return err
	}
	telemetry.Warn("aiengine.retry", map[string]any{"path": path, "attempt": 1, "error": err})
	t := time.NewTimer(c.RetryWait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.post(ctx, path, fileName, content, fields, out)
}

func (c *HTTPClient) post(ctx context.Context, path, fileName string, content []byte, fields map[string]string, out any) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName == "" {
		fileName = "resume.pdf"
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ai engine %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("ai engine %s: read: %w", path, err)
	}
	telemetry.Info("aiengine.response", map[string]any{
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Code: resp.StatusCode, Detail: errorDetail(raw)}
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
			return fmt.Errorf("%w: %v", ErrRejected, statusErr)
		}
		return statusErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("ai engine %s: decode: %w", path, err)
	}
	return nil
}

func errorDetail(raw []byte) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			return s
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func shouldRetry(err error) bool {
	if err == nil || errors.Is(err, ErrRejected) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "eof")
}

var _ Client = (*HTTPClient)(nil)
