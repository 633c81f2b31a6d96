package suggestions

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supercv-backend/internal/analyses"
	"supercv-backend/resume/model"
)

type stubRecords map[string]analyses.Record

func (s stubRecords) Get(ctx context.Context, id string) (analyses.Record, error) {
	rec, ok := s[id]
	if !ok {
		return analyses.Record{}, analyses.ErrNotFound
	}
	return rec, nil
}

func newMergeRouter(records RecordReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(records).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func postMerge(t *testing.T, r *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/merge", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestMergeSkillsReturnsUnionAndDelta(t *testing.T) {
	r := newMergeRouter(nil)
	resp := postMerge(t, r, map[string]any{
		"document": model.Document{FullName: "Ada", HardSkills: []string{"Go"}},
		"patch":    model.Document{HardSkills: []string{"Go", "SQL"}},
		"field":    "hard_skills",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body mergeResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.True(t, body.Changed)
	assert.ElementsMatch(t, []string{"Go", "SQL"}, body.Document.HardSkills)
	assert.Equal(t, []string{"SQL"}, body.NewSkills)
}

func TestMergeIdenticalScalarIsUnchanged(t *testing.T) {
	r := newMergeRouter(nil)
	resp := postMerge(t, r, map[string]any{
		"document": model.Document{FullName: "Ada", Summary: "Engineer"},
		"patch":    model.Document{Summary: "Engineer"},
		"field":    "summary",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	var body mergeResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.False(t, body.Changed)
}

func TestMergeSingleExperienceEntry(t *testing.T) {
	r := newMergeRouter(nil)
	resp := postMerge(t, r, map[string]any{
		"document": model.Document{FullName: "Ada", Experience: []model.Experience{{Title: "Dev"}, {Title: "Intern"}}},
		"patch":    model.Document{Experience: []model.Experience{{Title: "Senior Dev"}, {Title: "Lead Intern"}}},
		"field":    "experience",
		"index":    1,
	})
	require.Equal(t, http.StatusOK, resp.Code)

	var body mergeResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Document.Experience, 2)
	assert.Equal(t, "Dev", body.Document.Experience[0].Title)
	assert.Equal(t, "Lead Intern", body.Document.Experience[1].Title)
	assert.Equal(t, "experience[1]", body.Selector)
}

func TestMergeRejectsUnknownField(t *testing.T) {
	r := newMergeRouter(nil)
	resp := postMerge(t, r, map[string]any{
		"document": model.Document{FullName: "Ada"},
		"patch":    model.Document{},
		"field":    "hobbies",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMergeRejectsInvalidResult(t *testing.T) {
	r := newMergeRouter(nil)
	resp := postMerge(t, r, map[string]any{
		"document": model.Document{FullName: "Ada"},
		"patch":    model.Document{Contact: model.Contact{LinkedIn: "linkedin.com/in/ada"}},
		"field":    "contact",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestMergeUsesStoredDraft(t *testing.T) {
	draft := model.Document{Summary: "Backend engineer focused on Go"}
	records := stubRecords{
		"a-1": {ID: "a-1", Status: analyses.StatusCompleted, Result: &analyses.ResultPayload{AIDraft: &draft}},
		"a-2": {ID: "a-2", Status: analyses.StatusProcessing},
	}
	r := newMergeRouter(records)

	resp := postMerge(t, r, map[string]any{
		"document":   model.Document{FullName: "Ada", Summary: "Engineer"},
		"analysisId": "a-1",
		"field":      "summary",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var body mergeResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "Backend engineer focused on Go", body.Document.Summary)

	notReady := postMerge(t, r, map[string]any{
		"document":   model.Document{FullName: "Ada"},
		"analysisId": "a-2",
		"field":      "summary",
	})
	assert.Equal(t, http.StatusConflict, notReady.Code)

	missing := postMerge(t, r, map[string]any{
		"document":   model.Document{FullName: "Ada"},
		"analysisId": "nope",
		"field":      "summary",
	})
	assert.Equal(t, http.StatusNotFound, missing.Code)
}
