package documents

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docreview/review-portal/review-portal-backend/internal/auth"
)

type apiClient struct {
	t        *testing.T
	router   *gin.Engine
	verifier *auth.Verifier
}

func newAPIClient(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t)
	verifier := auth.NewVerifier("test-secret", "review-portal")
	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.Use(verifier.Middleware())
	NewHandler(f.service, nil, zap.NewNop()).RegisterRoutes(v1)

	return &apiClient{t: t, router: router, verifier: verifier}
}

func (c *apiClient) do(actor *auth.Actor, method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := c.verifier.Sign(*actor)
		require.NoError(c.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHandlerRequiresBearerToken(t *testing.T) {
	c := newAPIClient(t)

	status, body := c.do(nil, http.MethodPost, "/api/v1/documents", gin.H{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "PERMISSION_DENIED", errorCode(body))
}

func TestHandlerReviewRoundTrip(t *testing.T) {
	c := newAPIClient(t)

	status, body := c.do(&author, http.MethodPost, "/api/v1/documents", gin.H{"title": "Guide", "content": "AAA BBB CCC"})
	require.Equal(t, http.StatusCreated, status)
	docID := body["id"].(string)
	base := "/api/v1/documents/" + docID

	status, body = c.do(&reviewer, http.MethodPost, base+"/feedback", gin.H{
		"page": 1, "paragraph": 1, "line": 1,
		"original_text": "BBB", "suggested_text": "XYZ", "severity": "critical",
	})
	require.Equal(t, http.StatusCreated, status)
	feedbackID := body["id"].(string)
	assert.Equal(t, "CRITICAL", body["severity"])

	status, body = c.do(&reviewer, http.MethodPost, base+"/feedback", gin.H{"page": 0, "original_text": ""})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(body))

	status, body = c.do(&author, http.MethodPost, base+"/feedback/"+feedbackID+"/merge", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "AAA XYZ CCC", body["merged_content"])

	status, body = c.do(&author, http.MethodPost, base+"/feedback/"+feedbackID+"/merge", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_APPLIED", errorCode(body))

	status, body = c.do(&author, http.MethodGet, base+"/verify", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["consistent"])

	status, _ = c.do(&author, http.MethodGet, "/api/v1/documents/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHandlerWorkflowErrors(t *testing.T) {
	c := newAPIClient(t)

	_, body := c.do(&author, http.MethodPost, "/api/v1/documents", gin.H{"title": "Guide", "content": "text"})
	base := "/api/v1/documents/" + body["id"].(string)

	status, body := c.do(&author, http.MethodPost, base+"/workflow/advance", gin.H{
		"from_stage": "DRAFT_CREATION", "to_stage": "PUBLISHED",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(body))
	metadata := body["error"].(map[string]any)["metadata"].(map[string]any)
	assert.Equal(t, "INTERNAL_COORDINATION", metadata["allowed"])

	status, body = c.do(&reviewer, http.MethodPost, base+"/workflow/advance", gin.H{
		"from_stage": "DRAFT_CREATION", "to_stage": "INTERNAL_COORDINATION",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PERMISSION_DENIED", errorCode(body))

	status, body = c.do(&author, http.MethodPost, base+"/workflow/advance", gin.H{
		"from_stage": "DRAFT_CREATION", "to_stage": "INTERNAL_COORDINATION",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "INTERNAL_COORDINATION", body["new_stage"])

	status, body = c.do(&author, http.MethodGet, base+"/workflow", nil)
	require.Equal(t, http.StatusOK, status)
	stage := body["stage"].(map[string]any)
	assert.Equal(t, "INTERNAL_COORDINATION", stage["id"])
	assert.Empty(t, body["forward"], "entering OPR_REVISIONS needs the coordinator role")
	assert.Empty(t, body["backward"])
}

func TestHandlerBatchReportsPartialResult(t *testing.T) {
	c := newAPIClient(t)

	_, body := c.do(&author, http.MethodPost, "/api/v1/documents", gin.H{"title": "Guide", "content": "AAA BBB"})
	base := "/api/v1/documents/" + body["id"].(string)

	_, first := c.do(&reviewer, http.MethodPost, base+"/feedback", gin.H{
		"page": 1, "paragraph": 1, "line": 1, "original_text": "AAA", "suggested_text": "aaa", "severity": "A",
	})
	_, second := c.do(&reviewer, http.MethodPost, base+"/feedback", gin.H{
		"page": 1, "paragraph": 1, "line": 2, "original_text": "ZZZ", "suggested_text": "zzz", "severity": "A",
	})

	status, body := c.do(&author, http.MethodPost, base+"/feedback/batch", gin.H{
		"feedback_ids": []string{first["id"].(string), second["id"].(string)},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "TEXT_NOT_FOUND", errorCode(body))
	result := body["result"].(map[string]any)
	assert.Equal(t, second["id"], result["failed_id"])
	assert.Equal(t, "aaa BBB", result["merged_content"])
}

func TestHandlerExport(t *testing.T) {
	c := newAPIClient(t)

	_, body := c.do(&author, http.MethodPost, "/api/v1/documents", gin.H{"title": "Guide", "content": "AAA BBB"})
	base := "/api/v1/documents/" + body["id"].(string)
	c.do(&reviewer, http.MethodPost, base+"/feedback", gin.H{
		"page": 1, "paragraph": 1, "line": 1, "original_text": "AAA", "suggested_text": "aaa", "severity": "A",
	})

	req := httptest.NewRequest(http.MethodGet, base+"/export?format=csv", nil)
	token, err := c.verifier.Sign(author)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	assert.Contains(t, w.Body.String(), "feedback_submitted")

	status, body := c.do(&author, http.MethodGet, base+"/export?format=docx", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(body))
}
