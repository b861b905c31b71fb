package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docreview/review-portal/review-portal-backend/pkg/workflows"
)

func TestVerifierRoundTrip(t *testing.T) {
	v := NewVerifier("secret", "review-portal")
	token, err := v.Sign(Actor{UserID: "u-1", Role: "coordinator"})
	require.NoError(t, err)

	actor, err := v.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", actor.UserID)
	assert.Equal(t, workflows.RoleCoordinator, actor.Role)
}

func TestVerifierRejectsForeignTokens(t *testing.T) {
	token, err := NewVerifier("other", "review-portal").Sign(Actor{UserID: "u-1", Role: "OPR"})
	require.NoError(t, err)
	_, err = NewVerifier("secret", "review-portal").Parse(token)
	assert.Error(t, err)

	token, err = NewVerifier("secret", "elsewhere").Sign(Actor{UserID: "u-1", Role: "OPR"})
	require.NoError(t, err)
	_, err = NewVerifier("secret", "review-portal").Parse(token)
	assert.Error(t, err)

	token, err = NewVerifier("secret", "review-portal").Sign(Actor{UserID: "u-1"})
	require.NoError(t, err)
	_, err = NewVerifier("secret", "review-portal").Parse(token)
	assert.Error(t, err, "role is required")
}

func TestMiddlewareAndMe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	def, err := workflows.Default()
	require.NoError(t, err)
	sm, err := workflows.NewStateMachine(def)
	require.NoError(t, err)

	v := NewVerifier("secret", "review-portal")
	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(v.Middleware())
	RegisterRoutes(api, NewHandler(sm, zap.NewNop()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := v.Sign(Actor{UserID: "coord-1", Role: workflows.RoleCoordinator})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "coord-1", body["user_id"])
	assert.Equal(t, true, body["can_reset"])
	assert.Equal(t, false, body["admin"])
	assert.ElementsMatch(t, []any{"OPR_REVISIONS", "OPR_FINAL"}, body["enterable"])
}
