package rewrite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"docreview/review-portal/review-portal-backend/internal/feedback"
	"docreview/review-portal/review-portal-backend/internal/merge"
)

func TestRewritePostsRequest(t *testing.T) {
	var got merge.RewriteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"the revised sentence"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "key"}, zap.NewNop())
	text, err := c.Rewrite(context.Background(), merge.RewriteRequest{
		DocumentID:    "doc-1",
		Location:      feedback.Location{Page: 1, Paragraph: 2, Line: 3},
		OriginalText:  "old",
		SuggestedText: "new",
		Context:       "the old sentence",
	})
	require.NoError(t, err)
	assert.Equal(t, "the revised sentence", text)
	assert.Equal(t, "the old sentence", got.Context)
	assert.Equal(t, 2, got.Location.Paragraph)
}

func TestRewriteFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "server error", status: http.StatusBadGateway, body: "upstream down", wantErr: "status 502"},
		{name: "bad json", status: http.StatusOK, body: "{", wantErr: "failed to parse response"},
		{name: "empty text", status: http.StatusOK, body: `{"text":"  "}`, wantErr: "empty text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{Endpoint: srv.URL}, zap.NewNop()).Rewrite(context.Background(), merge.RewriteRequest{})
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
