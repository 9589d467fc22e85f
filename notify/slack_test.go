package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postforge/postforge/domain"
	"github.com/postforge/postforge/pipeline"
)

func TestNilNotifierSkips(t *testing.T) {
	n := NewSlackNotifier("", nil)
	assert.Nil(t, n)
	assert.NoError(t, n.Notify(context.Background(), pipeline.Result{RunID: "r"}))
}

func TestNotifyPostsWebhook(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, srv.Client())
	n.PreviewURL = "https://posts.example.com/%s"
	err := n.Notify(context.Background(), pipeline.Result{
		RunID:      "run-1",
		UserID:     "u1",
		PostID:     "p1",
		Status:     domain.StatusAccepted,
		Versions:   2,
		FinalDraft: domain.Draft{Version: 1, Text: "Hello LinkedIn"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Post ready", got["text"])
	blocks, ok := got["blocks"].([]any)
	require.True(t, ok)
	assert.Len(t, blocks, 3)
}

func TestNotifyPropagatesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewSlackNotifier(srv.URL, srv.Client()).Notify(context.Background(), pipeline.Result{Status: domain.StatusFailed})
	assert.Error(t, err)
}

func TestMessageFailedRun(t *testing.T) {
	msg := Message(pipeline.Result{
		RunID:     "run-2",
		Status:    domain.StatusFailed,
		ErrorKind: pipeline.KindExtraction,
		Error:     "resolve extraction: 404",
	}, "")
	assert.Equal(t, "Post run failed", msg.Text)
	require.Len(t, msg.Blocks.BlockSet, 2)
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("é", previewRunes+10)
	p := preview(long)
	assert.True(t, strings.HasSuffix(p, "…"))
	assert.Equal(t, previewRunes+1, len([]rune(p)))
	assert.Equal(t, "short", preview("short"))
}
