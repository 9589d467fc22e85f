package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postforge/postforge/domain"
	"github.com/postforge/postforge/pipeline"
	"github.com/postforge/postforge/preferences"
	"github.com/postforge/postforge/store"
)

// fakeRunner persists a fixed post, or fails with err.
type fakeRunner struct {
	sink *store.MemorySink
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, raw, userID string) (pipeline.Result, error) {
	if f.err != nil {
		return pipeline.Result{RunID: "r1", Status: domain.StatusFailed, ErrorKind: pipeline.KindOf(f.err), Error: f.err.Error()}, f.err
	}
	d := domain.NewDraft("Shipping beats polishing.\n\nWhat do you think?", time.Now())
	rec, err := f.sink.Persist(ctx, domain.StoredPost{
		RunID:    "r1",
		UserID:   userID,
		Status:   domain.StatusAccepted,
		Versions: []domain.Draft{d},
		Image: &domain.ImageArtifact{
			Ref: "images/a.png", Data: []byte("\x89PNG"), MIMEType: "image/png",
			Width: domain.ImageWidth, Height: domain.ImageHeight, AltText: "alt <text>",
		},
	})
	if err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Result{RunID: "r1", UserID: userID, PostID: rec.ID, Status: rec.Status, FinalDraft: d, ImageRef: rec.ImageRef}, nil
}

func newTestServer(t *testing.T, runErr error, opts ...Option) (*httptest.Server, *store.MemorySink) {
	t.Helper()
	sink := store.NewMemorySink(nil)
	prefs, err := preferences.OpenFileStore(filepath.Join(t.TempDir(), "prefs.yaml"))
	require.NoError(t, err)
	s, err := New(&fakeRunner{sink: sink, err: runErr}, sink, sink.Images(), prefs, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return ts, sink
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestRunAndReadBack(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/runs", `{"input":"shipping","user_id":"u1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var res pipeline.Result
	require.NoError(t, json.Unmarshal(body, &res))
	require.NotEmpty(t, res.PostID)
	assert.Equal(t, domain.StatusAccepted, res.Status)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/posts/"+res.PostID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var post domain.StoredPost
	require.NoError(t, json.Unmarshal(body, &post))
	assert.Equal(t, "u1", post.UserID)
	assert.Equal(t, res.ImageRef, post.ImageRef)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/posts/"+res.PostID+"/image", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte("\x89PNG"), body)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/posts/"+res.PostID+"/preview", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	html := string(body)
	assert.Contains(t, html, "<p>Shipping beats polishing.</p>")
	assert.Contains(t, html, `alt="alt &lt;text&gt;"`)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/users/u1/posts?limit=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var posts []domain.StoredPost
	require.NoError(t, json.Unmarshal(body, &posts))
	assert.Len(t, posts, 1)
}

func TestRunValidation(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/runs", `{"input":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/runs", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunFailureStatus(t *testing.T) {
	tests := []struct {
		kind pipeline.ErrorKind
		code int
	}{
		{pipeline.KindEmptyInput, http.StatusBadRequest},
		{pipeline.KindExtraction, http.StatusUnprocessableEntity},
		{pipeline.KindGeneration, http.StatusBadGateway},
		{pipeline.KindPersistence, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			ts, _ := newTestServer(t, &pipeline.StageError{Kind: tt.kind, Err: io.EOF})
			resp, body := do(t, http.MethodPost, ts.URL+"/api/runs", `{"input":"x","user_id":"u1"}`)
			assert.Equal(t, tt.code, resp.StatusCode)
			var res pipeline.Result
			require.NoError(t, json.Unmarshal(body, &res))
			assert.Equal(t, domain.StatusFailed, res.Status)
			assert.Equal(t, tt.kind, res.ErrorKind)
		})
	}
}

func TestUnknownPost(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	for _, p := range []string{"", "/preview", "/image"} {
		resp, _ := do(t, http.MethodGet, ts.URL+"/api/posts/nope"+p, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, p)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/users/u9/preferences", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := do(t, http.MethodPut, ts.URL+"/api/users/u9/preferences",
		`{"tone":"conversational","post_length":{"min":300,"max":900},"hashtag_usage":"none"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, http.MethodGet, ts.URL+"/api/users/u9/preferences", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p domain.UserPreferences
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, domain.ToneConversational, p.Tone)
	assert.Equal(t, domain.StyleProfessional, p.WritingStyle)
	assert.Equal(t, 900, p.Length.Max)

	resp, _ = do(t, http.MethodPut, ts.URL+"/api/users/u9/preferences", `{"tone":"grumpy"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPreferencesDefaultsForUnknownUser(t *testing.T) {
	ts, _ := newTestServer(t, nil, WithDefaultPreferences())

	resp, body := do(t, http.MethodGet, ts.URL+"/api/users/u9/preferences", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var p domain.UserPreferences
	require.NoError(t, json.Unmarshal(body, &p))
	want := domain.DefaultPreferences("u9")
	assert.Equal(t, want.UserID, p.UserID)
	assert.Equal(t, want.Tone, p.Tone)
	assert.Equal(t, want.WritingStyle, p.WritingStyle)
	assert.Equal(t, want.Length, p.Length)

	// a stored profile still wins over the defaults
	resp, body = do(t, http.MethodPut, ts.URL+"/api/users/u9/preferences", `{"tone":"conversational"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	resp, body = do(t, http.MethodGet, ts.URL+"/api/users/u9/preferences", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, domain.ToneConversational, p.Tone)
}

func TestListLimitValidation(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, _ := do(t, http.MethodGet, ts.URL+"/api/users/u1/posts?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/users/u1/posts", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}
