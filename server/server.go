// Package server exposes runs, stored posts and preference profiles over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/postforge/postforge/domain"
	"github.com/postforge/postforge/pipeline"
	"github.com/postforge/postforge/preferences"
	"github.com/postforge/postforge/store"
)

// Runner executes one run.
type Runner interface {
	Run(ctx context.Context, rawInput, userID string) (pipeline.Result, error)
}

// Posts reads stored runs.
type Posts interface {
	Get(ctx context.Context, id string) (domain.StoredPost, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.StoredPost, error)
}

// Images reads stored image bytes. URL may return a direct link such as a
// presigned S3 URL.
type Images interface {
	Get(ctx context.Context, key string) ([]byte, error)
	URL(ctx context.Context, key string) (string, error)
}

const (
	defaultRunTimeout = 5 * time.Minute
	defaultListLimit  = 20
	maxListLimit      = 100
	maxBodyBytes      = 1 << 20
)

var errNoFinal = errors.New("post has no final version")

type Server struct {
	runner     Runner
	posts      Posts
	images     Images
	prefs      preferences.Store
	runTimeout time.Duration
	log        *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

func WithRunTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDefaultPreferences makes GET /api/users/{userID}/preferences answer
// with the default profile for users that have none stored, matching what
// a run would use for them.
func WithDefaultPreferences() Option {
	return func(s *Server) {
		if _, ok := s.prefs.(preferences.Fallback); !ok {
			s.prefs = preferences.Fallback{Store: s.prefs}
		}
	}
}

func New(runner Runner, posts Posts, images Images, prefs preferences.Store, opts ...Option) (*Server, error) {
	if runner == nil {
		return nil, errors.New("runner required")
	}
	if posts == nil || images == nil || prefs == nil {
		return nil, errors.New("posts, images and preferences stores required")
	}
	s := &Server{
		runner:     runner,
		posts:      posts,
		images:     images,
		prefs:      prefs,
		runTimeout: defaultRunTimeout,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/runs", s.handleRun)
		r.Route("/posts/{id}", func(r chi.Router) {
			r.Get("/", s.handlePost)
			r.Get("/preview", s.handlePreview)
			r.Get("/image", s.handleImage)
		})
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/posts", s.handleUserPosts)
			r.Get("/preferences", s.handleGetPreferences)
			r.Put("/preferences", s.handlePutPreferences)
		})
	})
	return r
}

// --- Handlers ---

type runReq struct {
	Input  string `json:"input"`
	UserID string `json:"user_id"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("user_id is required"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()

	res, err := s.runner.Run(ctx, req.Input, req.UserID)
	if err != nil {
		s.log.Warn("run failed", "run_id", res.RunID, "error_kind", res.ErrorKind, "error", err)
		writeJSON(w, statusForKind(pipeline.KindOf(err)), res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPost(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadPost(w, r)
	if !ok {
		return
	}
	if p.ImageRef == "" {
		writeError(w, http.StatusNotFound, errors.New("post has no image"))
		return
	}
	data, err := s.images.Get(r.Context(), p.ImageRef)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	ct := "image/png"
	if p.Image != nil && p.Image.MIMEType != "" {
		ct = p.Image.MIMEType
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	_, _ = w.Write(data)
}

func (s *Server) handleUserPosts(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}
	posts, err := s.posts.ListByUser(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if posts == nil {
		posts = []domain.StoredPost{}
	}
	writeJSON(w, http.StatusOK, posts)
}

// handleGetPreferences answers 404 for users without a stored profile unless
// the server was built WithDefaultPreferences.
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.prefs.Load(r.Context(), chi.URLParam(r, "userID"))
	switch {
	case errors.Is(err, preferences.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidPreferences):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	// Unset fields keep their defaults.
	p := domain.DefaultPreferences(userID)
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p.UserID = userID
	if err := s.prefs.Save(r.Context(), p); err != nil {
		if errors.Is(err, domain.ErrInvalidPreferences) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Helpers ---

func (s *Server) loadPost(w http.ResponseWriter, r *http.Request) (domain.StoredPost, bool) {
	p, err := s.posts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return domain.StoredPost{}, false
	}
	return p, true
}

func statusForKind(k pipeline.ErrorKind) int {
	switch k {
	case pipeline.KindEmptyInput:
		return http.StatusBadRequest
	case pipeline.KindExtraction, pipeline.KindPreferences:
		return http.StatusUnprocessableEntity
	case pipeline.KindCanceled:
		return http.StatusServiceUnavailable
	case pipeline.KindPersistence:
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
