package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/postforge/postforge/domain"
)

const uniqueViolation = "23505"

// OpenPostgres opens and pings a pgx-backed database handle.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// PostgresSink writes every run in a single transaction across the posts,
// versions, reviews, images and sources tables.
type PostgresSink struct {
	db     *sql.DB
	images ImageStore
	locks  keyedMutex
	now    func() time.Time

	// schemaMu guards schemaDone; a failed bootstrap is retried on the next call.
	schemaMu   sync.Mutex
	schemaDone bool
}

func NewPostgresSink(db *sql.DB, images ImageStore) *PostgresSink {
	return &PostgresSink{db: db, images: images, now: time.Now}
}

// Images exposes the blob store records point into.
func (s *PostgresSink) Images() ImageStore { return s.images }

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaDone {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS posts (
  id TEXT PRIMARY KEY,
  run_id TEXT NOT NULL,
  user_id TEXT NOT NULL REFERENCES users(id),
  status TEXT NOT NULL,
  final_version INTEGER NOT NULL,
  image_ref TEXT NOT NULL DEFAULT '',
  image_error TEXT NOT NULL DEFAULT '',
  preferences JSONB NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_user_id ON posts (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS post_versions (
  post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
  version_number INTEGER NOT NULL,
  content TEXT NOT NULL,
  char_count INTEGER NOT NULL,
  word_count INTEGER NOT NULL,
  feedback JSONB,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL,
  PRIMARY KEY (post_id, version_number)
);

CREATE TABLE IF NOT EXISTS post_reviews (
  post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
  iteration INTEGER NOT NULL,
  version_number INTEGER NOT NULL,
  verdict JSONB NOT NULL,
  reviewed_at TIMESTAMP WITH TIME ZONE NOT NULL,
  PRIMARY KEY (post_id, iteration)
);

CREATE TABLE IF NOT EXISTS post_images (
  post_id TEXT PRIMARY KEY REFERENCES posts(id) ON DELETE CASCADE,
  ref TEXT NOT NULL,
  mime_type TEXT NOT NULL,
  width INTEGER NOT NULL,
  height INTEGER NOT NULL,
  draft_version INTEGER NOT NULL,
  prompt TEXT NOT NULL DEFAULT '',
  alt_text TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE TABLE IF NOT EXISTS post_sources (
  post_id TEXT PRIMARY KEY REFERENCES posts(id) ON DELETE CASCADE,
  kind TEXT NOT NULL,
  origin TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  content TEXT NOT NULL,
  length INTEGER NOT NULL,
  extracted BOOLEAN NOT NULL,
  extracted_at TIMESTAMP WITH TIME ZONE
);
`); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	s.schemaDone = true
	return nil
}

func (s *PostgresSink) Persist(ctx context.Context, rec domain.StoredPost) (domain.StoredPost, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return domain.StoredPost{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	unlock := s.locks.Lock(rec.ID)
	defer unlock()

	now := s.now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	rec.ImageRef = ""

	var uploaded string
	if rec.Image != nil {
		if s.images == nil {
			return domain.StoredPost{}, errors.New("image store is not configured")
		}
		key := imageKey(rec.ID, rec.Image.Ref)
		if err := s.images.Put(ctx, key, rec.Image.Data, rec.Image.MIMEType); err != nil {
			return domain.StoredPost{}, fmt.Errorf("store image: %w", err)
		}
		uploaded = key
		img := *rec.Image
		img.Ref = key
		rec.Image = &img
		rec.ImageRef = key
	}

	if err := s.writeTx(ctx, rec); err != nil {
		if uploaded != "" {
			// The context may already be done; the cleanup gets its own.
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			_ = s.images.Delete(cctx, uploaded)
			cancel()
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.StoredPost{}, fmt.Errorf("%w: %s", ErrConflict, rec.ID)
		}
		return domain.StoredPost{}, err
	}
	return clonePost(rec), nil
}

func (s *PostgresSink) writeTx(ctx context.Context, rec domain.StoredPost) error {
	prefs, err := json.Marshal(rec.Preferences)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, rec.UserID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO posts (id, run_id, user_id, status, final_version, image_ref, image_error, preferences, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9,$10)`,
		rec.ID, rec.RunID, rec.UserID, string(rec.Status), rec.FinalVersion, rec.ImageRef, rec.ImageError,
		string(prefs), rec.CreatedAt, rec.UpdatedAt); err != nil {
		return err
	}

	for _, d := range rec.Versions {
		var feedback any
		if d.Feedback != nil {
			b, err := json.Marshal(d.Feedback)
			if err != nil {
				return err
			}
			feedback = string(b)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO post_versions (post_id, version_number, content, char_count, word_count, feedback, created_at)
VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7)`,
			rec.ID, d.Version, d.Text, d.Chars, d.Words, feedback, d.CreatedAt); err != nil {
			return err
		}
	}

	for _, r := range rec.Reviews {
		verdict, err := json.Marshal(r.Verdict)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO post_reviews (post_id, iteration, version_number, verdict, reviewed_at)
VALUES ($1,$2,$3,$4::jsonb,$5)`,
			rec.ID, r.Iteration, r.Version, string(verdict), r.ReviewedAt); err != nil {
			return err
		}
	}

	if img := rec.Image; img != nil {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO post_images (post_id, ref, mime_type, width, height, draft_version, prompt, alt_text, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			rec.ID, img.Ref, img.MIMEType, img.Width, img.Height, img.DraftVersion, img.Prompt, img.AltText, img.CreatedAt); err != nil {
			return err
		}
	}

	src := rec.Source
	var extractedAt any
	if !src.ExtractedAt.IsZero() {
		extractedAt = src.ExtractedAt
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO post_sources (post_id, kind, origin, title, content, length, extracted, extracted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, string(src.Kind), src.Origin, src.Title, src.Text, src.Length, src.Extracted, extractedAt); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PostgresSink) Get(ctx context.Context, id string) (domain.StoredPost, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return domain.StoredPost{}, err
	}
	var (
		p      domain.StoredPost
		status string
		prefs  string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, run_id, user_id, status, final_version, image_ref, image_error, preferences::text, created_at, updated_at
FROM posts WHERE id = $1`, id).Scan(
		&p.ID, &p.RunID, &p.UserID, &status, &p.FinalVersion, &p.ImageRef, &p.ImageError, &prefs, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoredPost{}, fmt.Errorf("%w: post %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.StoredPost{}, err
	}
	p.Status = domain.Status(status)
	if err := json.Unmarshal([]byte(prefs), &p.Preferences); err != nil {
		return domain.StoredPost{}, fmt.Errorf("decode preferences: %w", err)
	}
	p.Preferences.UserID = p.UserID

	if p.Versions, err = s.versions(ctx, id); err != nil {
		return domain.StoredPost{}, err
	}
	if p.Reviews, err = s.reviews(ctx, id); err != nil {
		return domain.StoredPost{}, err
	}
	if p.Image, err = s.image(ctx, id); err != nil {
		return domain.StoredPost{}, err
	}
	if p.Source, err = s.source(ctx, id); err != nil {
		return domain.StoredPost{}, err
	}
	return p, nil
}

func (s *PostgresSink) versions(ctx context.Context, id string) ([]domain.Draft, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT version_number, content, char_count, word_count, feedback::text, created_at
FROM post_versions WHERE post_id = $1 ORDER BY version_number`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Draft, 0, 4)
	for rows.Next() {
		var (
			d        domain.Draft
			feedback sql.NullString
		)
		if err := rows.Scan(&d.Version, &d.Text, &d.Chars, &d.Words, &feedback, &d.CreatedAt); err != nil {
			return nil, err
		}
		if feedback.Valid {
			var v domain.ReviewVerdict
			if err := json.Unmarshal([]byte(feedback.String), &v); err != nil {
				return nil, err
			}
			d.Feedback = &v
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresSink) reviews(ctx context.Context, id string) ([]domain.ReviewRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT iteration, version_number, verdict::text, reviewed_at
FROM post_reviews WHERE post_id = $1 ORDER BY iteration`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.ReviewRecord, 0, 4)
	for rows.Next() {
		var (
			r       domain.ReviewRecord
			verdict string
		)
		if err := rows.Scan(&r.Iteration, &r.Version, &verdict, &r.ReviewedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(verdict), &r.Verdict); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresSink) image(ctx context.Context, id string) (*domain.ImageArtifact, error) {
	var img domain.ImageArtifact
	err := s.db.QueryRowContext(ctx, `
SELECT ref, mime_type, width, height, draft_version, prompt, alt_text, created_at
FROM post_images WHERE post_id = $1`, id).Scan(
		&img.Ref, &img.MIMEType, &img.Width, &img.Height, &img.DraftVersion, &img.Prompt, &img.AltText, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (s *PostgresSink) source(ctx context.Context, id string) (domain.SourceContent, error) {
	var (
		src         domain.SourceContent
		kind        string
		extractedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
SELECT kind, origin, title, content, length, extracted, extracted_at
FROM post_sources WHERE post_id = $1`, id).Scan(
		&kind, &src.Origin, &src.Title, &src.Text, &src.Length, &src.Extracted, &extractedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SourceContent{}, nil
	}
	if err != nil {
		return domain.SourceContent{}, err
	}
	src.Kind = domain.InputKind(kind)
	if extractedAt.Valid {
		src.ExtractedAt = extractedAt.Time
	}
	return src, nil
}

func (s *PostgresSink) ListByUser(ctx context.Context, userID string, limit int) ([]domain.StoredPost, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM posts WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.StoredPost, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
