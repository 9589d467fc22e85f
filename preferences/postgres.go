package preferences

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/postforge/postforge/domain"
)

// PostgresStore keeps the current profile per user plus a history of every
// saved version.
type PostgresStore struct {
	db *sql.DB

	// schemaMu guards schemaDone; a failed bootstrap is retried on the next call.
	schemaMu   sync.Mutex
	schemaDone bool
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
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

CREATE TABLE IF NOT EXISTS user_preferences (
  user_id TEXT PRIMARY KEY REFERENCES users(id),
  prefs JSONB NOT NULL,
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS user_preferences_history (
  id BIGSERIAL PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id),
  prefs JSONB NOT NULL,
  changed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_user_preferences_history_user ON user_preferences_history (user_id);
`); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	s.schemaDone = true
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, userID string) (domain.UserPreferences, error) {
	id, err := checkUserID(userID)
	if err != nil {
		return domain.UserPreferences{}, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return domain.UserPreferences{}, err
	}
	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT prefs::text FROM user_preferences WHERE user_id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserPreferences{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.UserPreferences{}, err
	}
	p := domain.DefaultPreferences(id)
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.UserPreferences{}, fmt.Errorf("decode preferences for %s: %w", id, err)
	}
	p.UserID = id
	if err := p.Validate(); err != nil {
		return domain.UserPreferences{}, err
	}
	return p, nil
}

func (s *PostgresStore) Save(ctx context.Context, prefs domain.UserPreferences) error {
	id, err := checkUserID(prefs.UserID)
	if err != nil {
		return err
	}
	if err := prefs.Validate(); err != nil {
		return err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	prefs.UserID = id
	body, err := json.Marshal(prefs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO user_preferences (user_id, prefs, updated_at)
VALUES ($1, $2::jsonb, NOW())
ON CONFLICT (user_id)
DO UPDATE SET prefs=EXCLUDED.prefs, updated_at=EXCLUDED.updated_at`, id, string(body)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO user_preferences_history (user_id, prefs) VALUES ($1, $2::jsonb)`, id, string(body)); err != nil {
		return err
	}
	return tx.Commit()
}

// History returns every saved version for a user, oldest first.
func (s *PostgresStore) History(ctx context.Context, userID string) ([]domain.UserPreferences, error) {
	id, err := checkUserID(userID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT prefs::text FROM user_preferences_history WHERE user_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.UserPreferences
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		p := domain.DefaultPreferences(id)
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
