package preferences

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postforge/postforge/domain"
)

var errDBUnavailable = errors.New("database unavailable")

// flakyDB records executed statements and fails the first failExecs.
type flakyDB struct {
	mu        sync.Mutex
	failExecs int
	execs     []string
}

func (d *flakyDB) Connect(context.Context) (driver.Conn, error) { return &flakyConn{db: d}, nil }
func (d *flakyDB) Driver() driver.Driver                        { return flakyDriver{d} }

func (d *flakyDB) count(fragment string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, q := range d.execs {
		if strings.Contains(q, fragment) {
			n++
		}
	}
	return n
}

type flakyDriver struct{ db *flakyDB }

func (d flakyDriver) Open(string) (driver.Conn, error) { return &flakyConn{db: d.db}, nil }

type flakyConn struct{ db *flakyDB }

func (c *flakyConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements are not supported")
}
func (c *flakyConn) Close() error              { return nil }
func (c *flakyConn) Begin() (driver.Tx, error) { return flakyTx{}, nil }

func (c *flakyConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.execs = append(c.db.execs, query)
	if c.db.failExecs > 0 {
		c.db.failExecs--
		return nil, errDBUnavailable
	}
	return driver.RowsAffected(1), nil
}

type flakyTx struct{}

func (flakyTx) Commit() error   { return nil }
func (flakyTx) Rollback() error { return nil }

func TestPostgresStoreRetriesSchemaAfterFailure(t *testing.T) {
	fake := &flakyDB{failExecs: 1}
	db := sql.OpenDB(fake)
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgresStore(db)
	ctx := context.Background()
	p := domain.DefaultPreferences("alice")

	err := s.Save(ctx, p)
	require.ErrorIs(t, err, errDBUnavailable)
	assert.Equal(t, 0, fake.count("INSERT INTO user_preferences "))

	require.NoError(t, s.Save(ctx, p))
	assert.Equal(t, 2, fake.count("CREATE TABLE IF NOT EXISTS user_preferences "))
	assert.Equal(t, 1, fake.count("INSERT INTO user_preferences "))
	assert.Equal(t, 1, fake.count("INSERT INTO user_preferences_history"))

	require.NoError(t, s.Save(ctx, p))
	assert.Equal(t, 2, fake.count("CREATE TABLE IF NOT EXISTS user_preferences "))
	assert.Equal(t, 2, fake.count("INSERT INTO user_preferences "))
}
