package store

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
)

var errDBUnavailable = errors.New("database unavailable")

// scriptedDB is a database/sql driver that records every statement and
// fails the first failExecs of them.
type scriptedDB struct {
	mu        sync.Mutex
	failExecs int
	execs     []string
}

func (d *scriptedDB) Connect(context.Context) (driver.Conn, error) { return &scriptedConn{db: d}, nil }
func (d *scriptedDB) Driver() driver.Driver                        { return scriptedDriver{d} }

func (d *scriptedDB) count(fragment string) int {
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

type scriptedDriver struct{ db *scriptedDB }

func (d scriptedDriver) Open(string) (driver.Conn, error) { return &scriptedConn{db: d.db}, nil }

type scriptedConn struct{ db *scriptedDB }

func (c *scriptedConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements are not supported")
}
func (c *scriptedConn) Close() error              { return nil }
func (c *scriptedConn) Begin() (driver.Tx, error) { return scriptedTx{}, nil }

func (c *scriptedConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.execs = append(c.db.execs, query)
	if c.db.failExecs > 0 {
		c.db.failExecs--
		return nil, errDBUnavailable
	}
	return driver.RowsAffected(1), nil
}

type scriptedTx struct{}

func (scriptedTx) Commit() error   { return nil }
func (scriptedTx) Rollback() error { return nil }

func TestPostgresSinkRetriesSchemaAfterFailure(t *testing.T) {
	fake := &scriptedDB{failExecs: 1}
	db := sql.OpenDB(fake)
	t.Cleanup(func() { _ = db.Close() })

	images := NewMemoryImageStore()
	sink := NewPostgresSink(db, images)
	ctx := context.Background()

	_, err := sink.Persist(ctx, sampleRecord("alice"))
	require.ErrorIs(t, err, errDBUnavailable)
	assert.Equal(t, 0, fake.count("INSERT INTO posts"))
	assert.Equal(t, 0, images.Len())

	saved, err := sink.Persist(ctx, sampleRecord("alice"))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 2, fake.count("CREATE TABLE IF NOT EXISTS posts"))
	assert.Equal(t, 1, fake.count("INSERT INTO posts"))
	assert.Equal(t, 2, fake.count("INSERT INTO post_versions"))

	// once bootstrapped the schema is not re-applied
	_, err = sink.Persist(ctx, sampleRecord("bob"))
	require.NoError(t, err)
	assert.Equal(t, 2, fake.count("CREATE TABLE IF NOT EXISTS posts"))
	assert.Equal(t, 2, fake.count("INSERT INTO posts"))
}
