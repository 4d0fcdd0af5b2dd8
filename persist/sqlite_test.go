package persist_test

import (
	"context"
	stdsql "database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/syssam/orm"
	"github.com/syssam/orm/dialect/sql"
	"github.com/syssam/orm/dialect/sql/sqlgraph"
	"github.com/syssam/orm/persist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const blogSchema = `
CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL
);
CREATE TABLE posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL DEFAULT '',
	author_id INTEGER NOT NULL REFERENCES users (id)
);
CREATE TABLE tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	label TEXT NOT NULL UNIQUE
);
CREATE TABLE post_tags (
	post_id INTEGER NOT NULL REFERENCES posts (id),
	tag_id INTEGER NOT NULL REFERENCES tags (id),
	PRIMARY KEY (post_id, tag_id)
);
CREATE TABLE publishers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE authors (
	code TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL DEFAULT '',
	publisher_id INTEGER REFERENCES publishers (id),
	author_code TEXT REFERENCES authors (code)
);
`

// openSQLite opens a file database with foreign keys enforced and returns
// a manager over it, its statistics and the raw connection pool.
func openSQLite(t *testing.T) (*persist.Manager, *sql.QueryStats, *stdsql.DB) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "blog.db") + "?_pragma=foreign_keys(1)"
	drv, stats, err := sql.OpenWithStats("sqlite", dsn)
	require.NoError(t, err)
	db := drv.Driver.(*sql.Driver).DB()
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(blogSchema)
	require.NoError(t, err)
	m := persist.NewManager(drv, newRegistry(t, append(blogEntities(), catalogEntities()...)...),
		persist.WithLogger(slog.New(slog.DiscardHandler)),
		persist.WithClock(func() time.Time { return now }),
	)
	return m, stats, db
}

func count(t *testing.T, db *stdsql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestSQLiteSave(t *testing.T) {
	m, stats, db := openSQLite(t)
	ctx := context.Background()
	u := &User{Name: "a8m"}
	u.Posts = []*Post{
		{Title: "first", Author: u, Tags: []*Tag{{Label: "go"}, {Label: "sql"}}},
		{Title: "second", Author: u},
	}
	require.NoError(t, m.Save(ctx, u))
	assert.NotZero(t, u.ID)
	assert.Equal(t, int64(1), u.Version)
	for _, p := range u.Posts {
		assert.NotZero(t, p.ID)
	}
	assert.Equal(t, 1, count(t, db, "users"))
	assert.Equal(t, 2, count(t, db, "posts"))
	assert.Equal(t, 2, count(t, db, "tags"))
	assert.Equal(t, 2, count(t, db, "post_tags"))
	snap := stats.Stats()
	assert.Equal(t, int64(1), snap.Transactions)
	assert.Equal(t, int64(1), snap.Commits)

	t.Run("Unchanged", func(t *testing.T) {
		stats.Reset()
		require.NoError(t, m.Save(ctx, u))
		snap := stats.Stats()
		assert.Zero(t, snap.TotalExecs)
		assert.Zero(t, snap.Transactions)
		assert.NotZero(t, snap.TotalQueries)
	})

	t.Run("Update", func(t *testing.T) {
		u.Name = "ariel"
		u.Posts[1].Tags = []*Tag{u.Posts[0].Tags[0]}
		require.NoError(t, m.Save(ctx, u))
		assert.Equal(t, int64(2), u.Version)
		var name string
		var version int64
		require.NoError(t, db.QueryRow("SELECT name, version FROM users WHERE id = ?", u.ID).Scan(&name, &version))
		assert.Equal(t, "ariel", name)
		assert.Equal(t, int64(2), version)
		assert.Equal(t, 3, count(t, db, "post_tags"))
	})

	t.Run("StaleVersion", func(t *testing.T) {
		_, err := db.Exec("UPDATE users SET version = version + 1 WHERE id = ?", u.ID)
		require.NoError(t, err)
		u.Name = "stale"
		err = m.Save(ctx, u)
		require.True(t, orm.IsOptimisticLock(err), "unexpected error: %v", err)
		var name string
		require.NoError(t, db.QueryRow("SELECT name FROM users WHERE id = ?", u.ID).Scan(&name))
		assert.Equal(t, "ariel", name)
	})
}

func TestSQLiteSaveAtomic(t *testing.T) {
	m, stats, db := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, m.Save(ctx, &Tag{Label: "go"}))

	stats.Reset()
	post := &Post{Title: "dup", Author: &User{Name: "a8m"}, Tags: []*Tag{{Label: "go"}}}
	err := m.Save(ctx, post)
	require.Error(t, err)
	assert.True(t, orm.IsConstraintError(err), "unexpected error: %v", err)
	assert.True(t, orm.IsQueryFailed(err))
	assert.True(t, sqlgraph.IsUniqueConstraintError(err))
	assert.Zero(t, post.ID)
	assert.Zero(t, post.Author.ID)
	assert.Zero(t, post.Tags[0].ID)
	assert.Equal(t, int64(1), stats.Stats().Rollbacks)

	assert.Equal(t, 0, count(t, db, "users"))
	assert.Equal(t, 0, count(t, db, "posts"))
	assert.Equal(t, 1, count(t, db, "tags"))
	assert.Equal(t, 0, count(t, db, "post_tags"))
}

func TestSQLiteRemove(t *testing.T) {
	m, stats, db := openSQLite(t)
	ctx := context.Background()
	tags := []*Tag{{Label: "go"}, {Label: "sql"}}
	u := &User{Name: "a8m"}
	u.Posts = []*Post{
		{Title: "first", Author: u, Tags: tags},
		{Title: "second", Author: u, Tags: tags[:1]},
	}
	require.NoError(t, m.Save(ctx, u))
	require.Equal(t, 3, count(t, db, "post_tags"))

	stats.Reset()
	require.NoError(t, m.Remove(ctx, u))
	snap := stats.Stats()
	assert.Zero(t, snap.Inserts)
	assert.Zero(t, snap.Updates)
	assert.GreaterOrEqual(t, snap.Deletes, int64(3))
	assert.Equal(t, 0, count(t, db, "users"))
	assert.Equal(t, 0, count(t, db, "posts"))
	assert.Equal(t, 0, count(t, db, "post_tags"))
	assert.Equal(t, 2, count(t, db, "tags"))
}

func TestSQLiteTransaction(t *testing.T) {
	m, _, db := openSQLite(t)
	ctx := context.Background()
	first, second := &Tag{Label: "first"}, &Tag{Label: "first"}
	err := m.Transaction(ctx, func(ctx context.Context, m *persist.Manager) error {
		if err := m.Save(ctx, first); err != nil {
			return err
		}
		return m.Save(ctx, second)
	})
	require.True(t, orm.IsConstraintError(err), "unexpected error: %v", err)
	assert.Zero(t, second.ID)
	assert.Equal(t, 0, count(t, db, "tags"))

	second.Label = "second"
	first.ID = 0
	err = m.Transaction(ctx, func(ctx context.Context, m *persist.Manager) error {
		return m.Save(ctx, []*Tag{first, second})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count(t, db, "tags"))
}

func TestSQLiteSaveRelatedInSameCall(t *testing.T) {
	m, _, db := openSQLite(t)
	ctx := context.Background()
	pub := &Publisher{Name: "O'Reilly"}
	author := &Author{Code: "bwk", Name: "Kernighan"}
	book := &Book{Title: "The Go Programming Language", Publisher: pub, Author: author}
	require.NoError(t, m.Save(ctx, []any{book, author, pub}))
	assert.NotZero(t, pub.ID)
	assert.NotZero(t, book.ID)

	var (
		publisherID int64
		authorCode  string
	)
	require.NoError(t, db.QueryRow("SELECT publisher_id, author_code FROM books WHERE id = ?", book.ID).Scan(&publisherID, &authorCode))
	assert.Equal(t, pub.ID, publisherID)
	assert.Equal(t, "bwk", authorCode)
	assert.Equal(t, 1, count(t, db, "publishers"))
	assert.Equal(t, 1, count(t, db, "authors"))
}
