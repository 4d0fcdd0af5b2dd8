package persist_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/syssam/orm/dialect"
	"github.com/syssam/orm/dialect/sql"
	"github.com/syssam/orm/metadata"
	"github.com/syssam/orm/persist"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

type User struct {
	ID      int64
	Name    string
	Version int64
	Posts   []*Post
}

type Post struct {
	ID     int64
	Title  string
	Author *User
	Tags   []*Tag
}

type Tag struct {
	ID    int64
	Label string
}

// Note records the lifecycle hooks called on it.
type Note struct {
	ID    int64
	Body  string
	calls []string
}

func (n *Note) BeforeInsert(context.Context) error {
	n.calls = append(n.calls, "before-insert")
	return nil
}

func (n *Note) BeforeUpdate(context.Context) error {
	n.calls = append(n.calls, "before-update")
	n.Body += "!"
	return nil
}

func (n *Note) AfterInsert(context.Context) error {
	n.calls = append(n.calls, "after-insert")
	return nil
}

func (n *Note) AfterUpdate(context.Context) error {
	n.calls = append(n.calls, "after-update")
	return nil
}

type Doc struct {
	ID        int64
	Title     string
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func blogEntities() []*metadata.EntityMetadata {
	return []*metadata.EntityMetadata{
		{
			Name: "User",
			Type: metadata.TypeOf[User](),
			Columns: []*metadata.Column{
				{Name: "id", Primary: true, Generation: metadata.Increment, Accessor: metadata.Field(func(u *User) *int64 { return &u.ID })},
				{Name: "name", Accessor: metadata.Field(func(u *User) *string { return &u.Name })},
				{Name: "version", Version: true, Accessor: metadata.Field(func(u *User) *int64 { return &u.Version })},
			},
			Relations: []*metadata.Relation{
				{Name: "posts", Kind: metadata.OneToMany, Target: "Post", InverseSide: "author", Cascade: metadata.CascadeAll, Orphan: metadata.OrphanDelete, Accessor: metadata.Many(func(u *User) *[]*Post { return &u.Posts })},
			},
		},
		{
			Name: "Post",
			Type: metadata.TypeOf[Post](),
			Columns: []*metadata.Column{
				{Name: "id", Primary: true, Generation: metadata.Increment, Accessor: metadata.Field(func(p *Post) *int64 { return &p.ID })},
				{Name: "title", Accessor: metadata.Field(func(p *Post) *string { return &p.Title })},
			},
			Relations: []*metadata.Relation{
				{Name: "author", Kind: metadata.ManyToOne, Target: "User", Cascade: metadata.CascadeInsert | metadata.CascadeUpdate, Accessor: metadata.One(func(p *Post) **User { return &p.Author })},
				{Name: "tags", Kind: metadata.ManyToMany, Target: "Tag", Cascade: metadata.CascadeInsert, JoinTable: &metadata.JoinTable{}, Accessor: metadata.Many(func(p *Post) *[]*Tag { return &p.Tags })},
			},
		},
		{
			Name: "Tag",
			Type: metadata.TypeOf[Tag](),
			Columns: []*metadata.Column{
				{Name: "id", Primary: true, Generation: metadata.Increment, Accessor: metadata.Field(func(t *Tag) *int64 { return &t.ID })},
				{Name: "label", Unique: true, Accessor: metadata.Field(func(t *Tag) *string { return &t.Label })},
			},
		},
		{
			Name: "Note",
			Type: metadata.TypeOf[Note](),
			Columns: []*metadata.Column{
				{Name: "id", Primary: true, Generation: metadata.Increment, Accessor: metadata.Field(func(n *Note) *int64 { return &n.ID })},
				{Name: "body", Accessor: metadata.Field(func(n *Note) *string { return &n.Body })},
			},
		},
		{
			Name: "Doc",
			Type: metadata.TypeOf[Doc](),
			Columns: []*metadata.Column{
				{Name: "id", Primary: true, Generation: metadata.Increment, Accessor: metadata.Field(func(d *Doc) *int64 { return &d.ID })},
				{Name: "title", Accessor: metadata.Field(func(d *Doc) *string { return &d.Title })},
				{Name: "updated_at", UpdateDate: true, Accessor: metadata.Field(func(d *Doc) *time.Time { return &d.UpdatedAt })},
				{Name: "deleted_at", Nullable: true, DeleteDate: true, Accessor: metadata.Field(func(d *Doc) **time.Time { return &d.DeletedAt })},
			},
		},
	}
}

type Publisher struct {
	ID   int64
	Name string
}

// Author is keyed by a code the caller assigns.
type Author struct {
	Code string
	Name string
}

type Book struct {
	ID        int64
	Title     string
	Publisher *Publisher
	Author    *Author
}

// catalogEntities declares books referencing their publisher and author
// through relations that do not cascade.
func catalogEntities() []*metadata.EntityMetadata {
	return []*metadata.EntityMetadata{
		{
			Name: "Publisher",
			Type: metadata.TypeOf[Publisher](),
			Columns: []*metadata.Column{
				{Name: "id", Primary: true, Generation: metadata.Increment, Accessor: metadata.Field(func(p *Publisher) *int64 { return &p.ID })},
				{Name: "name", Accessor: metadata.Field(func(p *Publisher) *string { return &p.Name })},
			},
		},
		{
			Name: "Author",
			Type: metadata.TypeOf[Author](),
			Columns: []*metadata.Column{
				{Name: "code", Primary: true, Accessor: metadata.Field(func(a *Author) *string { return &a.Code })},
				{Name: "name", Accessor: metadata.Field(func(a *Author) *string { return &a.Name })},
			},
		},
		{
			Name: "Book",
			Type: metadata.TypeOf[Book](),
			Columns: []*metadata.Column{
				{Name: "id", Primary: true, Generation: metadata.Increment, Accessor: metadata.Field(func(b *Book) *int64 { return &b.ID })},
				{Name: "title", Accessor: metadata.Field(func(b *Book) *string { return &b.Title })},
			},
			Relations: []*metadata.Relation{
				{Name: "publisher", Kind: metadata.ManyToOne, Target: "Publisher", Accessor: metadata.One(func(b *Book) **Publisher { return &b.Publisher })},
				{Name: "author", Kind: metadata.ManyToOne, Target: "Author", Accessor: metadata.One(func(b *Book) **Author { return &b.Author })},
			},
		},
	}
}

type Egg struct {
	ID      int64
	Chicken *Chicken
}

type Chicken struct {
	ID  int64
	Egg *Egg
}

// cycleEntities declares two entities referencing each other. The egg
// side of the chicken is nullable if requested.
func cycleEntities(nullable bool) []*metadata.EntityMetadata {
	return []*metadata.EntityMetadata{
		{
			Name: "Egg",
			Type: metadata.TypeOf[Egg](),
			Columns: []*metadata.Column{
				{Name: "id", Primary: true, Generation: metadata.Increment, Accessor: metadata.Field(func(e *Egg) *int64 { return &e.ID })},
			},
			Relations: []*metadata.Relation{
				{Name: "chicken", Kind: metadata.ManyToOne, Target: "Chicken", Cascade: metadata.CascadeInsert, Accessor: metadata.One(func(e *Egg) **Chicken { return &e.Chicken })},
			},
		},
		{
			Name: "Chicken",
			Type: metadata.TypeOf[Chicken](),
			Columns: []*metadata.Column{
				{Name: "id", Primary: true, Generation: metadata.Increment, Accessor: metadata.Field(func(c *Chicken) *int64 { return &c.ID })},
			},
			Relations: []*metadata.Relation{
				{Name: "egg", Kind: metadata.ManyToOne, Target: "Egg", Nullable: nullable, Cascade: metadata.CascadeInsert, Accessor: metadata.One(func(c *Chicken) **Egg { return &c.Egg })},
			},
		},
	}
}

func newRegistry(t *testing.T, ms ...*metadata.EntityMetadata) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()
	require.NoError(t, reg.Register(ms...))
	require.NoError(t, reg.Build())
	return reg
}

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newMock returns a manager over a mocked sqlite database. Loads run
// sequentially so expectations can be matched in order.
func newMock(t *testing.T, reg *metadata.Registry, opts ...persist.Option) (*persist.Manager, sqlmock.Sqlmock) {
	return newDialectMock(t, dialect.SQLite, reg, opts...)
}

func newDialectMock(t *testing.T, name string, reg *metadata.Registry, opts ...persist.Option) (*persist.Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	opts = append([]persist.Option{
		persist.WithClock(func() time.Time { return now }),
		persist.WithLogger(slog.New(slog.DiscardHandler)),
		persist.WithConcurrency(1),
	}, opts...)
	return persist.NewManager(sql.OpenDB(name, db), reg, opts...), mock
}
