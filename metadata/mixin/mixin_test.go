package mixin_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/syssam/orm/metadata"
	"github.com/syssam/orm/metadata/mixin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Document struct {
	mixin.UUID
	mixin.TimeSoftDelete
	mixin.Version
	Title string
}

func documentColumns() []*metadata.Column {
	return mixin.Columns(
		mixin.UUID{},
		mixin.TimeSoftDelete{},
		mixin.Version{},
		&metadata.Column{Name: "title", Accessor: metadata.Field(func(d *Document) *string { return &d.Title })},
	)
}

func TestColumns(t *testing.T) {
	cs := documentColumns()
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"id", "created_at", "updated_at", "deleted_at", "version", "title"}, names)

	reg := metadata.NewRegistry().MustRegister(&metadata.EntityMetadata{
		Name:    "Document",
		Type:    metadata.TypeOf[Document](),
		Columns: cs,
	}).MustBuild()
	m, err := reg.Resolve(&Document{})
	require.NoError(t, err)
	assert.Equal(t, metadata.UUID, m.PrimaryColumns()[0].Generation)
	assert.Equal(t, "created_at", m.CreateDateColumn().Name)
	assert.Equal(t, "updated_at", m.UpdateDateColumn().Name)
	assert.Equal(t, "deleted_at", m.DeleteDateColumn().Name)
	assert.Equal(t, "version", m.VersionColumn().Name)
	assert.False(t, reg.Validation().HasErrors())
}

func TestAccessors(t *testing.T) {
	cs := documentColumns()
	d := &Document{}
	id := uuid.New()
	now := time.Now()

	require.NoError(t, cs[0].Set(d, id.String()))
	assert.Equal(t, id, d.ID)
	require.NoError(t, cs[1].Set(d, now))
	assert.Equal(t, now, d.CreatedAt)
	require.NoError(t, cs[2].Set(d, now))
	assert.Equal(t, now, d.UpdatedAt)
	require.NoError(t, cs[3].Set(d, now))
	require.NotNil(t, d.DeletedAt)
	assert.True(t, d.Deleted())
	require.NoError(t, cs[3].Set(d, nil))
	assert.False(t, d.Deleted())
	require.NoError(t, cs[4].Set(d, int64(3)))
	assert.Equal(t, int64(3), d.Version.Version)

	v, ok := cs[4].Get(d)
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)

	type plain struct{ Title string }
	assert.Error(t, cs[4].Set(&plain{}, 1))
	assert.Nil(t, cs[4].Accessor.Get(&plain{}))
	assert.Nil(t, cs[4].Accessor.Get((*Document)(nil)))
}

func TestForRecords(t *testing.T) {
	cs := mixin.ForRecords(mixin.Columns(mixin.Time{}, mixin.Version{}))
	rec := metadata.NewRecord("Note", nil)
	require.NoError(t, cs[2].Set(rec, int64(1)))
	assert.Equal(t, int64(1), rec.Get("Version"))
	assert.True(t, cs[0].CreateDate)

	orig := mixin.Version{}.Columns()[0]
	assert.NotSame(t, orig, cs[2])
}

func TestColumnsPanicsOnUnknownPart(t *testing.T) {
	assert.Panics(t, func() { mixin.Columns("title") })
}
