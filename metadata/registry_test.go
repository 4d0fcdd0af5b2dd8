package metadata_test

import (
	"testing"

	"github.com/syssam/orm/metadata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type User struct {
	ID    int64
	Name  string
	Posts []*Post
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
	Posts []*Post
}

func blogEntities() []*metadata.EntityMetadata {
	return []*metadata.EntityMetadata{
		{
			Name: "User",
			Type: metadata.TypeOf[User](),
			Columns: []*metadata.Column{
				{Name: "id", Primary: true, Generation: metadata.Increment, Accessor: metadata.Field(func(u *User) *int64 { return &u.ID })},
				{Name: "name", Accessor: metadata.Field(func(u *User) *string { return &u.Name })},
			},
			Relations: []*metadata.Relation{
				{Name: "posts", Kind: metadata.OneToMany, Target: "Post", InverseSide: "author", Cascade: metadata.CascadeInsert | metadata.CascadeUpdate, Accessor: metadata.Many(func(u *User) *[]*Post { return &u.Posts })},
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
				{Name: "author", Kind: metadata.ManyToOne, Target: "User", Nullable: true, Accessor: metadata.One(func(p *Post) **User { return &p.Author })},
				{Name: "tags", Kind: metadata.ManyToMany, Target: "Tag", InverseSide: "posts", JoinTable: &metadata.JoinTable{}, Accessor: metadata.Many(func(p *Post) *[]*Tag { return &p.Tags })},
			},
		},
		{
			Name: "Tag",
			Type: metadata.TypeOf[Tag](),
			Columns: []*metadata.Column{
				{Name: "id", Primary: true, Generation: metadata.Increment, Accessor: metadata.Field(func(t *Tag) *int64 { return &t.ID })},
				{Name: "label", Accessor: metadata.Field(func(t *Tag) *string { return &t.Label })},
			},
			Relations: []*metadata.Relation{
				{Name: "posts", Kind: metadata.ManyToMany, Target: "Post", Accessor: metadata.Many(func(t *Tag) *[]*Post { return &t.Posts })},
			},
		},
	}
}

func TestRegistryBuild(t *testing.T) {
	reg := metadata.NewRegistry()
	require.NoError(t, reg.Register(blogEntities()...))
	require.NoError(t, reg.Build())
	assert.True(t, reg.Built())

	post, ok := reg.Lookup("Post")
	require.True(t, ok)
	assert.Equal(t, "posts", post.Table)
	assert.Equal(t, []string{"id"}, post.PrimaryNames())

	t.Run("join_columns", func(t *testing.T) {
		author, ok := post.Relation("author")
		require.True(t, ok)
		assert.True(t, author.Owning())
		require.Len(t, author.ForeignKeys(), 1)
		fk := author.ForeignKeys()[0]
		assert.Equal(t, "author_id", fk.Name)
		assert.True(t, fk.Nullable)
		assert.Same(t, author, fk.Relation())
		assert.Equal(t, "id", fk.Referenced().Name)
		c, ok := post.Column("author_id")
		require.True(t, ok)
		assert.Same(t, fk, c)
	})

	t.Run("inverse", func(t *testing.T) {
		user, _ := reg.Lookup("User")
		posts, ok := user.Relation("posts")
		require.True(t, ok)
		author, _ := post.Relation("author")
		assert.Same(t, author, posts.Inverse())
		assert.Same(t, posts, author.Inverse())
		assert.False(t, posts.Owning())
		assert.True(t, posts.ToMany())
	})

	t.Run("junction", func(t *testing.T) {
		tags, _ := post.Relation("tags")
		tag, _ := reg.Lookup("Tag")
		inv, _ := tag.Relation("posts")
		j := tags.Junction()
		require.NotNil(t, j)
		assert.Same(t, j, inv.Junction())
		assert.True(t, tags.OwnsJunction())
		assert.False(t, inv.OwnsJunction())
		assert.Equal(t, "post_tags", j.Table)
		assert.Equal(t, []string{"post_id"}, j.OwnerNames())
		assert.Equal(t, []string{"tag_id"}, j.InverseNames())
	})
}

func TestRegistryResolve(t *testing.T) {
	reg := metadata.NewRegistry().MustRegister(blogEntities()...).MustBuild()

	m, err := reg.Resolve(&User{})
	require.NoError(t, err)
	assert.Equal(t, "User", m.Name)

	_, err = reg.Resolve(User{})
	require.ErrorIs(t, err, metadata.ErrUnknownEntity)

	_, err = reg.Resolve(metadata.NewRecord("Comment", nil))
	require.ErrorIs(t, err, metadata.ErrUnknownEntity)
}

func TestRegistryRegisterErrors(t *testing.T) {
	tests := []struct {
		name string
		ms   []*metadata.EntityMetadata
	}{
		{"no_name", []*metadata.EntityMetadata{{}}},
		{"duplicate", []*metadata.EntityMetadata{{Name: "A"}, {Name: "A"}}},
		{"not_pointer", []*metadata.EntityMetadata{{Name: "A", Type: metadata.TypeOf[User]().Elem()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, metadata.NewRegistry().Register(tt.ms...))
		})
	}

	reg := metadata.NewRegistry().MustRegister(blogEntities()...).MustBuild()
	assert.Error(t, reg.Register(&metadata.EntityMetadata{Name: "Late"}))
	assert.Error(t, reg.Build())
}

func TestRegistryBuildErrors(t *testing.T) {
	id := func() *metadata.Column {
		return &metadata.Column{Name: "id", Primary: true, Accessor: metadata.RecordField("id")}
	}
	tests := []struct {
		name    string
		ms      []*metadata.EntityMetadata
		message string
	}{
		{
			name:    "no_primary",
			ms:      []*metadata.EntityMetadata{{Name: "A"}},
			message: "no primary column",
		},
		{
			name: "unknown_target",
			ms: []*metadata.EntityMetadata{{
				Name: "A", Columns: []*metadata.Column{id()},
				Relations: []*metadata.Relation{{Name: "b", Kind: metadata.ManyToOne, Target: "B"}},
			}},
			message: `unknown target entity "B"`,
		},
		{
			name: "one_to_many_without_inverse",
			ms: []*metadata.EntityMetadata{
				{Name: "A", Columns: []*metadata.Column{id()}, Relations: []*metadata.Relation{{Name: "bs", Kind: metadata.OneToMany, Target: "B"}}},
				{Name: "B", Columns: []*metadata.Column{id()}},
			},
			message: "requires a many-to-one inverse side",
		},
		{
			name: "one_to_one_two_owners",
			ms: []*metadata.EntityMetadata{
				{Name: "A", Columns: []*metadata.Column{id()}, Relations: []*metadata.Relation{{Name: "b", Kind: metadata.OneToOne, Owner: true, Target: "B", InverseSide: "a"}}},
				{Name: "B", Columns: []*metadata.Column{id()}, Relations: []*metadata.Relation{{Name: "a", Kind: metadata.OneToOne, Owner: true, Target: "A"}}},
			},
			message: "exactly one side",
		},
		{
			name: "missing_accessor",
			ms: []*metadata.EntityMetadata{
				{Name: "A", Columns: []*metadata.Column{id(), {Name: "x"}}},
			},
			message: "column has no accessor",
		},
		{
			name: "two_generated_columns",
			ms: []*metadata.EntityMetadata{{Name: "A", Columns: []*metadata.Column{
				{Name: "seq", Generation: metadata.Increment, Accessor: metadata.RecordField("seq")},
				{Name: "id", Primary: true, Generation: metadata.RowID, Accessor: metadata.RecordField("id")},
			}}},
			message: "more than one database-generated column",
		},
		{
			name: "unknown_referenced",
			ms: []*metadata.EntityMetadata{
				{Name: "A", Columns: []*metadata.Column{id()}, Relations: []*metadata.Relation{{Name: "b", Kind: metadata.ManyToOne, Target: "B", JoinColumns: []metadata.JoinColumn{{Name: "b_code", Referenced: "code"}}}}},
				{Name: "B", Columns: []*metadata.Column{id()}},
			},
			message: "references unknown column B.code",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := metadata.NewRegistry()
			require.NoError(t, reg.Register(tt.ms...))
			err := reg.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
			assert.True(t, reg.Validation().HasErrors())
			assert.False(t, reg.Built())
		})
	}
}

func TestRegistryWarnings(t *testing.T) {
	ms := blogEntities()
	author := ms[1].Relations[0]
	require.Equal(t, "author", author.Name)
	author.Cascade = metadata.CascadeRemove
	reg := metadata.NewRegistry().MustRegister(ms...).MustBuild()
	res := reg.Validation()
	require.True(t, res.HasWarnings())
	assert.Contains(t, res.String(), "Post.author: many-to-one relation cascades remove")
}

func TestCompositeJoinColumns(t *testing.T) {
	ms := []*metadata.EntityMetadata{
		{
			Name: "Order",
			Columns: []*metadata.Column{
				{Name: "region", Primary: true, Accessor: metadata.RecordField("region")},
				{Name: "number", Primary: true, Accessor: metadata.RecordField("number")},
			},
		},
		{
			Name: "Line",
			Columns: []*metadata.Column{
				{Name: "id", Primary: true, Generation: metadata.UUID, Accessor: metadata.RecordField("id")},
				{Name: "order_region", Accessor: metadata.RecordField("order_region")},
			},
			Relations: []*metadata.Relation{
				{Name: "order", Kind: metadata.ManyToOne, Target: "Order", Accessor: metadata.RecordRelation("order")},
			},
		},
	}
	reg := metadata.NewRegistry().MustRegister(ms...).MustBuild()
	line, _ := reg.Lookup("Line")
	rel, _ := line.Relation("order")
	fks := rel.ForeignKeys()
	require.Len(t, fks, 2)
	assert.Equal(t, "order_region", fks[0].Name)
	assert.NotNil(t, fks[0].Accessor, "declared join column keeps its accessor")
	assert.Equal(t, "order_number", fks[1].Name)
	assert.Nil(t, fks[1].Accessor)
	assert.False(t, fks[1].Nullable)
	assert.True(t, line.HasGeneratedPrimary())

	order, _ := reg.Lookup("Order")
	rec := metadata.NewRecord("Order", map[string]any{"region": "eu", "number": int32(7)})
	id, complete := order.Identifier(rec)
	assert.True(t, complete)
	assert.Equal(t, metadata.Identifier{"region": "eu", "number": int64(7)}, id)
	assert.Equal(t, []any{"eu", int64(7)}, order.Values(id))
	assert.Equal(t, `Order|"eu"|7`, order.Key(id))

	_, complete = order.Identifier(metadata.NewRecord("Order", map[string]any{"region": "eu"}))
	assert.False(t, complete)
}
