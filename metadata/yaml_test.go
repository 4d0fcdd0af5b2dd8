package metadata_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/syssam/orm/metadata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogYAML = `
entities:
  - name: Author
    columns:
      - {name: id, primary: true, generation: increment}
      - {name: name}
      - {name: version, version: true}
    relations:
      - {name: books, kind: one-to-many, target: Book, inverse: author, cascade: [insert, update], orphan: delete}
  - name: Book
    table: library_books
    columns:
      - {name: id, primary: true, generation: uuid}
      - {name: title, field: Title}
      - {name: created_at, create_date: true}
      - {name: deleted_at, nullable: true, delete_date: true}
    relations:
      - name: author
        kind: many-to-one
        target: Author
        nullable: true
        join_columns: [{name: writer_id, referenced: id}]
      - name: genres
        kind: many-to-many
        target: Genre
        cascade: [all]
        join_table:
          name: book_genre
          join_columns: [{name: book, referenced: id}]
          inverse_join_columns: [{name: genre, referenced: id}]
  - name: Genre
    columns:
      - {name: id, primary: true}
`

func TestParseYAML(t *testing.T) {
	ms, err := metadata.ParseYAML([]byte(blogYAML))
	require.NoError(t, err)
	require.Len(t, ms, 3)
	reg := metadata.NewRegistry().MustRegister(ms...).MustBuild()

	author, ok := reg.Lookup("Author")
	require.True(t, ok)
	assert.Equal(t, "authors", author.Table)
	assert.NotNil(t, author.VersionColumn())
	books, _ := author.Relation("books")
	assert.Equal(t, metadata.OrphanDelete, books.Orphan)
	assert.True(t, books.Cascade.Has(metadata.CascadeInsert|metadata.CascadeUpdate))
	assert.False(t, books.Cascade.Any(metadata.CascadeRemove))

	book, _ := reg.Lookup("Book")
	assert.Equal(t, "library_books", book.Table)
	assert.Equal(t, metadata.UUID, book.PrimaryColumns()[0].Generation)
	c, ok := book.ColumnByField("Title")
	require.True(t, ok)
	assert.Equal(t, "title", c.Name)
	assert.NotNil(t, book.CreateDateColumn())
	assert.NotNil(t, book.DeleteDateColumn())
	rel, _ := book.Relation("author")
	assert.Equal(t, "writer_id", rel.ForeignKeys()[0].Name)
	genres, _ := book.Relation("genres")
	assert.Equal(t, metadata.CascadeAll, genres.Cascade)
	require.True(t, genres.OwnsJunction())
	assert.Equal(t, "book_genre", genres.Junction().Table)
	assert.Equal(t, []string{"book"}, genres.Junction().OwnerNames())
	assert.Equal(t, []string{"genre"}, genres.Junction().InverseNames())

	rec := metadata.NewRecord("Book", map[string]any{"Title": "Dune"})
	m, err := reg.Resolve(rec)
	require.NoError(t, err)
	v, ok := c.Get(rec)
	assert.True(t, ok)
	assert.Equal(t, "Dune", v)
	assert.Same(t, book, m)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blogYAML), 0o600))
	ms, err := metadata.LoadYAML(path)
	require.NoError(t, err)
	assert.Len(t, ms, 3)

	_, err = metadata.LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseYAMLErrors(t *testing.T) {
	tests := map[string]string{
		"unknown_field":      "entities: [{name: A, colums: []}]",
		"unknown_kind":       "entities: [{name: A, relations: [{name: b, kind: many}]}]",
		"unknown_cascade":    "entities: [{name: A, relations: [{name: b, kind: one-to-one, cascade: [merge]}]}]",
		"unknown_orphan":     "entities: [{name: A, relations: [{name: b, kind: one-to-many, orphan: keep}]}]",
		"unknown_generation": "entities: [{name: A, columns: [{name: id, generation: sequence}]}]",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := metadata.ParseYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}
