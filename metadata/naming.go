package metadata

import "github.com/go-openapi/inflect"

// TableName returns the default table name of an entity: "OrderItem"
// becomes "order_items".
func TableName(entity string) string {
	return inflect.Underscore(inflect.Pluralize(entity))
}

// JoinColumnName returns the default join column name for a relation or
// entity prefix and a referenced column: ("Author", "id") becomes "author_id".
func JoinColumnName(prefix, referenced string) string {
	return inflect.Underscore(prefix) + "_" + referenced
}

// JunctionTableName returns the default junction table name of a
// many-to-many relation: ("Post", "tags") becomes "post_tags".
func JunctionTableName(owner, relation string) string {
	return inflect.Underscore(owner) + "_" + inflect.Underscore(relation)
}

// singular returns the singular form of a relation name ("tags" → "tag").
func singular(name string) string {
	return inflect.Singularize(name)
}
