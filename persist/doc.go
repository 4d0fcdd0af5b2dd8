// Package persist saves and removes entity graphs.
//
// A call builds the graph of subjects reachable from its roots through
// cascading relations, loads the stored rows of the subjects, diffs
// one-to-many and many-to-many relations against the stored ones,
// classifies every subject as an insert, update, remove or no-op, orders
// the resulting statements so that foreign keys are never violated and
// executes them in a single transaction:
//
//	reg := metadata.NewRegistry().MustRegister(entities...).MustBuild()
//	m := persist.NewManager(drv, reg, persist.WithLogger(logger))
//	post := &Post{Title: "hello", Author: &User{Name: "a8m"}}
//	if err := m.Save(ctx, post); err != nil {
//		return err
//	}
//	// post.ID and post.Author.ID hold the generated identifiers.
//
// Generated values are written back into the live entities. When a call
// fails inside its transaction, every value written back is reverted, so
// the entities are left exactly as given.
//
// Calls sharing a transaction run through a bound manager:
//
//	err := m.Transaction(ctx, func(ctx context.Context, m *persist.Manager) error {
//		if err := m.Save(ctx, order); err != nil {
//			return err
//		}
//		return m.Remove(ctx, cart)
//	})
package persist
