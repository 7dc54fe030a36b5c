// Package mongostore persists notification records, preferences and the
// user directory in MongoDB.
//
// Channel outcomes are written with a positional update that only matches
// while the entry still has its previous status, and the overall status is
// written against the record version:
//
//	db, _ := mongo.ConnectDatabase(ctx, cfg)
//	store := mongostore.New(db, mongostore.WithLogger(log))
//	if err := store.EnsureIndexes(ctx); err != nil {
//		return err
//	}
//	resolver := notifications.NewResolver(mongostore.NewDirectory(db, ""))
//	gate := notifications.NewGate(store)
package mongostore
