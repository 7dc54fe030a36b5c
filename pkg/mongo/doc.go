// Package mongo connects to MongoDB with settings read from MONGODB_* variables.
//
// Connect keeps pinging until the deployment answers, so the daemon can start
// next to a database that is still booting. ConnectDatabase returns the
// configured database directly; Healthcheck wraps a ping for the readiness
// endpoint.
//
//	var cfg mongo.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	db, err := mongo.ConnectDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
// Errors are joined with the driver error, so errors.Is matches both
// ErrMongoNotReady and the underlying cause.
package mongo
