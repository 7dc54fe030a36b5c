// Package httpserver runs the health endpoints of the notification daemon.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	r := chi.NewRouter()
//	r.Get("/health/live", httpserver.HealthCheckHandler(log))
//	r.Get("/health/ready", httpserver.HealthCheckHandler(log, mongoCheck, redisCheck))
//	err := srv.Run(ctx, r) // returns after ctx is cancelled and requests drain
package httpserver
