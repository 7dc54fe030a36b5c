// Package redis provides helpers for connecting to a Redis server.
//
// Connect parses REDIS_URL, retries the initial ping and
// returns a ready go-redis client. Healthcheck adapts the client to the
// func(context.Context) error shape used by the HTTP health endpoints.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Sentinel errors (ErrRedisNotReady and friends) are joined with the driver
// error, so errors.Is works on both.
package redis
