// Package redis connects to Redis with go-redis/v9.
//
// pushd uses Redis only to share VAPID tokens between replicas, so the
// connection is optional: Config.Enabled reports whether a URL is set.
//
//	if cfg.Redis.Enabled() {
//	    client, err := redis.Connect(ctx, cfg.Redis)
//	    if err != nil {
//	        return err
//	    }
//	    defer client.Close()
//	    cache := vapid.NewRedisCache(client)
//	}
package redis
