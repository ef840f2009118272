// Package redis connects to the Redis server that backs distributed subscriber
// locks when several engine instances share one ledger.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	locker := lock.NewRedisLocker(client)
//	probe := redis.Healthcheck(client)
//
// Config fields are read from REDIS_* environment variables through pkg/config.
package redis
