package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// New connects a redis client and pings it with a short deadline.
func New(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}
