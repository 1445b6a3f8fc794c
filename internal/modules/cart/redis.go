package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyCart = "cart:%s"

	// Abandoned carts expire on their own.
	cartTTL = 30 * 24 * time.Hour
)

type redisRepo struct{ rdb *redis.Client }

// NewRedisRepository stores each cart as a single JSON document keyed by user.
func NewRedisRepository(rdb *redis.Client) Repository { return &redisRepo{rdb: rdb} }

func (r *redisRepo) Get(ctx context.Context, userID string) (*Cart, error) {
	b, err := r.rdb.Get(ctx, fmt.Sprintf(keyCart, userID)).Bytes()
	if err == redis.Nil {
		return &Cart{UserID: userID, Items: []CartItem{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	c := &Cart{}
	if err := json.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return c, nil
}

func (r *redisRepo) Save(ctx context.Context, c *Cart) error {
	c.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, fmt.Sprintf(keyCart, c.UserID), b, cartTTL).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (r *redisRepo) Clear(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, fmt.Sprintf(keyCart, userID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
