package cart

import "context"

// Repository defines cart storage. Get returns an empty cart (never nil) for
// users without one.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Clear(ctx context.Context, userID string) error
}
