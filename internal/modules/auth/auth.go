package auth

import "context"

// Service authenticates credentials and issues signed tokens.
type Service interface {
	// Login verifies the email/password pair and returns a JWT on success.
	Login(ctx context.Context, email, password string) (string, error)
}
