package ports

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned by secret stores when a name is unknown.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore resolves credential material by name.
type SecretStore interface {
	Get(ctx context.Context, name string) (string, error)
}
