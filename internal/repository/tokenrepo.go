package repository

import (
	"context"

	"github.com/and161185/pkg-registry/internal/model"
)

// TokenRepository stores namespace- and package-scoped upload tokens.
type TokenRepository interface {
	// Add stores the token; inserting an existing token is a no-op.
	Add(ctx context.Context, t model.UploadToken) error
	// Get loads a token by value.
	Get(ctx context.Context, token string) (*model.UploadToken, error)
}
