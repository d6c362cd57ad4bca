package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/authsession/internal/models"
	"github.com/Skotchmaster/authsession/internal/tokens"
)

type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	Create(ctx context.Context, acc *models.Account) error
	Save(ctx context.Context, acc *models.Account) error
	ListAll(ctx context.Context, offset, limit int) ([]models.Account, int64, error)
}

// RefreshTokenStore owns refresh token records. Implementations must
// guarantee at most one token per account and make Rotate atomic.
type RefreshTokenStore interface {
	FindByValue(ctx context.Context, value string) (*models.RefreshToken, error)
	FindByAccount(ctx context.Context, accountID uuid.UUID) (*models.RefreshToken, error)
	Create(ctx context.Context, token *models.RefreshToken) error
	Rotate(ctx context.Context, old, next *models.RefreshToken) error
	Delete(ctx context.Context, token *models.RefreshToken) error
	DeleteByAccount(ctx context.Context, accountID uuid.UUID) error
}

type TokenSigner interface {
	Issue(subject, role string) (string, time.Time, error)
	Verify(token string) (*tokens.AccessClaims, error)
}
