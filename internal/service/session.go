package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/Skotchmaster/authsession/internal/autherr"
	"github.com/Skotchmaster/authsession/internal/logging"
	"github.com/Skotchmaster/authsession/internal/metrics"
	"github.com/Skotchmaster/authsession/internal/models"
)

const (
	DefaultRefreshTTL = 15 * 24 * time.Hour

	conflictBackoff = 5 * time.Millisecond
)

type SessionEngine struct {
	Tokens   RefreshTokenStore
	Accounts AccountStore
	TTL      time.Duration
	Metrics  *metrics.Metrics

	now      func() time.Time
	newValue func() string
}

func NewSessionEngine(tokens RefreshTokenStore, accounts AccountStore, ttl time.Duration, m *metrics.Metrics) *SessionEngine {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	return &SessionEngine{
		Tokens:   tokens,
		Accounts: accounts,
		TTL:      ttl,
		Metrics:  m,
		now:      time.Now,
		newValue: uuid.NewString,
	}
}

func (e *SessionEngine) newToken(accountID uuid.UUID) *models.RefreshToken {
	now := e.now().UTC()
	return &models.RefreshToken{
		Token:     e.newValue(),
		AccountID: accountID,
		ExpiresAt: now.Add(e.TTL),
		CreatedAt: now,
	}
}

// CreateRefreshToken returns the account's live refresh token, creating one
// if there is none.
func (e *SessionEngine) CreateRefreshToken(ctx context.Context, email string) (*models.RefreshToken, error) {
	acc, err := e.Accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return e.issueFor(ctx, acc)
}

// issueFor retries exactly once on conflict. The retry re-reads the store
// and so returns whatever token the concurrent winner wrote.
func (e *SessionEngine) issueFor(ctx context.Context, acc *models.Account) (*models.RefreshToken, error) {
	var out *models.RefreshToken
	b := retry.WithMaxRetries(1, retry.NewConstant(conflictBackoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		tok, err := e.issueOnce(ctx, acc.ID)
		if err != nil {
			if autherr.Is(err, autherr.KindConflict) {
				e.Metrics.Conflict()
				logging.FromContext(ctx).Info("refresh_conflict", "account_id", acc.ID.String())
				return retry.RetryableError(err)
			}
			return err
		}
		out = tok
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *SessionEngine) issueOnce(ctx context.Context, accountID uuid.UUID) (*models.RefreshToken, error) {
	existing, err := e.Tokens.FindByAccount(ctx, accountID)
	switch {
	case err == nil:
		if !existing.IsExpired(e.now()) {
			return existing, nil
		}
		next := e.newToken(accountID)
		if err := e.Tokens.Rotate(ctx, existing, next); err != nil {
			if autherr.Is(err, autherr.KindRefreshTokenNotFound) {
				return nil, autherr.Conflict("expired refresh token replaced concurrently", "account_id", accountID.String())
			}
			return nil, err
		}
		return next, nil

	case autherr.Is(err, autherr.KindRefreshTokenNotFound):
		next := e.newToken(accountID)
		if err := e.Tokens.Create(ctx, next); err != nil {
			return nil, err
		}
		return next, nil

	default:
		return nil, err
	}
}

// RotateRefreshToken consumes oldValue and returns its replacement.
func (e *SessionEngine) RotateRefreshToken(ctx context.Context, oldValue string) (*models.RefreshToken, error) {
	_, next, err := e.rotate(ctx, oldValue)
	return next, err
}

func (e *SessionEngine) rotate(ctx context.Context, oldValue string) (*models.Account, *models.RefreshToken, error) {
	l := logging.FromContext(ctx).With("svc", "session.rotate")

	if oldValue == "" {
		return nil, nil, autherr.RefreshTokenNotFound()
	}
	old, err := e.Tokens.FindByValue(ctx, oldValue)
	if err != nil {
		return nil, nil, err
	}

	if old.IsExpired(e.now()) {
		if err := e.Tokens.Delete(ctx, old); err != nil {
			l.Warn("expired_token_delete_failed", "account_id", old.AccountID.String(), "error", err)
		}
		return nil, nil, autherr.New(autherr.KindTokenExpired, "refresh token expired", "account_id", old.AccountID.String())
	}

	acc, err := e.Accounts.FindByID(ctx, old.AccountID)
	if err != nil {
		return nil, nil, err
	}

	next := e.newToken(acc.ID)
	if err := e.Tokens.Rotate(ctx, old, next); err != nil {
		return nil, nil, err
	}
	return acc, next, nil
}

func (e *SessionEngine) FindByToken(ctx context.Context, value string) (*models.RefreshToken, error) {
	if value == "" {
		return nil, autherr.RefreshTokenNotFound()
	}
	return e.Tokens.FindByValue(ctx, value)
}

// Revoke deletes the token with the given value. Unknown values are not an
// error; the returned token is nil then.
func (e *SessionEngine) Revoke(ctx context.Context, value string) (*models.RefreshToken, error) {
	tok, err := e.FindByToken(ctx, value)
	if err != nil {
		if autherr.Is(err, autherr.KindRefreshTokenNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := e.Tokens.Delete(ctx, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func (e *SessionEngine) RevokeAccount(ctx context.Context, accountID uuid.UUID) error {
	return e.Tokens.DeleteByAccount(ctx, accountID)
}
