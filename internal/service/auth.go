package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/authsession/internal/events"
	"github.com/Skotchmaster/authsession/internal/logging"
	"github.com/Skotchmaster/authsession/internal/metrics"
	"github.com/Skotchmaster/authsession/internal/models"
	"github.com/Skotchmaster/authsession/internal/tokens"
)

// AuthService pairs the two engines into the operations exposed to callers.
type AuthService struct {
	Auth     *AuthenticationEngine
	Sessions *SessionEngine
	Events   events.Publisher
	Metrics  *metrics.Metrics
}

// Session is the credential bundle handed back to clients.
type Session struct {
	AccessToken  string
	RefreshToken string
	Role         models.Role
	AccessExp    time.Time
	RefreshExp   time.Time
}

func newSession(grant *AccessGrant, refresh *models.RefreshToken) *Session {
	return &Session{
		AccessToken:  grant.AccessToken,
		RefreshToken: refresh.Token,
		Role:         grant.Account.Role,
		AccessExp:    grant.AccessExp,
		RefreshExp:   refresh.ExpiresAt,
	}
}

func (s *AuthService) publish(ctx context.Context, typ string, acc *models.Account) {
	if s.Events == nil {
		return
	}
	ev := events.Event{
		Type:      typ,
		AccountID: acc.ID.String(),
		Email:     acc.Email,
		At:        time.Now().UTC(),
	}
	if err := s.Events.PublishEvent(ctx, ev); err != nil {
		s.Metrics.EventFailed()
		logging.FromContext(ctx).Warn("event_publish_failed", "type", typ, "account_id", ev.AccountID, "error", err)
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (res *Session, err error) {
	defer func() { s.Metrics.Observe("register", err) }()
	l := logging.FromContext(ctx).With("svc", "auth.register")

	grant, err := s.Auth.Register(ctx, in)
	if err != nil {
		l.Warn("register_failed", "error", err)
		return nil, err
	}

	refresh, err := s.Sessions.issueFor(ctx, grant.Account)
	if err != nil {
		l.Error("register_failed", "reason", "cannot issue refresh token", "error", err)
		return nil, err
	}

	s.publish(ctx, events.TypeAccountRegistered, grant.Account)
	l.Info("register_successful", "account_id", grant.Account.ID.String())
	return newSession(grant, refresh), nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (res *Session, err error) {
	defer func() { s.Metrics.Observe("login", err) }()
	l := logging.FromContext(ctx).With("svc", "auth.login")

	grant, err := s.Auth.Authenticate(ctx, email, password)
	if err != nil {
		l.Warn("login_failed", "error", err)
		return nil, err
	}

	refresh, err := s.Sessions.issueFor(ctx, grant.Account)
	if err != nil {
		l.Error("login_failed", "reason", "cannot issue refresh token", "error", err)
		return nil, err
	}

	l.Info("login_successful", "account_id", grant.Account.ID.String())
	return newSession(grant, refresh), nil
}

// Refresh exchanges a refresh token for a new bundle. The presented token is
// consumed.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (res *Session, err error) {
	defer func() { s.Metrics.Observe("refresh", err) }()
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	acc, next, err := s.Sessions.rotate(ctx, refreshToken)
	if err != nil {
		l.Warn("refresh_failed", "error", err)
		return nil, err
	}

	grant, err := s.Auth.IssueAccess(acc)
	if err != nil {
		l.Error("refresh_failed", "reason", "cannot mint access token", "error", err)
		return nil, err
	}

	s.publish(ctx, events.TypeSessionRotated, acc)
	l.Info("refresh_rotated", "account_id", acc.ID.String())
	return newSession(grant, next), nil
}

// ChangePassword updates the password and ends the target's session.
func (s *AuthService) ChangePassword(ctx context.Context, in ChangePasswordInput, canModify CanModifyFunc) (res *PasswordChange, err error) {
	defer func() { s.Metrics.Observe("change_password", err) }()
	l := logging.FromContext(ctx).With("svc", "auth.change_password")

	change, err := s.Auth.ChangePassword(ctx, in, canModify)
	if err != nil {
		l.Warn("change_password_failed", "error", err)
		return nil, err
	}

	if err := s.Sessions.RevokeAccount(ctx, change.Account.ID); err != nil {
		l.Error("change_password_failed", "reason", "cannot revoke refresh token", "account_id", change.Account.ID.String(), "error", err)
		return nil, err
	}

	s.publish(ctx, events.TypePasswordChanged, change.Account)
	l.Info("password_changed", "account_id", change.Account.ID.String())
	return change, nil
}

func (s *AuthService) LogOut(ctx context.Context, refreshToken string) (err error) {
	defer func() { s.Metrics.Observe("logout", err) }()
	if refreshToken == "" {
		return nil
	}

	tok, err := s.Sessions.Revoke(ctx, refreshToken)
	if err != nil {
		logging.FromContext(ctx).Error("logout_failed", "reason", "cannot revoke refreshToken", "error", err)
		return err
	}
	if tok != nil {
		s.publish(ctx, events.TypeLoggedOut, &models.Account{ID: tok.AccountID})
	}
	return nil
}

func (s *AuthService) VerifyAccess(accessToken string) (*tokens.AccessClaims, error) {
	return s.Auth.Signer.Verify(accessToken)
}

func (s *AuthService) GetAccount(ctx context.Context, id uuid.UUID) (*models.AccountView, error) {
	return s.Auth.GetAccount(ctx, id)
}

func (s *AuthService) GetCurrentAccount(ctx context.Context, accessToken string) (*models.AccountView, error) {
	return s.Auth.GetCurrentAccount(ctx, accessToken)
}

func (s *AuthService) ListAccounts(ctx context.Context, page, size int) (*AccountPage, error) {
	return s.Auth.ListAccounts(ctx, page, size)
}
