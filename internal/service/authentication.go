package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/authsession/internal/autherr"
	"github.com/Skotchmaster/authsession/internal/hash"
	"github.com/Skotchmaster/authsession/internal/logging"
	"github.com/Skotchmaster/authsession/internal/models"
	"github.com/Skotchmaster/authsession/internal/util"
)

type RegisterInput struct {
	FirstName  string
	LastName   string
	Patronymic string
	Email      string
	Password   string
}

type ChangePasswordInput struct {
	AccessToken string
	// TargetEmail selects the account to modify. Empty means the caller's own account.
	TargetEmail string
	NewPassword string
}

// AccessGrant is an authenticated account together with a freshly minted
// access token.
type AccessGrant struct {
	Account     *models.Account
	AccessToken string
	AccessExp   time.Time
}

type PasswordChange struct {
	Account     *models.Account
	NewPassword string
}

type AccountPage struct {
	Items      []*models.AccountView `json:"items"`
	Page       int                   `json:"page"`
	Size       int                   `json:"size"`
	Total      int64                 `json:"total"`
	TotalPages int                   `json:"totalPages"`
}

// Caller is the identity proven by an access token.
type Caller struct {
	Subject string
	Role    models.Role
}

// CanModifyFunc decides whether caller may change target's credentials.
type CanModifyFunc func(caller Caller, target *models.Account) bool

// SelfOrAdmin lets an account change its own password and lets admins
// change anyone's.
func SelfOrAdmin(caller Caller, target *models.Account) bool {
	return caller.Subject == target.Email || caller.Role == models.RoleAdmin
}

type dummyVerifier interface {
	VerifyDummy(password string)
}

type AuthenticationEngine struct {
	Accounts AccountStore
	Hasher   hash.PasswordHasher
	Signer   TokenSigner
}

func validateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return autherr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return autherr.Validation("email is malformed", "email", email)
	}
	return nil
}

func (e *AuthenticationEngine) Register(ctx context.Context, in RegisterInput) (*AccessGrant, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, autherr.Validation("password is required")
	}

	pwHash, err := e.Hasher.Hash(in.Password)
	if err != nil {
		l.Error("register_error", "reason", "cannot hash the password", "error", err)
		return nil, autherr.Wrap(autherr.KindValidation, err, "cannot hash the password")
	}

	acc := &models.Account{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Patronymic:   in.Patronymic,
		Email:        in.Email,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
	}
	if err := e.Accounts.Create(ctx, acc); err != nil {
		l.Warn("register_error", "reason", "cannot create account", "error", err)
		return nil, err
	}

	return e.grant(acc)
}

// Authenticate checks credentials. Unknown email and wrong password give the
// same error and take the same time.
func (e *AuthenticationEngine) Authenticate(ctx context.Context, email, password string) (*AccessGrant, error) {
	if email == "" || password == "" {
		return nil, autherr.Validation("email and password are required")
	}

	acc, err := e.Accounts.FindByEmail(ctx, email)
	if err != nil {
		if autherr.Is(err, autherr.KindAccountNotFound) {
			if dv, ok := e.Hasher.(dummyVerifier); ok {
				dv.VerifyDummy(password)
			}
			return nil, autherr.InvalidCredentials()
		}
		return nil, err
	}

	if !e.Hasher.Verify(password, acc.PasswordHash) {
		return nil, autherr.InvalidCredentials()
	}

	return e.grant(acc)
}

func (e *AuthenticationEngine) grant(acc *models.Account) (*AccessGrant, error) {
	token, exp, err := e.Signer.Issue(acc.Email, string(acc.Role))
	if err != nil {
		return nil, err
	}
	return &AccessGrant{Account: acc, AccessToken: token, AccessExp: exp}, nil
}

func (e *AuthenticationEngine) IssueAccess(acc *models.Account) (*AccessGrant, error) {
	return e.grant(acc)
}

func (e *AuthenticationEngine) VerifyCaller(accessToken string) (Caller, error) {
	claims, err := e.Signer.Verify(accessToken)
	if err != nil {
		return Caller{}, err
	}
	return Caller{Subject: claims.Subject, Role: models.Role(claims.Role)}, nil
}

func (e *AuthenticationEngine) ChangePassword(ctx context.Context, in ChangePasswordInput, canModify CanModifyFunc) (*PasswordChange, error) {
	caller, err := e.VerifyCaller(in.AccessToken)
	if err != nil {
		return nil, err
	}
	if in.NewPassword == "" {
		return nil, autherr.Validation("new password is required")
	}

	targetEmail := in.TargetEmail
	if targetEmail == "" {
		targetEmail = caller.Subject
	}
	target, err := e.Accounts.FindByEmail(ctx, targetEmail)
	if err != nil {
		return nil, err
	}

	if canModify == nil {
		canModify = SelfOrAdmin
	}
	if !canModify(caller, target) {
		return nil, autherr.Forbidden("caller may not modify this account", "caller", caller.Subject, "target", target.Email)
	}

	pwHash, err := e.Hasher.Hash(in.NewPassword)
	if err != nil {
		return nil, autherr.Wrap(autherr.KindValidation, err, "cannot hash the password")
	}
	target.PasswordHash = pwHash
	if err := e.Accounts.Save(ctx, target); err != nil {
		return nil, err
	}

	return &PasswordChange{Account: target, NewPassword: in.NewPassword}, nil
}

func (e *AuthenticationEngine) GetAccount(ctx context.Context, id uuid.UUID) (*models.AccountView, error) {
	acc, err := e.Accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return acc.View(), nil
}

func (e *AuthenticationEngine) GetCurrentAccount(ctx context.Context, accessToken string) (*models.AccountView, error) {
	caller, err := e.VerifyCaller(accessToken)
	if err != nil {
		return nil, err
	}
	acc, err := e.Accounts.FindByEmail(ctx, caller.Subject)
	if err != nil {
		return nil, err
	}
	return acc.View(), nil
}

func (e *AuthenticationEngine) ListAccounts(ctx context.Context, page, size int) (*AccountPage, error) {
	from, limit := util.Calculate(page, size)
	accounts, total, err := e.Accounts.ListAll(ctx, from, limit)
	if err != nil {
		return nil, err
	}

	items := make([]*models.AccountView, 0, len(accounts))
	for i := range accounts {
		items = append(items, accounts[i].View())
	}
	return &AccountPage{
		Items:      items,
		Page:       from/limit + 1,
		Size:       limit,
		Total:      total,
		TotalPages: util.TotalPages(total, limit),
	}, nil
}
