package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/authsession/internal/autherr"
)

const DefaultAccessTTL = 15 * time.Minute

type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 access tokens. The key is fixed for the
// lifetime of the process.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret []byte, ttl time.Duration) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("tokens: signing secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultAccessTTL
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Signer{secret: key, ttl: ttl, now: time.Now}, nil
}

func (s *Signer) TTL() time.Duration { return s.ttl }

func (s *Signer) Issue(subject, role string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, autherr.Validation("token subject is empty")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *Signer) Verify(tokenStr string) (*AccessClaims, error) {
	if tokenStr == "" {
		return nil, autherr.New(autherr.KindTokenInvalid, "access token is empty")
	}

	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherr.Wrap(autherr.KindTokenExpired, err, "access token expired")
		}
		return nil, autherr.Wrap(autherr.KindTokenInvalid, err, "access token invalid")
	}
	if !tkn.Valid || claims.Subject == "" {
		return nil, autherr.New(autherr.KindTokenInvalid, "access token invalid")
	}
	return &claims, nil
}
