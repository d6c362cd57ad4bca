package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/authsession/internal/autherr"
	"github.com/Skotchmaster/authsession/internal/db"
	"github.com/Skotchmaster/authsession/internal/events"
	"github.com/Skotchmaster/authsession/internal/hash"
	"github.com/Skotchmaster/authsession/internal/metrics"
	"github.com/Skotchmaster/authsession/internal/models"
	"github.com/Skotchmaster/authsession/internal/repo"
	"github.com/Skotchmaster/authsession/internal/tokens"
)

type testEnv struct {
	svc      *AuthService
	accounts AccountStore
	refresh  RefreshTokenStore
	signer   *tokens.Signer
	events   *recordingPublisher
	metrics  *metrics.Metrics
}

func newTestSigner(t *testing.T) *tokens.Signer {
	t.Helper()
	s, err := tokens.NewSigner([]byte("test-jwt-secret"), 15*time.Minute)
	require.NoError(t, err)
	return s
}

func newTestHasher(t *testing.T) *hash.BcryptHasher {
	t.Helper()
	h, err := hash.NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func newService(t *testing.T, accounts AccountStore, refresh RefreshTokenStore) *testEnv {
	t.Helper()

	m := metrics.New(prometheus.NewRegistry())
	signer := newTestSigner(t)
	pub := &recordingPublisher{}

	svc := &AuthService{
		Auth: &AuthenticationEngine{
			Accounts: accounts,
			Hasher:   newTestHasher(t),
			Signer:   signer,
		},
		Sessions: NewSessionEngine(refresh, accounts, DefaultRefreshTTL, m),
		Events:   pub,
		Metrics:  m,
	}
	return &testEnv{svc: svc, accounts: accounts, refresh: refresh, signer: signer, events: pub, metrics: m}
}

// newTestEnv wires the service to sqlite backed repositories.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := db.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	return newService(t, repo.NewAccountRepo(gdb), repo.NewRefreshRepo(gdb))
}

func register(t *testing.T, env *testEnv, email, password string) *Session {
	t.Helper()
	res, err := env.svc.Register(context.Background(), RegisterInput{
		FirstName: "Ivan",
		LastName:  "Petrov",
		Email:     email,
		Password:  password,
	})
	require.NoError(t, err)
	return res
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// memAccounts is an in-memory AccountStore.
type memAccounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]models.Account
	err  error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: map[uuid.UUID]models.Account{}}
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, acc := range m.byID {
		if acc.Email == email {
			acc := acc
			return &acc, nil
		}
	}
	return nil, autherr.AccountNotFound("email", email)
}

func (m *memAccounts) FindByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	acc, ok := m.byID[id]
	if !ok {
		return nil, autherr.AccountNotFound("account_id", id.String())
	}
	return &acc, nil
}

func (m *memAccounts) Create(_ context.Context, acc *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, other := range m.byID {
		if other.Email == acc.Email {
			return autherr.Validation("email already registered")
		}
	}
	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	m.byID[acc.ID] = *acc
	return nil
}

func (m *memAccounts) Save(_ context.Context, acc *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[acc.ID]; !ok {
		return autherr.AccountNotFound()
	}
	m.byID[acc.ID] = *acc
	return nil
}

func (m *memAccounts) ListAll(_ context.Context, offset, limit int) ([]models.Account, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Account, 0, len(m.byID))
	for _, acc := range m.byID {
		out = append(out, acc)
	}
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], total, nil
}

func (m *memAccounts) delete(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

// memTokens is an in-memory RefreshTokenStore with the same uniqueness rule
// as the real stores. beforeCreate runs before the uniqueness check, which
// lets a test slip a concurrent writer in between read and write.
type memTokens struct {
	mu           sync.Mutex
	byValue      map[string]models.RefreshToken
	byAccount    map[uuid.UUID]string
	beforeCreate func()
	creates      int
}

func newMemTokens() *memTokens {
	return &memTokens{
		byValue:   map[string]models.RefreshToken{},
		byAccount: map[uuid.UUID]string{},
	}
}

func (m *memTokens) FindByValue(_ context.Context, value string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.byValue[value]
	if !ok {
		return nil, autherr.RefreshTokenNotFound()
	}
	return &tok, nil
}

func (m *memTokens) FindByAccount(_ context.Context, accountID uuid.UUID) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.byAccount[accountID]
	if !ok {
		return nil, autherr.RefreshTokenNotFound()
	}
	tok := m.byValue[value]
	return &tok, nil
}

func (m *memTokens) insertLocked(tok *models.RefreshToken) error {
	if _, ok := m.byAccount[tok.AccountID]; ok {
		return autherr.Conflict("refresh token already issued")
	}
	m.byValue[tok.Token] = *tok
	m.byAccount[tok.AccountID] = tok.Token
	return nil
}

func (m *memTokens) Create(_ context.Context, tok *models.RefreshToken) error {
	if hook := m.beforeCreate; hook != nil {
		m.beforeCreate = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	return m.insertLocked(tok)
}

func (m *memTokens) Rotate(_ context.Context, old, next *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byValue[old.Token]; !ok {
		return autherr.RefreshTokenNotFound()
	}
	delete(m.byValue, old.Token)
	delete(m.byAccount, old.AccountID)
	return m.insertLocked(next)
}

func (m *memTokens) Delete(_ context.Context, tok *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byAccount[tok.AccountID]; ok && cur == tok.Token {
		delete(m.byAccount, tok.AccountID)
	}
	delete(m.byValue, tok.Token)
	return nil
}

func (m *memTokens) DeleteByAccount(_ context.Context, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value, ok := m.byAccount[accountID]; ok {
		delete(m.byValue, value)
		delete(m.byAccount, accountID)
	}
	return nil
}

func (m *memTokens) count(accountID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tok := range m.byValue {
		if tok.AccountID == accountID {
			n++
		}
	}
	return n
}
