package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/internal/repository"
	"github.com/Miasufee/connect-sub000/internal/security"
	"github.com/Miasufee/connect-sub000/internal/token"
	"github.com/Miasufee/connect-sub000/pkg/kafka"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// mockCodeRepository keeps one code per user and remembers the last one issued
type mockCodeRepository struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func newMockCodeRepository() *mockCodeRepository {
	return &mockCodeRepository{codes: make(map[string]string)}
}

func (r *mockCodeRepository) Create(ctx context.Context, userID string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	code, err := security.GenerateNumericCode(6)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[userID] = code
	return code, nil
}

func (r *mockCodeRepository) VerifyAndConsume(ctx context.Context, userID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.codes[userID]
	if !ok {
		return domain.ErrCodeNotFound
	}
	if stored != code {
		return domain.ErrInvalidVerificationCode
	}
	delete(r.codes, userID)
	return nil
}

func (r *mockCodeRepository) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, userID)
	return nil
}

func (r *mockCodeRepository) last(userID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codes[userID]
}

// mockEmailSender records every message it is handed
type mockEmailSender struct {
	mu       sync.Mutex
	messages []*EmailMessage
	err      error
}

func (s *mockEmailSender) Send(ctx context.Context, msg *EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return s.err
}

func (s *mockEmailSender) sent() []*EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*EmailMessage(nil), s.messages...)
}

// mockEventPublisher records published event types
type mockEventPublisher struct {
	mu     sync.Mutex
	events []domain.AuthEventType
	err    error
}

func (p *mockEventPublisher) Publish(ctx context.Context, eventType domain.AuthEventType, userID string, data map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return p.err
}

func (p *mockEventPublisher) Close() error { return nil }

func (p *mockEventPublisher) has(eventType domain.AuthEventType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == eventType {
			return true
		}
	}
	return false
}

// mockProducer captures Kafka messages
type mockProducer struct {
	mu       sync.Mutex
	messages []*kafka.Message
	failures int
	err      error
	calls    int
	closed   bool
}

func (p *mockProducer) Produce(ctx context.Context, msg *kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *mockProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

type testEnv struct {
	users    *repository.MemoryUserRepository
	codes    *mockCodeRepository
	refresh  *repository.MemoryRefreshTokenRepository
	resets   *repository.MemoryPasswordResetRepository
	codec    *token.Codec
	hasher   *security.Hasher
	mail     *mockEmailSender
	events   *mockEventPublisher
	sessions *SessionManager
	auth     *AuthService
	reset    *PasswordResetService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithConfig(t, AuthConfig{RequireVerifiedEmail: true, BootstrapSecret: "bootstrap-secret"})
}

func newTestEnvWithConfig(t *testing.T, authCfg AuthConfig) *testEnv {
	t.Helper()

	codec, err := token.NewCodec(token.Config{
		Issuer:     "zawiya-auth",
		SessionKey: token.Key{Secret: "session-secret", Algorithm: "HS256"},
		ResetKey:   token.Key{Secret: "reset-secret", Algorithm: "HS256"},
	})
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}

	env := &testEnv{
		users:   repository.NewMemoryUserRepository(),
		codes:   newMockCodeRepository(),
		refresh: repository.NewMemoryRefreshTokenRepository(),
		resets:  repository.NewMemoryPasswordResetRepository(),
		codec:   codec,
		hasher:  security.NewHasher(bcrypt.MinCost),
		mail:    &mockEmailSender{},
		events:  &mockEventPublisher{},
	}
	env.sessions = NewSessionManager(codec, env.users, env.refresh, env.events, nil, nil, SessionConfig{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	env.auth = NewAuthService(env.users, env.codes, env.sessions, env.hasher, env.mail, env.events, nil, nil, authCfg)
	env.reset = NewPasswordResetService(env.users, env.resets, env.sessions, codec, env.hasher, env.mail, env.events, nil, nil,
		PasswordResetConfig{TokenTTL: 30 * time.Minute, FrontendURL: "https://app.zawiya.test/reset"})
	return env
}

// seedUser stores a user. A non-empty password is hashed.
func (e *testEnv) seedUser(t *testing.T, email string, role domain.Role, password, uniqueID string) *domain.User {
	t.Helper()
	now := time.Now()
	user := &domain.User{
		ID:              uuid.New().String(),
		Email:           email,
		Name:            "Test User",
		Role:            role,
		UniqueID:        uniqueID,
		IsActive:        true,
		IsEmailVerified: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if password != "" {
		hash, err := e.hasher.Hash(password)
		if err != nil {
			t.Fatalf("failed to hash password: %v", err)
		}
		user.PasswordHash = hash
	}
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func (e *testEnv) reload(t *testing.T, id string) *domain.User {
	t.Helper()
	user, err := e.users.GetByID(context.Background(), id)
	if err != nil || user == nil {
		t.Fatalf("failed to reload user %s: %v", id, err)
	}
	return user
}
