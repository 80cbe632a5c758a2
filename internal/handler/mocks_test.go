package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/internal/service"
	"github.com/Miasufee/connect-sub000/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAuthService is a mock implementation of AuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, in service.RegisterInput) (*domain.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockAuthService) Login(ctx context.Context, email, code string) (*service.LoginResult, error) {
	args := m.Called(ctx, email, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LoginResult), args.Error(1)
}

func (m *MockAuthService) ResendCode(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockAuthService) ElevatedLogin(ctx context.Context, email, password, uniqueID string) (*service.LoginResult, error) {
	args := m.Called(ctx, email, password, uniqueID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LoginResult), args.Error(1)
}

func (m *MockAuthService) LoginWithVerifiedEmail(ctx context.Context, email, name string) (*service.LoginResult, error) {
	args := m.Called(ctx, email, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LoginResult), args.Error(1)
}

func (m *MockAuthService) VerifyEmail(ctx context.Context, verificationToken string) (*domain.User, error) {
	args := m.Called(ctx, verificationToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockAuthService) VerifyEmailWithCode(ctx context.Context, email, code string) (*service.LoginResult, error) {
	args := m.Called(ctx, email, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.LoginResult), args.Error(1)
}

func (m *MockAuthService) SendEmailVerification(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockAuthService) UpdateRole(ctx context.Context, actor *domain.User, targetEmail string, newRole domain.Role) (*domain.User, error) {
	args := m.Called(ctx, actor, targetEmail, newRole)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockAuthService) BootstrapSuperuser(ctx context.Context, secret, email, password, name string) (*domain.User, error) {
	args := m.Called(ctx, secret, email, password, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, user *domain.User, currentPassword, newPassword string) (*domain.TokenPair, error) {
	args := m.Called(ctx, user, currentPassword, newPassword)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenPair), args.Error(1)
}

func (m *MockAuthService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// MockSessionService is a mock implementation of SessionService
type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) RotateRefreshToken(ctx context.Context, oldToken string) (*domain.TokenPair, error) {
	args := m.Called(ctx, oldToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenPair), args.Error(1)
}

func (m *MockSessionService) VerifyAccessToken(ctx context.Context, accessToken string) (*domain.Claims, *domain.User, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(1) == nil {
		return nil, nil, args.Error(2)
	}
	return nil, args.Get(1).(*domain.User), args.Error(2)
}

func (m *MockSessionService) LogoutCurrentDevice(ctx context.Context, refreshToken string) (bool, error) {
	args := m.Called(ctx, refreshToken)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionService) LogoutAllOtherDevices(ctx context.Context, user *domain.User, currentRefreshToken string) (int64, *domain.TokenPair, error) {
	args := m.Called(ctx, user, currentRefreshToken)
	if args.Get(1) == nil {
		return args.Get(0).(int64), nil, args.Error(2)
	}
	return args.Get(0).(int64), args.Get(1).(*domain.TokenPair), args.Error(2)
}

func (m *MockSessionService) LogoutAllDevices(ctx context.Context, actor *domain.User, targetID string) (int64, error) {
	args := m.Called(ctx, actor, targetID)
	return args.Get(0).(int64), args.Error(1)
}

// MockPasswordResetService is a mock implementation of PasswordResetService
type MockPasswordResetService struct {
	mock.Mock
}

func (m *MockPasswordResetService) Request(ctx context.Context, email, uniqueID string) error {
	return m.Called(ctx, email, uniqueID).Error(0)
}

func (m *MockPasswordResetService) Validate(ctx context.Context, email, raw string) (*service.ResetTokenInfo, error) {
	args := m.Called(ctx, email, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ResetTokenInfo), args.Error(1)
}

func (m *MockPasswordResetService) Confirm(ctx context.Context, in service.ConfirmResetInput) error {
	return m.Called(ctx, in).Error(0)
}

// MockPurger is a mock implementation of Purger
type MockPurger struct {
	mock.Mock
}

func (m *MockPurger) RunOnce(ctx context.Context) (*worker.PurgeResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*worker.PurgeResult), args.Error(1)
}

type testServer struct {
	router   *gin.Engine
	auth     *MockAuthService
	sessions *MockSessionService
	reset    *MockPasswordResetService
	purger   *MockPurger
}

func setupTestRouter() *testServer {
	gin.SetMode(gin.TestMode)
	s := &testServer{
		router:   gin.New(),
		auth:     new(MockAuthService),
		sessions: new(MockSessionService),
		reset:    new(MockPasswordResetService),
		purger:   new(MockPurger),
	}
	RegisterRoutes(s.router, &Handlers{
		Auth:     NewAuthHandler(s.auth, nil),
		Session:  NewSessionHandler(s.sessions, nil),
		Reset:    NewPasswordResetHandler(s.reset, nil),
		Admin:    NewAdminHandler(s.purger, nil),
		Health:   NewHealthHandler(nil, nil),
		Sessions: s.sessions,
	}, RouteConfig{InternalRoutes: true})
	return s
}

// authenticateAs makes the bearer token "token-<id>" resolve to user
func (s *testServer) authenticateAs(user *domain.User) {
	s.sessions.On("VerifyAccessToken", mock.Anything, "token-"+user.ID).Return(nil, user, nil)
}

func (s *testServer) do(method, path string, body interface{}, bearer string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func testUser(id string, role domain.Role) *domain.User {
	return &domain.User{
		ID:              id,
		Email:           id + "@example.com",
		Name:            "Test " + id,
		Role:            role,
		IsActive:        true,
		IsEmailVerified: true,
	}
}

func testPair() *domain.TokenPair {
	return &domain.TokenPair{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		ExpiresIn:    900,
	}
}
