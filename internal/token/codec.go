package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Verification failures. Callers outside the session layer only ever see domain.ErrUnauthorized.
var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrTokenTypeMismatch = errors.New("token type mismatch")
)

// DefaultLeeway is the clock skew tolerated on exp/iat checks
const DefaultLeeway = 30 * time.Second

var supportedAlgorithms = map[string]jwt.SigningMethod{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// Key is a secret + algorithm pair
type Key struct {
	Secret    string
	Algorithm string
}

func (k Key) method() (jwt.SigningMethod, error) {
	m, ok := supportedAlgorithms[strings.ToUpper(k.Algorithm)]
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", k.Algorithm)
	}
	return m, nil
}

// Config holds codec configuration
type Config struct {
	Issuer     string
	SessionKey Key // access, refresh, email verification
	ResetKey   Key // password reset only
	Leeway     time.Duration
}

type tokenClaims struct {
	Type    domain.TokenKind `json:"type"`
	Version int              `json:"version"`
	jwt.RegisteredClaims
}

// Codec signs and verifies typed claim sets
type Codec struct {
	issuer     string
	sessionKey Key
	resetKey   Key
	leeway     time.Duration
	now        func() time.Time
}

// NewCodec creates a Codec. The session and reset keys must both be set and must differ.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.SessionKey.Secret == "" || cfg.ResetKey.Secret == "" {
		return nil, errors.New("token secrets must be set")
	}
	if cfg.SessionKey.Secret == cfg.ResetKey.Secret {
		return nil, errors.New("password reset secret must differ from session secret")
	}
	if _, err := cfg.SessionKey.method(); err != nil {
		return nil, err
	}
	if _, err := cfg.ResetKey.method(); err != nil {
		return nil, err
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = DefaultLeeway
	}
	return &Codec{
		issuer:     cfg.Issuer,
		sessionKey: cfg.SessionKey,
		resetKey:   cfg.ResetKey,
		leeway:     cfg.Leeway,
		now:        time.Now,
	}, nil
}

// keyFor returns the key a token kind is signed with
func (c *Codec) keyFor(kind domain.TokenKind) Key {
	if kind == domain.TokenKindPasswordReset {
		return c.resetKey
	}
	return c.sessionKey
}

// Issue signs a token of the given kind for userID
func (c *Codec) Issue(userID string, kind domain.TokenKind, ttl time.Duration, version int) (string, error) {
	return c.IssueWithKey(userID, kind, ttl, version, c.keyFor(kind))
}

// IssueWithKey signs a token with an explicit key
func (c *Codec) IssueWithKey(userID string, kind domain.TokenKind, ttl time.Duration, version int, key Key) (string, error) {
	if userID == "" {
		return "", domain.Invalidf("token subject is required")
	}
	if ttl <= 0 {
		return "", domain.Invalidf("token ttl must be positive")
	}
	method, err := key.method()
	if err != nil {
		return "", err
	}

	now := c.now()
	claims := tokenClaims{
		Type:    kind,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks signature, expiry, subject and type of a token
func (c *Codec) Verify(tokenString string, expected domain.TokenKind) (*domain.Claims, error) {
	return c.VerifyWithKey(tokenString, c.keyFor(expected), expected)
}

// VerifyWithKey verifies a token against an explicit key
func (c *Codec) VerifyWithKey(tokenString string, key Key, expected domain.TokenKind) (*domain.Claims, error) {
	method, err := key.method()
	if err != nil {
		return nil, ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(key.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if claims.Type != expected {
		return nil, ErrTokenTypeMismatch
	}

	out := &domain.Claims{
		Subject: claims.Subject,
		Kind:    claims.Type,
		ID:      claims.ID,
		Version: claims.Version,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
