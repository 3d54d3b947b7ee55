package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/utilities"
)

// ErrTokenInvalid covers every verification failure: malformed, wrong
// secret, wrong algorithm and expired tokens are not told apart.
var ErrTokenInvalid = errors.New("invalid token")

// Claims is the signed claim set of both token kinds. Subject holds the user id.
type Claims struct {
	Username string      `json:"username"`
	Role     entity.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// IssuerConfig holds the secrets and lifetimes of the two token kinds.
type IssuerConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenIssuer mints and verifies HS256 tokens.
type TokenIssuer struct {
	cfg IssuerConfig
	now func() time.Time
}

func NewTokenIssuer(cfg IssuerConfig) *TokenIssuer {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenIssuer{cfg: cfg, now: time.Now}
}

// IssuePair signs the same identity claims once per token kind.
func (t *TokenIssuer) IssuePair(userID, username string, role entity.Role) (*TokenPair, error) {
	access, err := t.sign(userID, username, role, t.cfg.AccessSecret, t.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := t.sign(userID, username, role, t.cfg.RefreshSecret, t.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *TokenIssuer) sign(userID, username string, role entity.Role, secret string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := &Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        utilities.NewKSUID(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verify parses token against secret. The token must carry an expiry that
// lies in the future.
func (t *TokenIssuer) Verify(token, secret string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (t *TokenIssuer) VerifyAccess(token string) (*Claims, error) {
	return t.Verify(token, t.cfg.AccessSecret)
}

func (t *TokenIssuer) VerifyRefresh(token string) (*Claims, error) {
	return t.Verify(token, t.cfg.RefreshSecret)
}

// Identity converts verified claims into the caller identity.
func (c *Claims) Identity() entity.Identity {
	return entity.Identity{ID: c.Subject, Username: c.Username, Role: c.Role}
}
