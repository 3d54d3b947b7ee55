package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/user/entity"
)

var (
	ErrUserExists            = errors.New("username already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired refresh token")
)

// CredentialStore is the slice of the user service the auth flows consume.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	Create(ctx context.Context, username, passwordHash string, role entity.Role) (*entity.User, error)
	Verify(ctx context.Context, username, password string) (*entity.User, error)
}

// SignupResult confirms a registration; the caller logs in separately.
type SignupResult struct {
	Message string `json:"message"`
}

// Service composes the credential store and the token issuer into the
// signup, login and refresh flows. It keeps no per-call state.
type Service struct {
	store  CredentialStore
	hasher user.PasswordHasher
	issuer *TokenIssuer
	logger *zap.SugaredLogger
}

func NewService(store CredentialStore, hasher user.PasswordHasher, issuer *TokenIssuer, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, hasher: hasher, issuer: issuer, logger: logger}
}

// Signup registers username with role user.
func (s *Service) Signup(ctx context.Context, username, password string) (*SignupResult, error) {
	_, err := s.store.FindByUsername(ctx, username)
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, user.ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u, err := s.store.Create(ctx, username, hash, entity.RoleUser)
	if err != nil {
		// lost a race against a concurrent signup for the same name
		if errors.Is(err, user.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	s.logger.Infow("user registered", "user_id", u.ID)
	return &SignupResult{Message: "User registered successfully. Please log in."}, nil
}

// Login verifies the credentials and returns a fresh token pair.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	u, err := s.store.Verify(ctx, username, password)
	if err != nil {
		if errors.Is(err, user.ErrBadCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return s.issuer.IssuePair(u.ID, u.Username, u.Role)
}

// Refresh mints a new pair from a valid refresh token whose username still
// resolves. Earlier refresh tokens are not revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}
	u, err := s.store.FindByUsername(ctx, claims.Username)
	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			s.logger.Warnw("refresh lookup failed", "err", err)
		}
		return nil, ErrInvalidOrExpiredToken
	}
	return s.issuer.IssuePair(u.ID, u.Username, u.Role)
}

// Authenticate verifies an access token and yields the caller identity.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (entity.Identity, error) {
	claims, err := s.issuer.VerifyAccess(accessToken)
	if err != nil {
		return entity.Identity{}, ErrTokenInvalid
	}
	return claims.Identity(), nil
}
