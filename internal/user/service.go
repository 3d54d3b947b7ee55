package user

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-task-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-task-go/pkg/utilities"
)

// AdminUsername is the account seeded at bootstrap.
const AdminUsername = "admin"

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Repository is the persistence the credential store needs.
// Lookups report absence as sql.ErrNoRows.
type Repository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
}

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("username already exists")
	ErrBadCredentials = errors.New("invalid credentials")
)

// UserService is the credential store: lookup, creation and password
// verification over the users table.
type UserService struct {
	repo   Repository
	hasher PasswordHasher

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(r Repository, hasher PasswordHasher) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: bcrypt.DefaultCost}
	}
	return &UserService{repo: r, hasher: hasher}
}

// Hasher exposes the hasher so signup hashes with the same algorithm Verify checks.
func (s *UserService) Hasher() PasswordHasher { return s.hasher }

// FindByUsername returns the user or ErrUserNotFound.
func (s *UserService) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// Create stores a new identity for an already hashed password.
func (s *UserService) Create(ctx context.Context, username, passwordHash string, role entity.Role) (*entity.User, error) {
	u := &entity.User{
		ID:           utilities.NewKSUID(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateUsername) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return u, nil
}

// Verify checks a username/password pair. Unknown users still pay for one
// hash comparison so both failure paths take the same shape.
func (s *UserService) Verify(ctx context.Context, username, password string) (*entity.User, error) {
	u, err := s.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.hasher.Verify(s.dummy(), password)
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if u.PasswordHash == "" || !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	return u, nil
}

// EnsureAdmin seeds the admin account when no user named admin exists.
// It reports whether a row was created.
func (s *UserService) EnsureAdmin(ctx context.Context, password string) (bool, error) {
	_, err := s.FindByUsername(ctx, AdminUsername)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return false, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, err
	}
	if _, err := s.Create(ctx, AdminUsername, hash, entity.RoleAdmin); err != nil {
		// another instance seeded it first
		if errors.Is(err, ErrUserExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password")
	})
	return s.dummyHash
}

// ConstantTimeCompare helper for API keys and other shared secrets.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
