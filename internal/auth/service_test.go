package auth

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-task-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-task-go/internal/user/repo"
)

// memUserRepo backs a real user.UserService in these tests.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
	err   error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*entity.User)}
}

func (r *memUserRepo) Create(ctx context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Username]; ok {
		return userrepo.ErrDuplicateUsername
	}
	cp := *u
	r.users[u.Username] = &cp
	return nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[username]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, username)
}

func newTestAuthService() (*Service, *memUserRepo, *TokenIssuer) {
	repo := newMemUserRepo()
	store := user.NewUserService(repo, user.BcryptHasher{Cost: bcrypt.MinCost})
	issuer := newTestIssuer()
	return NewService(store, store.Hasher(), issuer, nil), repo, issuer
}

func TestService_SignupLoginScenario(t *testing.T) {
	svc, _, issuer := newTestAuthService()
	ctx := context.Background()

	res, err := svc.Signup(ctx, "alice1", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Message)

	_, err = svc.Signup(ctx, "alice1", "password123")
	assert.ErrorIs(t, err, ErrUserExists)

	pair, err := svc.Login(ctx, "alice1", "password123")
	require.NoError(t, err)
	claims, err := issuer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice1", claims.Username)
	assert.Equal(t, entity.RoleUser, claims.Role)

	_, err = svc.Login(ctx, "alice1", "wrongpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_SignupStoresHashNotPassword(t *testing.T) {
	svc, repo, _ := newTestAuthService()
	_, err := svc.Signup(context.Background(), "bobby", "password123")
	require.NoError(t, err)

	stored, err := repo.GetByUsername(context.Background(), "bobby")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("password123")))
}

func TestService_SignupPropagatesStoreErrors(t *testing.T) {
	svc, repo, _ := newTestAuthService()
	boom := errors.New("db down")
	repo.err = boom
	_, err := svc.Signup(context.Background(), "carol", "password123")
	assert.ErrorIs(t, err, boom)
}

func TestService_Refresh(t *testing.T) {
	svc, repo, issuer := newTestAuthService()
	ctx := context.Background()
	_, err := svc.Signup(ctx, "alice1", "password123")
	require.NoError(t, err)
	pair, err := svc.Login(ctx, "alice1", "password123")
	require.NoError(t, err)

	t.Run("valid refresh token mints a new pair", func(t *testing.T) {
		next, err := svc.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
		claims, err := issuer.VerifyAccess(next.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "alice1", claims.Username)

		// the old refresh token stays usable until it expires
		_, err = svc.Refresh(ctx, pair.RefreshToken)
		assert.NoError(t, err)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := svc.Refresh(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "garbage")
		assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	})

	t.Run("user no longer exists", func(t *testing.T) {
		repo.remove("alice1")
		_, err := svc.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	})
}

func TestService_Authenticate(t *testing.T) {
	svc, _, _ := newTestAuthService()
	ctx := context.Background()
	_, err := svc.Signup(ctx, "alice1", "password123")
	require.NoError(t, err)
	pair, err := svc.Login(ctx, "alice1", "password123")
	require.NoError(t, err)

	id, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice1", id.Username)
	assert.NotEmpty(t, id.ID)

	_, err = svc.Authenticate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
