package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/cbta-eval-api/internal/models"
	appErrors "github.com/noah-isme/cbta-eval-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	findByEmailErr   error
	created          []*models.User
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil || m.userByEmail.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByEmail != nil && m.userByEmail.ID == id {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "new-user"
	m.created = append(m.created, user)
	return nil
}

func newAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "cbta-eval-api",
	})
}

func hashedUser(t *testing.T, active bool) *models.User {
	t.Helper()
	password, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{ID: "123", Email: "user@example.com", PasswordHash: string(password), Active: active, Role: models.RoleInstructor}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: hashedUser(t, true)}
	svc := newAuthService(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "User@Example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.True(t, repo.lastLoginUpdated)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "123", claims.UserID)
	assert.Equal(t, models.RoleInstructor, claims.Role)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc := newAuthService(&mockAuthRepo{userByEmail: hashedUser(t, true)})
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "password"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	inactive := newAuthService(&mockAuthRepo{userByEmail: hashedUser(t, false)})
	_, err = inactive.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	assert.ErrorIs(t, err, appErrors.ErrInactiveAccount)

	broken := newAuthService(&mockAuthRepo{findByEmailErr: errors.New("db down")})
	_, err = broken.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestAuthServiceValidateTokenRejectsForeignSecret(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: hashedUser(t, true)}
	res, err := newAuthService(repo).Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "other", Issuer: "cbta-eval-api"})
	_, err = other.ValidateToken(res.AccessToken)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = other.ValidateToken("garbage")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceCreateUser(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: hashedUser(t, true)}
	svc := newAuthService(repo)

	user, err := svc.CreateUser(context.Background(), models.CreateUserRequest{
		Email: "New@Example.com", Password: "longenough", FullName: "New Instructor", Role: models.RoleInstructor,
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("longenough")))

	_, err = svc.CreateUser(context.Background(), models.CreateUserRequest{
		Email: "user@example.com", Password: "longenough", FullName: "Dup", Role: models.RoleAdmin,
	})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.CreateUser(context.Background(), models.CreateUserRequest{Email: "x@example.com", Password: "short", FullName: "X", Role: "PILOT"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
